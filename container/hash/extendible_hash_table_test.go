package hash

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xengine/util"
)

// intHash 测试用散列，走与页表相同的xxhash路径
func intHash(key int32) uint64 {
	return util.HashCode(util.ConvertInt4Bytes(key))
}

// identityHash 恒等散列，便于构造确定性的分裂场景
func identityHash(key int32) uint64 {
	return uint64(uint32(key))
}

func TestExtendibleHashTable(t *testing.T) {
	t.Run("插入查找删除", func(t *testing.T) {
		table := NewExtendibleHashTable[int32, int32](4, intHash)

		for i := int32(0); i < 100; i++ {
			table.Insert(i, i*10)
		}
		for i := int32(0); i < 100; i++ {
			v, ok := table.Find(i)
			require.True(t, ok, "key %d", i)
			assert.Equal(t, i*10, v)
		}

		_, ok := table.Find(1000)
		assert.False(t, ok)

		assert.True(t, table.Remove(42))
		_, ok = table.Find(42)
		assert.False(t, ok)
		assert.False(t, table.Remove(42))
	})

	t.Run("重复键覆盖", func(t *testing.T) {
		table := NewExtendibleHashTable[int32, int32](4, intHash)

		table.Insert(7, 1)
		table.Insert(7, 2)
		v, ok := table.Find(7)
		require.True(t, ok)
		assert.Equal(t, int32(2), v)
	})

	t.Run("分裂与目录倍增", func(t *testing.T) {
		table := NewExtendibleHashTable[int32, int32](2, identityHash)
		assert.Equal(t, 0, table.GetGlobalDepth())
		assert.Equal(t, 1, table.GetNumBuckets())

		// 低位全0的键挤进同一个桶，迫使连续分裂
		table.Insert(0, 0)
		table.Insert(4, 4)
		table.Insert(8, 8)

		assert.GreaterOrEqual(t, table.GetGlobalDepth(), 2)
		assert.GreaterOrEqual(t, table.GetNumBuckets(), 2)
		for _, key := range []int32{0, 4, 8} {
			v, ok := table.Find(key)
			require.True(t, ok)
			assert.Equal(t, key, v)
		}
	})

	t.Run("局部深度不超过全局深度", func(t *testing.T) {
		table := NewExtendibleHashTable[int32, int32](2, identityHash)
		for i := int32(0); i < 64; i++ {
			table.Insert(i, i)
		}
		global := table.GetGlobalDepth()
		for i := 0; i < 1<<global; i++ {
			assert.LessOrEqual(t, table.GetLocalDepth(i), global)
		}
	})

	t.Run("兄弟目录项共享桶", func(t *testing.T) {
		table := NewExtendibleHashTable[int32, int32](2, identityHash)
		for i := int32(0); i < 32; i++ {
			table.Insert(i, i)
		}
		// 局部深度以上的位不同的目录项应指向同一个桶
		global := table.GetGlobalDepth()
		distinct := table.GetNumBuckets()
		assert.LessOrEqual(t, distinct, 1<<global)
	})

	t.Run("并发读写", func(t *testing.T) {
		table := NewExtendibleHashTable[int32, int32](4, intHash)
		const goroutines = 8
		const perG = 200

		var wg sync.WaitGroup
		for g := 0; g < goroutines; g++ {
			wg.Add(1)
			go func(g int) {
				defer wg.Done()
				base := int32(g * perG)
				for i := int32(0); i < perG; i++ {
					table.Insert(base+i, base+i)
				}
			}(g)
		}
		wg.Wait()

		for i := int32(0); i < goroutines*perG; i++ {
			v, ok := table.Find(i)
			require.True(t, ok, fmt.Sprintf("key %d missing", i))
			assert.Equal(t, i, v)
		}
	})
}
