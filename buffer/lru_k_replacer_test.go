package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xengine/common"
)

func TestLRUKReplacer(t *testing.T) {
	t.Run("K=2边界场景", func(t *testing.T) {
		replacer := NewLRUKReplacer(8, 2)

		// A=0 B=1 C=2 各访问一次
		replacer.RecordAccess(0)
		replacer.RecordAccess(1)
		replacer.RecordAccess(2)
		replacer.SetEvictable(0, true)
		replacer.SetEvictable(1, true)
		replacer.SetEvictable(2, true)
		assert.Equal(t, 3, replacer.Size())

		// history中首次访问最早的A先被淘汰
		victim, ok := replacer.Evict()
		require.True(t, ok)
		assert.Equal(t, common.FrameID(0), victim)

		// A重新进入，仍只有一次访问，B成为history中最老的
		replacer.RecordAccess(0)
		replacer.SetEvictable(0, true)
		victim, ok = replacer.Evict()
		require.True(t, ok)
		assert.Equal(t, common.FrameID(1), victim)
	})

	t.Run("history先于cache被淘汰", func(t *testing.T) {
		replacer := NewLRUKReplacer(8, 2)

		// 帧1访问两次进入cache，帧2只访问一次留在history
		replacer.RecordAccess(1)
		replacer.RecordAccess(1)
		replacer.RecordAccess(2)
		replacer.SetEvictable(1, true)
		replacer.SetEvictable(2, true)

		victim, ok := replacer.Evict()
		require.True(t, ok)
		assert.Equal(t, common.FrameID(2), victim)

		victim, ok = replacer.Evict()
		require.True(t, ok)
		assert.Equal(t, common.FrameID(1), victim)

		_, ok = replacer.Evict()
		assert.False(t, ok)
	})

	t.Run("cache按倒数第K次访问排序", func(t *testing.T) {
		replacer := NewLRUKReplacer(8, 2)

		// 访问序列: 1 2 1 2 2，帧1的倒数第2次访问更早
		replacer.RecordAccess(1)
		replacer.RecordAccess(2)
		replacer.RecordAccess(1)
		replacer.RecordAccess(2)
		replacer.RecordAccess(2)
		replacer.SetEvictable(1, true)
		replacer.SetEvictable(2, true)

		victim, ok := replacer.Evict()
		require.True(t, ok)
		assert.Equal(t, common.FrameID(1), victim)
	})

	t.Run("不可淘汰的帧被跳过", func(t *testing.T) {
		replacer := NewLRUKReplacer(8, 2)

		replacer.RecordAccess(0)
		replacer.RecordAccess(1)
		replacer.SetEvictable(0, false)
		replacer.SetEvictable(1, true)
		assert.Equal(t, 1, replacer.Size())

		victim, ok := replacer.Evict()
		require.True(t, ok)
		assert.Equal(t, common.FrameID(1), victim)

		_, ok = replacer.Evict()
		assert.False(t, ok)
	})

	t.Run("Remove拒绝不可淘汰的帧", func(t *testing.T) {
		replacer := NewLRUKReplacer(8, 2)

		replacer.RecordAccess(3)
		replacer.SetEvictable(3, false)
		assert.ErrorIs(t, replacer.Remove(3), ErrFrameNotEvictable)

		replacer.SetEvictable(3, true)
		require.NoError(t, replacer.Remove(3))
		assert.Equal(t, 0, replacer.Size())

		assert.ErrorIs(t, replacer.Remove(3), ErrFrameNotTracked)
	})

	t.Run("非法帧号触发panic", func(t *testing.T) {
		replacer := NewLRUKReplacer(4, 2)
		assert.Panics(t, func() {
			replacer.RecordAccess(100)
		})
	})
}
