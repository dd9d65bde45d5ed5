package disk

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xengine/common"
)

const testPageSize = 4096

func newTestDiskManager(t *testing.T, method CompressionMethod) *DiskManager {
	t.Helper()
	dm, err := NewDiskManager(filepath.Join(t.TempDir(), "test.db"), testPageSize, method)
	require.NoError(t, err)
	t.Cleanup(func() { dm.Close() })
	return dm
}

func makePageImage(fill byte) []byte {
	buf := make([]byte, testPageSize)
	// 首部模拟page_type字段，避开压缩帧魔数
	buf[0] = 1
	for i := 24; i < len(buf); i++ {
		buf[i] = fill
	}
	return buf
}

func TestDiskManager(t *testing.T) {
	t.Run("读写往返", func(t *testing.T) {
		dm := newTestDiskManager(t, COMPRESSION_NONE)

		want := makePageImage(0xAB)
		require.NoError(t, dm.WritePage(3, want))

		got := make([]byte, testPageSize)
		require.NoError(t, dm.ReadPage(3, got))
		assert.True(t, bytes.Equal(want, got))
	})

	t.Run("未写过的页读出全零", func(t *testing.T) {
		dm := newTestDiskManager(t, COMPRESSION_NONE)

		got := make([]byte, testPageSize)
		require.NoError(t, dm.ReadPage(9, got))
		assert.True(t, bytes.Equal(make([]byte, testPageSize), got))
	})

	t.Run("非法参数", func(t *testing.T) {
		dm := newTestDiskManager(t, COMPRESSION_NONE)

		err := dm.ReadPage(common.InvalidPageID, make([]byte, testPageSize))
		assert.Error(t, err)
		err = dm.WritePage(0, make([]byte, 128))
		assert.Error(t, err)
	})

	t.Run("关闭后拒绝访问", func(t *testing.T) {
		dm, err := NewDiskManager(filepath.Join(t.TempDir(), "c.db"), testPageSize, COMPRESSION_NONE)
		require.NoError(t, err)
		require.NoError(t, dm.Close())

		assert.Error(t, dm.ReadPage(0, make([]byte, testPageSize)))
		assert.Error(t, dm.WritePage(0, make([]byte, testPageSize)))
	})

	t.Run("文件锁互斥", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "locked.db")
		dm1, err := NewDiskManager(path, testPageSize, COMPRESSION_NONE)
		require.NoError(t, err)
		defer dm1.Close()

		_, err = NewDiskManager(path, testPageSize, COMPRESSION_NONE)
		assert.Error(t, err)
	})

	t.Run("统计计数", func(t *testing.T) {
		dm := newTestDiskManager(t, COMPRESSION_NONE)

		buf := makePageImage(1)
		require.NoError(t, dm.WritePage(0, buf))
		require.NoError(t, dm.ReadPage(0, buf))
		require.NoError(t, dm.Sync())

		stats := dm.GetStats()
		assert.Equal(t, uint64(1), stats["writes"])
		assert.Equal(t, uint64(1), stats["reads"])
		assert.Equal(t, uint64(1), stats["syncs"])
	})
}

func TestDiskManagerCompression(t *testing.T) {
	for _, method := range []CompressionMethod{COMPRESSION_SNAPPY, COMPRESSION_LZ4} {
		t.Run(methodName(method)+"压缩往返", func(t *testing.T) {
			dm := newTestDiskManager(t, method)

			// 高度重复的页面镜像，压缩必然生效
			want := makePageImage(0x55)
			require.NoError(t, dm.WritePage(5, want))
			got := make([]byte, testPageSize)
			require.NoError(t, dm.ReadPage(5, got))
			assert.True(t, bytes.Equal(want, got))
		})
	}

	t.Run("不可压缩的页面按原样存储", func(t *testing.T) {
		dm := newTestDiskManager(t, COMPRESSION_SNAPPY)

		want := make([]byte, testPageSize)
		want[0] = 2
		// 伪随机填充，线性同余发生器足够破坏可压缩性
		state := uint32(0x12345678)
		for i := 4; i < len(want); i++ {
			state = state*1664525 + 1013904223
			want[i] = byte(state >> 24)
		}
		require.NoError(t, dm.WritePage(1, want))
		got := make([]byte, testPageSize)
		require.NoError(t, dm.ReadPage(1, got))
		assert.True(t, bytes.Equal(want, got))
	})

	t.Run("压缩方法名解析", func(t *testing.T) {
		m, err := ParseCompressionMethod("lz4")
		require.NoError(t, err)
		assert.Equal(t, COMPRESSION_LZ4, m)
		m, err = ParseCompressionMethod("")
		require.NoError(t, err)
		assert.Equal(t, COMPRESSION_NONE, m)
		_, err = ParseCompressionMethod("zstd")
		assert.Error(t, err)
	})
}

func methodName(m CompressionMethod) string {
	switch m {
	case COMPRESSION_SNAPPY:
		return "snappy"
	case COMPRESSION_LZ4:
		return "lz4"
	}
	return "none"
}
