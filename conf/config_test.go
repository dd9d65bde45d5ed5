package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCfg(t *testing.T) {
	t.Run("默认值", func(t *testing.T) {
		cfg := NewCfg()
		require.NoError(t, cfg.Load(""))

		assert.Equal(t, 4096, cfg.PageSize)
		assert.Equal(t, 64, cfg.PoolPages)
		assert.Equal(t, 2, cfg.ReplacerK)
		assert.Equal(t, "none", cfg.Compression)
		assert.Equal(t, 50*time.Millisecond, cfg.CycleDetectionIntervalDuration)
		assert.Equal(t, "", cfg.StatsAddr())
	})

	t.Run("从ini文件加载", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "engine.ini")
		content := `[engine]
data_dir = /tmp/xengine
page_size = 8192
pool_pages = 128
replacer_k = 3
compression = lz4

[locks]
cycle_detection_interval = 100ms

[logs]
log_level = debug

[stats]
stats_bind = 0.0.0.0
stats_port = 9190
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))

		cfg := NewCfg()
		require.NoError(t, cfg.Load(path))
		assert.Equal(t, "/tmp/xengine", cfg.DataDir)
		assert.Equal(t, 8192, cfg.PageSize)
		assert.Equal(t, 128, cfg.PoolPages)
		assert.Equal(t, 3, cfg.ReplacerK)
		assert.Equal(t, "lz4", cfg.Compression)
		assert.Equal(t, 100*time.Millisecond, cfg.CycleDetectionIntervalDuration)
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, "0.0.0.0:9190", cfg.StatsAddr())
	})

	t.Run("非法配置被拒绝", func(t *testing.T) {
		cfg := NewCfg()
		cfg.PageSize = 1000 // 不是512的倍数
		assert.Error(t, cfg.Load(""))

		cfg = NewCfg()
		cfg.Compression = "zstd"
		assert.Error(t, cfg.Load(""))

		cfg = NewCfg()
		cfg.CycleDetectionInterval = "soon"
		assert.Error(t, cfg.Load(""))

		cfg = NewCfg()
		assert.Error(t, cfg.Load(filepath.Join(t.TempDir(), "missing.ini")))
	})
}
