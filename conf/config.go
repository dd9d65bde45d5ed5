package conf

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/ini.v1"
)

// Cfg 引擎配置
//
// [engine]
// data_dir                = data
// page_size               = 4096
// pool_pages              = 64
// replacer_k              = 2
// page_table_bucket_size  = 4
// compression             = none
type Cfg struct {
	Raw *ini.File

	// engine
	DataDir             string `ini:"data_dir"`
	PageSize            int    `ini:"page_size"`
	PoolPages           int    `ini:"pool_pages"`
	ReplacerK           int    `ini:"replacer_k"`
	PageTableBucketSize int    `ini:"page_table_bucket_size"`
	Compression         string `ini:"compression"`

	// locks
	CycleDetectionInterval         string `ini:"cycle_detection_interval"`
	CycleDetectionIntervalDuration time.Duration

	// logs
	LogError string `ini:"log_error"`
	LogInfos string `ini:"log_infos"`
	LogLevel string `ini:"log_level"`

	// stats
	StatsBind string `ini:"stats_bind"`
	StatsPort int    `ini:"stats_port"`
}

// NewCfg 创建带默认值的配置
func NewCfg() *Cfg {
	return &Cfg{
		Raw:                    ini.Empty(),
		DataDir:                "data",
		PageSize:               4096,
		PoolPages:              64,
		ReplacerK:              2,
		PageTableBucketSize:    4,
		Compression:            "none",
		CycleDetectionInterval: "50ms",
		LogLevel:               "info",
		StatsBind:              "127.0.0.1",
		StatsPort:              0,
	}
}

// Load 从ini文件加载配置。path为空时保留默认值，文件不存在或解析失败时返回错误
func (c *Cfg) Load(path string) error {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("config file %s not readable: %v", path, err)
		}
		raw, err := ini.Load(path)
		if err != nil {
			return fmt.Errorf("parse config file %s failed: %v", path, err)
		}
		c.Raw = raw

		if err := raw.Section("engine").MapTo(c); err != nil {
			return err
		}
		if err := raw.Section("locks").MapTo(c); err != nil {
			return err
		}
		if err := raw.Section("logs").MapTo(c); err != nil {
			return err
		}
		if err := raw.Section("stats").MapTo(c); err != nil {
			return err
		}
	}
	return c.validate()
}

// validate 校验并解析派生配置
func (c *Cfg) validate() error {
	if c.PageSize < 512 || c.PageSize%512 != 0 {
		return fmt.Errorf("page_size %d must be a positive multiple of 512", c.PageSize)
	}
	if c.PoolPages <= 0 {
		return fmt.Errorf("pool_pages %d must be positive", c.PoolPages)
	}
	if c.ReplacerK <= 0 {
		return fmt.Errorf("replacer_k %d must be positive", c.ReplacerK)
	}
	if c.PageTableBucketSize <= 0 {
		return fmt.Errorf("page_table_bucket_size %d must be positive", c.PageTableBucketSize)
	}
	switch c.Compression {
	case "none", "snappy", "lz4":
	default:
		return fmt.Errorf("compression %q not supported", c.Compression)
	}

	d, err := time.ParseDuration(c.CycleDetectionInterval)
	if err != nil {
		return fmt.Errorf("cycle_detection_interval %q invalid: %v", c.CycleDetectionInterval, err)
	}
	c.CycleDetectionIntervalDuration = d
	return nil
}

// StatsAddr 统计服务监听地址，端口为0时表示禁用
func (c *Cfg) StatsAddr() string {
	if c.StatsPort == 0 {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.StatsBind, c.StatsPort)
}
