package media

import (
	"time"

	"github.com/any-hub/clip-cache/internal/cache"
	"github.com/any-hub/clip-cache/internal/config"
)

// DefaultHandleTTL 是临时对象句柄的默认存活时间。
const DefaultHandleTTL = 10 * time.Minute

// Config 汇总编排层的可调参数，测试可以直接注入较小的容量与 TTL。
type Config struct {
	TTL           time.Duration
	CapacityBytes int64
	Watermark     float64
	KeyNamespace  string
	HandleTTL     time.Duration
}

// DefaultConfig 返回 30 天 TTL、512 MiB 容量、80% 水位的默认配置。
func DefaultConfig() Config {
	return Config{
		TTL:           cache.DefaultTTL,
		CapacityBytes: cache.DefaultCapacityBytes,
		Watermark:     cache.DefaultWatermark,
		KeyNamespace:  config.DefaultKeyNamespace,
		HandleTTL:     DefaultHandleTTL,
	}
}

// ConfigFromGlobal 把全局配置映射为编排层配置。
func ConfigFromGlobal(g config.GlobalConfig) Config {
	return Config{
		TTL:           g.CacheTTL.DurationValue(),
		CapacityBytes: g.CacheCapacity,
		Watermark:     g.EvictionWatermark,
		KeyNamespace:  g.KeyNamespace,
		HandleTTL:     g.HandleTTL.DurationValue(),
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.TTL <= 0 {
		c.TTL = def.TTL
	}
	if c.CapacityBytes <= 0 {
		c.CapacityBytes = def.CapacityBytes
	}
	if c.Watermark <= 0 || c.Watermark > 1 {
		c.Watermark = def.Watermark
	}
	if c.HandleTTL <= 0 {
		c.HandleTTL = def.HandleTTL
	}
	if c.KeyNamespace == "" {
		c.KeyNamespace = def.KeyNamespace
	}
	return c
}
