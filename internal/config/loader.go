package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// 默认值与缓存引擎保持一致：30 天 TTL、512 MiB 容量、80% 淘汰水位。
const (
	DefaultListenPort        = 5080
	DefaultCacheTTL          = 30 * 24 * time.Hour
	DefaultCacheCapacity     = int64(512 * 1024 * 1024)
	DefaultEvictionWatermark = 0.8
	DefaultHandleTTL         = 10 * time.Minute
	DefaultStoreName         = "video-cache"
	DefaultKeyNamespace      = "media"
)

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	applyOriginDefaults(&cfg.Origin)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Global.StorageDriver == "disk" {
		absStorage, err := filepath.Abs(cfg.Global.StoragePath)
		if err != nil {
			return nil, fmt.Errorf("无法解析缓存目录: %w", err)
		}
		cfg.Global.StoragePath = absStorage
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", DefaultListenPort)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("StoragePath", "./storage")
	v.SetDefault("StorageDriver", "disk")
	v.SetDefault("StoreName", DefaultStoreName)
	v.SetDefault("StoreVersion", 1)
	v.SetDefault("KeyNamespace", DefaultKeyNamespace)
	v.SetDefault("CacheTTL", "720h")
	v.SetDefault("CacheCapacity", DefaultCacheCapacity)
	v.SetDefault("EvictionWatermark", DefaultEvictionWatermark)
	v.SetDefault("HandleTTL", "10m")
	v.SetDefault("MaxRetries", 3)
	v.SetDefault("InitialBackoff", "1s")
	v.SetDefault("UpstreamTimeout", "30s")
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = DefaultListenPort
	}
	g.StorageDriver = strings.ToLower(strings.TrimSpace(g.StorageDriver))
	if g.StorageDriver == "" {
		g.StorageDriver = "disk"
	}
	if strings.TrimSpace(g.StoreName) == "" {
		g.StoreName = DefaultStoreName
	}
	if g.StoreVersion == 0 {
		g.StoreVersion = 1
	}
	if g.CacheTTL.DurationValue() == 0 {
		g.CacheTTL = Duration(DefaultCacheTTL)
	}
	if g.CacheCapacity == 0 {
		g.CacheCapacity = DefaultCacheCapacity
	}
	if g.EvictionWatermark == 0 {
		g.EvictionWatermark = DefaultEvictionWatermark
	}
	if g.HandleTTL.DurationValue() == 0 {
		g.HandleTTL = Duration(DefaultHandleTTL)
	}
	if g.InitialBackoff.DurationValue() == 0 {
		g.InitialBackoff = Duration(time.Second)
	}
	if g.UpstreamTimeout.DurationValue() == 0 {
		g.UpstreamTimeout = Duration(30 * time.Second)
	}
}

func applyOriginDefaults(o *OriginConfig) {
	o.BaseURL = strings.TrimSpace(o.BaseURL)
	o.Proxy = strings.TrimSpace(o.Proxy)
	scopes := o.Scopes[:0]
	for _, scope := range o.Scopes {
		if trimmed := strings.TrimSpace(scope); trimmed != "" {
			scopes = append(scopes, trimmed)
		}
	}
	o.Scopes = scopes
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
