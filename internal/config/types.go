package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"720h" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述全局运行时行为：监听端口、日志、缓存容量与回源重试策略。
type GlobalConfig struct {
	ListenPort        int      `mapstructure:"ListenPort"`
	LogLevel          string   `mapstructure:"LogLevel"`
	LogFilePath       string   `mapstructure:"LogFilePath"`
	LogMaxSize        int      `mapstructure:"LogMaxSize"`
	LogMaxBackups     int      `mapstructure:"LogMaxBackups"`
	LogCompress       bool     `mapstructure:"LogCompress"`
	StoragePath       string   `mapstructure:"StoragePath"`
	StorageDriver     string   `mapstructure:"StorageDriver"`
	StoreName         string   `mapstructure:"StoreName"`
	StoreVersion      int      `mapstructure:"StoreVersion"`
	KeyNamespace      string   `mapstructure:"KeyNamespace"`
	CacheTTL          Duration `mapstructure:"CacheTTL"`
	CacheCapacity     int64    `mapstructure:"CacheCapacity"`
	EvictionWatermark float64  `mapstructure:"EvictionWatermark"`
	HandleTTL         Duration `mapstructure:"HandleTTL"`
	MaxRetries        int      `mapstructure:"MaxRetries"`
	InitialBackoff    Duration `mapstructure:"InitialBackoff"`
	UpstreamTimeout   Duration `mapstructure:"UpstreamTimeout"`
	UserAgent         string   `mapstructure:"UserAgent"`
}

// OriginConfig 决定如何访问远端媒体源站。
type OriginConfig struct {
	BaseURL      string   `mapstructure:"BaseURL"`
	Proxy        string   `mapstructure:"Proxy"`
	Username     string   `mapstructure:"Username"`
	Password     string   `mapstructure:"Password"`
	ClientID     string   `mapstructure:"ClientID"`
	ClientSecret string   `mapstructure:"ClientSecret"`
	TokenURL     string   `mapstructure:"TokenURL"`
	Scopes       []string `mapstructure:"Scopes"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global GlobalConfig `mapstructure:",squash"`
	Origin OriginConfig `mapstructure:"Origin"`
}

// HasBasicAuth 表示是否配置了完整的 Basic 凭证。
func (o OriginConfig) HasBasicAuth() bool {
	return o.Username != "" && o.Password != ""
}

// HasClientCredentials 表示是否配置了完整的 OAuth2 client credentials。
func (o OriginConfig) HasClientCredentials() bool {
	return o.ClientID != "" && o.ClientSecret != "" && o.TokenURL != ""
}

// AuthMode 输出 `basic`、`oauth2` 或 `anonymous`，供日志字段使用。
func (o OriginConfig) AuthMode() string {
	switch {
	case o.HasClientCredentials():
		return "oauth2"
	case o.HasBasicAuth():
		return "basic"
	default:
		return "anonymous"
	}
}
