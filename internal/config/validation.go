package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var supportedStorageDrivers = map[string]struct{}{
	"disk":   {},
	"memory": {},
	"none":   {},
}

const supportedStorageDriverList = "disk|memory|none"

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	driver := strings.ToLower(strings.TrimSpace(g.StorageDriver))
	if _, ok := supportedStorageDrivers[driver]; !ok {
		return newFieldError("Global.StorageDriver", "仅支持 "+supportedStorageDriverList)
	}
	if driver == "disk" && g.StoragePath == "" {
		return newFieldError("Global.StoragePath", "不能为空")
	}
	if strings.TrimSpace(g.StoreName) == "" {
		return newFieldError("Global.StoreName", "不能为空")
	}
	if strings.ContainsAny(g.StoreName, `/\`) {
		return newFieldError("Global.StoreName", "不允许包含路径分隔符")
	}
	if g.StoreVersion < 1 {
		return newFieldError("Global.StoreVersion", "必须大于等于 1")
	}
	if strings.Contains(g.KeyNamespace, ":") {
		return newFieldError("Global.KeyNamespace", "不允许包含冒号")
	}
	if g.CacheTTL.DurationValue() <= 0 {
		return newFieldError("Global.CacheTTL", "必须大于 0")
	}
	if g.CacheCapacity <= 0 {
		return newFieldError("Global.CacheCapacity", "必须大于 0")
	}
	if g.EvictionWatermark <= 0 || g.EvictionWatermark > 1 {
		return newFieldError("Global.EvictionWatermark", "必须在 (0, 1] 区间")
	}
	if g.HandleTTL.DurationValue() <= 0 {
		return newFieldError("Global.HandleTTL", "必须大于 0")
	}
	if g.MaxRetries < 0 {
		return newFieldError("Global.MaxRetries", "不能为负数")
	}
	if g.InitialBackoff.DurationValue() <= 0 {
		return newFieldError("Global.InitialBackoff", "必须大于 0")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}

	return c.Origin.validate()
}

func (o OriginConfig) validate() error {
	if err := validateUpstream(o.BaseURL); err != nil {
		return fmt.Errorf("%s: %w", originField("BaseURL"), err)
	}
	if o.Proxy != "" {
		if err := validateUpstream(o.Proxy); err != nil {
			return fmt.Errorf("%s: %w", originField("Proxy"), err)
		}
	}
	if (o.Username == "") != (o.Password == "") {
		return newFieldError(originField("Username/Password"), "必须同时提供或同时留空")
	}

	oauthSet := 0
	for _, value := range []string{o.ClientID, o.ClientSecret, o.TokenURL} {
		if value != "" {
			oauthSet++
		}
	}
	if oauthSet != 0 && oauthSet != 3 {
		return newFieldError(originField("ClientID/ClientSecret/TokenURL"), "必须同时提供或同时留空")
	}
	if oauthSet == 3 {
		if err := validateUpstream(o.TokenURL); err != nil {
			return fmt.Errorf("%s: %w", originField("TokenURL"), err)
		}
		if o.HasBasicAuth() {
			return newFieldError(originField("Username"), "Basic 与 OAuth2 凭证不能同时配置")
		}
	}
	return nil
}

func validateUpstream(raw string) error {
	if raw == "" {
		return errors.New("缺少地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("缺少 Host: %s", raw)
	}
	return nil
}
