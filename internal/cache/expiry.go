package cache

import "time"

// DefaultTTL 是条目的统一存活时间（30 天），不支持按条目覆盖。
const DefaultTTL = 30 * 24 * time.Hour

// IsExpired 判断 now 与 StoredAt 的间隔是否超过 ttl。
func IsExpired(entry Entry, ttl time.Duration, now time.Time) bool {
	return now.Sub(entry.StoredAt) > ttl
}

// ExpiryPolicy 绑定 TTL 与时钟，读取路径用它判断条目是否过期。
type ExpiryPolicy struct {
	TTL time.Duration
	Now func() time.Time
}

// NewExpiryPolicy 构造过期策略，ttl 非正时回退到 DefaultTTL，默认使用 time.Now 作为时钟。
func NewExpiryPolicy(ttl time.Duration) ExpiryPolicy {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return ExpiryPolicy{TTL: ttl, Now: time.Now}
}

// Expired 对 entry 应用策略。
func (p ExpiryPolicy) Expired(entry Entry) bool {
	ttl := p.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return IsExpired(entry, ttl, p.now())
}

func (p ExpiryPolicy) now() time.Time {
	if p.Now == nil {
		return time.Now()
	}
	return p.Now()
}
