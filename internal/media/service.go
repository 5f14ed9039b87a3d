package media

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/clip-cache/internal/cache"
	"github.com/any-hub/clip-cache/internal/logging"
	"github.com/any-hub/clip-cache/internal/origin"
)

// URLResolver 把逻辑路径映射为源站绝对地址。
type URLResolver interface {
	ToAbsoluteURL(logicalPath string) string
}

// Options 描述 Service 的依赖。Opener 为空时会话直接视为不支持缓存。
type Options struct {
	Config   Config
	Opener   cache.Opener
	Fetcher  origin.Fetcher
	Resolver URLResolver
	Logger   *logrus.Logger
	Objects  *ObjectRegistry
	Now      func() time.Time
}

// Result 是一次 Fetch 的结果。
type Result struct {
	Key      string
	Payload  []byte
	CacheHit bool
}

// Handle 是交给播放器的可寻址引用：命中本地对象时 Cached 为 true，否则是直连源站的地址。
type Handle struct {
	URL      string `json:"url"`
	ObjectID string `json:"object_id,omitempty"`
	Cached   bool   `json:"cached"`
}

// Stats 是一次全量扫描得到的缓存统计。
type Stats struct {
	TotalBytes  int64 `json:"total_bytes"`
	EntryCount  int   `json:"entry_count"`
	IsSupported bool  `json:"is_supported"`
}

// Service 实现 cache-aside 读取：先查缓存，未命中时回源、淘汰、写入并返回正文。
// 同一键的并发未命中不会合并，各自回源，最后一次写入生效。
type Service struct {
	adapter  *cache.Adapter
	evictor  cache.Evictor
	keys     cache.KeyDeriver
	fetcher  origin.Fetcher
	resolver URLResolver
	objects  *ObjectRegistry
	logger   *logrus.Logger
	now      func() time.Time
}

// New 构建 Service，Fetcher 与 Resolver 为必需依赖。
func New(opts Options) (*Service, error) {
	if opts.Fetcher == nil {
		return nil, errors.New("media: fetcher required")
	}
	if opts.Resolver == nil {
		return nil, errors.New("media: resolver required")
	}

	cfg := opts.Config.withDefaults()
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	objects := opts.Objects
	if objects == nil {
		objects = NewObjectRegistry(cfg.HandleTTL, cfg.CapacityBytes)
	}

	expiry := cache.NewExpiryPolicy(cfg.TTL)
	expiry.Now = now

	return &Service{
		adapter:  cache.NewAdapter(opts.Opener, expiry, logger),
		evictor:  cache.NewEvictor(cfg.CapacityBytes, cfg.Watermark),
		keys:     cache.KeyDeriver{Namespace: cfg.KeyNamespace},
		fetcher:  opts.Fetcher,
		resolver: opts.Resolver,
		objects:  objects,
		logger:   logger,
		now:      now,
	}, nil
}

// Objects 返回临时对象注册表。
func (s *Service) Objects() *ObjectRegistry {
	return s.objects
}

// Key 返回逻辑路径对应的缓存键。
func (s *Service) Key(logicalPath string) string {
	return s.keys.Key(logicalPath)
}

// OriginURL 返回逻辑路径在源站上的绝对地址。
func (s *Service) OriginURL(logicalPath string) string {
	return s.resolver.ToAbsoluteURL(logicalPath)
}

// Fetch 执行一次 cache-aside 读取。回源失败返回 *NetworkFailure，写缓存失败只记录日志。
func (s *Service) Fetch(ctx context.Context, logicalPath string) (Result, error) {
	key := s.keys.Key(logicalPath)

	if entry, ok := s.adapter.Get(ctx, key); ok {
		fields := logging.RequestFields(logicalPath, key, true)
		fields["action"] = "cache_lookup"
		fields["size_bytes"] = entry.SizeBytes
		s.logger.WithFields(fields).Debug("cache_hit")
		return Result{Key: key, Payload: entry.Payload, CacheHit: true}, nil
	}

	absolute := s.OriginURL(logicalPath)
	started := s.now()
	payload, err := s.fetcher.Fetch(ctx, absolute)
	fields := logging.RequestFields(logicalPath, key, false)
	fields["action"] = "origin_fetch"
	fields["upstream"] = absolute
	fields["elapsed_ms"] = s.now().Sub(started).Milliseconds()
	if err != nil {
		s.logger.WithError(err).WithFields(fields).Warn("origin_fetch_failed")
		return Result{Key: key}, &NetworkFailure{Path: logicalPath, URL: absolute, Err: err}
	}
	fields["size_bytes"] = len(payload)
	s.logger.WithFields(fields).Info("origin_fetch_complete")

	s.populate(ctx, logicalPath, key, payload)
	return Result{Key: key, Payload: payload}, nil
}

// FetchWithCache 返回逻辑路径对应的正文。
func (s *Service) FetchWithCache(ctx context.Context, logicalPath string) ([]byte, error) {
	result, err := s.Fetch(ctx, logicalPath)
	if err != nil {
		return nil, err
	}
	return result.Payload, nil
}

// GetCacheBackedURL 取回正文并登记为本地对象；任何失败都退化为直连源站地址，调用方不会收到错误。
func (s *Service) GetCacheBackedURL(ctx context.Context, logicalPath string) Handle {
	result, err := s.Fetch(ctx, logicalPath)
	if err != nil {
		fields := logging.RequestFields(logicalPath, result.Key, false)
		fields["action"] = "handle_fallback"
		s.logger.WithError(err).WithFields(fields).Warn("cache_backed_url_fallback")
		return Handle{URL: s.OriginURL(logicalPath)}
	}
	id := s.objects.Create(result.Key, result.Payload)
	return Handle{URL: ObjectURL(id), ObjectID: id, Cached: true}
}

// IsCached 报告是否存在未过期条目，过期条目在检查时被删除。
func (s *Service) IsCached(ctx context.Context, logicalPath string) bool {
	_, ok := s.adapter.Get(ctx, s.keys.Key(logicalPath))
	return ok
}

// Invalidate 删除逻辑路径对应的条目，失败只记录日志。
func (s *Service) Invalidate(ctx context.Context, logicalPath string) {
	key := s.keys.Key(logicalPath)
	if err := s.adapter.Delete(ctx, key); err != nil && !errors.Is(err, cache.ErrUnsupported) {
		fields := logging.RequestFields(logicalPath, key, false)
		fields["action"] = "cache_invalidate"
		s.logger.WithError(err).WithFields(fields).Warn("cache_invalidate_failed")
	}
}

// Stats 扫描全部条目。存储异常时返回零值统计，IsSupported 反映适配器是否可用。
func (s *Service) Stats(ctx context.Context) Stats {
	if !s.adapter.Supported(ctx) {
		return Stats{}
	}
	entries, err := s.adapter.List(ctx)
	if err != nil {
		s.logger.WithError(err).WithField("action", "cache_stats").Warn("cache_list_failed")
		return Stats{IsSupported: true}
	}
	stats := Stats{EntryCount: len(entries), IsSupported: true}
	for _, entry := range entries {
		stats.TotalBytes += entry.SizeBytes
	}
	return stats
}

// ClearAll 删除全部条目，错误被吸收，存储在部分失败后仍可继续使用。
func (s *Service) ClearAll(ctx context.Context) {
	err := s.adapter.Clear(ctx)
	switch {
	case err == nil:
		s.logger.WithField("action", "cache_clear").Info("cache_cleared")
	case errors.Is(err, cache.ErrUnsupported):
	default:
		s.logger.WithError(err).WithField("action", "cache_clear").Warn("cache_clear_failed")
	}
}

// populate 先执行写前淘汰，再写入新条目；两步的失败都不会影响本次读取。
func (s *Service) populate(ctx context.Context, logicalPath, key string, payload []byte) {
	if !s.adapter.Supported(ctx) {
		return
	}

	report, err := s.evictor.Sweep(ctx, s.adapter, int64(len(payload)))
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{"action": "cache_evict", "cache_key": key}).
			Warn("cache_sweep_failed")
	} else if len(report.Evicted) > 0 || report.Failed > 0 {
		s.logger.WithFields(logrus.Fields{
			"action":      "cache_evict",
			"cache_key":   key,
			"scanned":     report.Scanned,
			"evicted":     len(report.Evicted),
			"freed_bytes": report.FreedBytes,
			"failed":      report.Failed,
			"total_bytes": report.TotalBytes,
		}).Info("cache_evicted")
	}
	if report.Oversized {
		s.logger.WithFields(logrus.Fields{
			"action":         "cache_evict",
			"cache_key":      key,
			"size_bytes":     len(payload),
			"capacity_bytes": s.evictor.CapacityBytes,
		}).Warn("cache_entry_oversized")
	}

	entry := cache.NewEntry(key, payload, s.now())
	fields := logging.RequestFields(logicalPath, key, false)
	fields["action"] = "cache_put"
	fields["size_bytes"] = entry.SizeBytes
	if err := s.adapter.Put(ctx, entry); err != nil {
		s.logger.WithError(err).WithFields(fields).Warn("cache_put_failed")
		return
	}
	s.logger.WithFields(fields).Debug("cache_stored")
}
