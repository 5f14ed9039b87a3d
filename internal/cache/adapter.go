package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/clip-cache/internal/logging"
)

// Adapter 是编排层唯一接触的存储入口：首次访问时惰性打开 Store。只有 ErrUnsupported
// 会在本会话内锁定为不支持，其余打开失败按未命中处理并在下次访问时重试；
// 读取路径执行过期检查并顺带清理过期条目，所有存储故障都被吸收为未命中或 no-op。
type Adapter struct {
	open   Opener
	expiry ExpiryPolicy
	logger *logrus.Logger

	mu          sync.Mutex
	store       Store
	unsupported error
}

// NewAdapter 以 opener 与过期策略构建 Adapter，logger 为空时丢弃日志。
func NewAdapter(open Opener, expiry ExpiryPolicy, logger *logrus.Logger) *Adapter {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Adapter{
		open:   open,
		expiry: expiry,
		logger: logger,
	}
}

// NewStoreAdapter 包装一个已打开的 Store，便于测试与嵌入式使用。
func NewStoreAdapter(store Store, expiry ExpiryPolicy, logger *logrus.Logger) *Adapter {
	return NewAdapter(func(context.Context) (Store, error) {
		if store == nil {
			return nil, ErrUnsupported
		}
		return store, nil
	}, expiry, logger)
}

// Supported 返回当前会话是否具备持久化能力，首次调用会触发打开。
func (a *Adapter) Supported(ctx context.Context) bool {
	_, err := a.handle(ctx)
	return err == nil
}

// Get 返回未过期的条目。缺失、过期或任何存储错误都报告为未命中，过期条目会被删除。
func (a *Adapter) Get(ctx context.Context, key string) (*Entry, bool) {
	store, err := a.handle(ctx)
	if err != nil {
		return nil, false
	}

	entry, err := store.Get(ctx, key)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		return nil, false
	case errors.Is(err, ErrCorruptEntry):
		a.logger.WithError(err).WithFields(logrus.Fields{"action": "cache_lookup", "key": key}).
			Warn("cache_entry_corrupt")
		a.discard(ctx, store, key, "cache_lookup")
		return nil, false
	default:
		a.logger.WithError(err).WithFields(logrus.Fields{"action": "cache_lookup", "key": key}).
			Warn("cache_get_failed")
		return nil, false
	}

	if a.expiry.Expired(*entry) {
		a.logger.WithFields(logrus.Fields{
			"action":    "cache_expired",
			"key":       key,
			"stored_at": entry.StoredAt,
		}).Debug("cache entry expired")
		a.discard(ctx, store, key, "cache_expired")
		return nil, false
	}
	return entry, true
}

// Put 写入条目。失败时返回 *OpError 或 ErrUnsupported，调用方只记录日志，不影响读取结果。
func (a *Adapter) Put(ctx context.Context, entry *Entry) error {
	store, err := a.handle(ctx)
	if err != nil {
		return err
	}
	if entry == nil {
		return opError("put", "", errors.New("nil entry"))
	}
	return opError("put", entry.Key, store.Put(ctx, entry))
}

// Delete 幂等删除。
func (a *Adapter) Delete(ctx context.Context, key string) error {
	store, err := a.handle(ctx)
	if err != nil {
		return err
	}
	return opError("delete", key, store.Delete(ctx, key))
}

// List 返回全部条目元数据，供淘汰与诊断使用。
func (a *Adapter) List(ctx context.Context) ([]Entry, error) {
	store, err := a.handle(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := store.List(ctx)
	if err != nil {
		return nil, opError("list", "", err)
	}
	return entries, nil
}

// Clear 删除全部条目。
func (a *Adapter) Clear(ctx context.Context) error {
	store, err := a.handle(ctx)
	if err != nil {
		return err
	}
	return opError("clear", "", store.Clear(ctx))
}

func (a *Adapter) discard(ctx context.Context, store Store, key, action string) {
	if err := store.Delete(ctx, key); err != nil {
		a.logger.WithError(err).WithFields(logrus.Fields{"action": action, "key": key}).
			Warn("cache_delete_failed")
	}
}

// handle 返回已打开的 Store。打开使用脱离调用方取消信号的 context，
// 避免某个被取消的请求影响整个会话。
func (a *Adapter) handle(ctx context.Context) (Store, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.store != nil {
		return a.store, nil
	}
	if a.unsupported != nil {
		return nil, a.unsupported
	}
	if a.open == nil {
		a.unsupported = fmt.Errorf("%w: no opener", ErrUnsupported)
		return nil, a.unsupported
	}

	store, err := a.open(context.WithoutCancel(ctx))
	if err == nil && store == nil {
		err = fmt.Errorf("%w: opener returned no store", ErrUnsupported)
	}
	if err == nil {
		a.store = store
		return store, nil
	}

	if errors.Is(err, ErrUnsupported) {
		a.unsupported = err
		a.logger.WithError(err).WithField("action", "cache_open").
			Warn("cache storage unsupported, falling back to network only")
		return nil, err
	}
	if !errors.Is(err, ErrStoreUnavailable) {
		err = errors.Join(ErrStoreUnavailable, err)
	}
	a.logger.WithError(err).WithField("action", "cache_open").
		Warn("cache storage unavailable, will retry on next access")
	return nil, err
}
