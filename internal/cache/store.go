package cache

import (
	"context"
	"errors"
	"fmt"
)

// Store 是持久化 KV 后端，单一集合按缓存键存放 Entry。磁盘布局遵循：
//
//	<StoragePath>/<StoreName>-v<StoreVersion>/<sha256(key)>.json   # 元数据
//	<StoragePath>/<StoreName>-v<StoreVersion>/<sha256(key)>.bin    # 实际正文
//
// 所有方法都会阻塞到 I/O 完成并遵循 ctx 取消；调用方自行决定是否放到 goroutine 中执行。
type Store interface {
	// Get 返回完整条目（含正文）。不存在时返回 ErrNotFound。
	Get(ctx context.Context, key string) (*Entry, error)

	// Put 以 upsert 语义写入条目，正文与元数据均通过临时文件 + rename 落盘。
	Put(ctx context.Context, entry *Entry) error

	// Delete 删除条目；删除不存在的键不是错误。
	Delete(ctx context.Context, key string) error

	// List 返回全部条目的元数据（Payload 为空），顺序不作保证。
	List(ctx context.Context) ([]Entry, error)

	// Clear 尽力删除全部条目，失败时保留 Store 可用。
	Clear(ctx context.Context) error
}

var (
	// ErrNotFound 表示缓存不存在。
	ErrNotFound = errors.New("cache entry not found")
	// ErrUnsupported 表示持久化后端在当前会话不可用，缓存整体退化为始终未命中。
	ErrUnsupported = errors.New("cache storage unsupported")
	// ErrStoreUnavailable 表示本次打开存储失败（磁盘满、目录暂不可写等），下次访问会重试。
	ErrStoreUnavailable = errors.New("cache storage temporarily unavailable")
	// ErrStorageOperation 表示一次存储操作的瞬时失败。
	ErrStorageOperation = errors.New("cache storage operation failed")
	// ErrCorruptEntry 表示元数据与正文不一致，条目应被丢弃。
	ErrCorruptEntry = errors.New("cache entry corrupt")
)

// OpError 记录失败的存储操作，同时匹配 ErrStorageOperation 与底层错误。
type OpError struct {
	Op  string
	Key string
	Err error
}

func (e *OpError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("cache %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("cache %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *OpError) Unwrap() []error {
	return []error{ErrStorageOperation, e.Err}
}

func opError(op, key string, err error) error {
	if err == nil {
		return nil
	}
	var existing *OpError
	if errors.As(err, &existing) {
		return err
	}
	return &OpError{Op: op, Key: key, Err: err}
}
