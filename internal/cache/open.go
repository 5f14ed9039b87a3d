package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
)

// 支持的持久化驱动。
const (
	DriverDisk   = "disk"
	DriverMemory = "memory"
	DriverNone   = "none"
)

// StoreOptions 描述如何获取持久化后端。
type StoreOptions struct {
	Driver  string
	Path    string
	Name    string
	Version int
}

// Opener 获取 Store 句柄。后端能力缺失时返回匹配 ErrUnsupported 的错误，
// 其余失败视为暂时不可用。
type Opener func(ctx context.Context) (Store, error)

// Open 按驱动构建 Store。driver 为 none 或未知时返回 ErrUnsupported；
// 磁盘目录不可创建或不可写时返回 ErrStoreUnavailable，调用方可稍后重试。
func Open(opts StoreOptions) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case DriverNone:
		return nil, fmt.Errorf("%w: driver disabled", ErrUnsupported)
	case DriverMemory:
		return NewStore(memfs.New(), opts.Name, opts.Version)
	case DriverDisk, "":
		return openDisk(opts)
	default:
		return nil, fmt.Errorf("%w: unknown driver %q", ErrUnsupported, opts.Driver)
	}
}

// OpenerFor 把 Open 包装成 Adapter 使用的惰性 Opener。
func OpenerFor(opts StoreOptions) Opener {
	return func(ctx context.Context) (Store, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return Open(opts)
	}
}

func openDisk(opts StoreOptions) (Store, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("%w: storage path required", ErrUnsupported)
	}

	abs, err := filepath.Abs(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve storage path: %v", ErrStoreUnavailable, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create storage path: %v", ErrStoreUnavailable, err)
	}

	filesystem := osfs.New(abs)
	if err := probeWritable(filesystem); err != nil {
		return nil, fmt.Errorf("%w: storage path not writable: %v", ErrStoreUnavailable, err)
	}

	store, err := NewStore(filesystem, opts.Name, opts.Version)
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	return store, nil
}

func probeWritable(filesystem billy.Basic) error {
	const probe = ".probe"
	if err := util.WriteFile(filesystem, probe, []byte("ok"), 0o644); err != nil {
		return err
	}
	return filesystem.Remove(probe)
}
