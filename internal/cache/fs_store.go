package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"
)

const (
	metaSuffix    = ".json"
	payloadSuffix = ".bin"
	tempPrefix    = ".tmp-"
)

// NewStore 在 filesystem 上构建名为 name、版本为 version 的条目集合，整个会话复用一份实例。
// 同名但版本不同的旧集合会被清理，避免新结构误读旧记录。
func NewStore(filesystem billy.Filesystem, name string, version int) (Store, error) {
	if filesystem == nil {
		return nil, errors.New("filesystem required")
	}
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("store name required")
	}
	if version < 1 {
		return nil, fmt.Errorf("invalid store version: %d", version)
	}

	dir := collectionDir(name, version)
	if err := filesystem.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	s := &fileStore{
		fs:    filesystem,
		dir:   dir,
		locks: make(map[string]*entryLock),
	}
	s.dropStaleGenerations(name, dir)
	return s, nil
}

// fileStore 通过 entryLock 避免同一键并发写入，元数据与正文分文件保存。
type fileStore struct {
	fs  billy.Filesystem
	dir string

	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

// recordMeta 是 .json 文件的结构。
type recordMeta struct {
	Key       string    `json:"key"`
	SizeBytes int64     `json:"size_bytes"`
	StoredAt  time.Time `json:"stored_at"`
}

// Get 与 Put/Delete 共用键锁，读者不会看到正文已替换而元数据尚未替换的中间状态。
func (s *fileStore) Get(ctx context.Context, key string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	unlock := s.lockEntry(key)
	defer unlock()

	metaPath, payloadPath := s.paths(key)
	entry, err := s.readMeta(metaPath)
	if err != nil {
		return nil, err
	}
	if entry.Key != key {
		return nil, fmt.Errorf("%w: key mismatch for %s", ErrCorruptEntry, key)
	}

	payload, err := s.readFile(payloadPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: payload missing for %s", ErrCorruptEntry, key)
		}
		return nil, opError("get", key, err)
	}
	if int64(len(payload)) != entry.SizeBytes {
		return nil, fmt.Errorf("%w: size mismatch for %s", ErrCorruptEntry, key)
	}

	entry.Payload = payload
	return entry, nil
}

func (s *fileStore) Put(ctx context.Context, entry *Entry) error {
	if entry == nil || entry.Key == "" {
		return errors.New("entry key required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	unlock := s.lockEntry(entry.Key)
	defer unlock()

	metaPath, payloadPath := s.paths(entry.Key)
	if err := s.writeAtomically(payloadPath, entry.Payload); err != nil {
		return opError("put", entry.Key, err)
	}

	meta, err := json.Marshal(recordMeta{
		Key:       entry.Key,
		SizeBytes: int64(len(entry.Payload)),
		StoredAt:  entry.StoredAt.UTC(),
	})
	if err != nil {
		return opError("put", entry.Key, err)
	}
	if err := s.writeAtomically(metaPath, meta); err != nil {
		_ = s.fs.Remove(payloadPath)
		return opError("put", entry.Key, err)
	}
	return nil
}

func (s *fileStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	unlock := s.lockEntry(key)
	defer unlock()

	metaPath, payloadPath := s.paths(key)
	// 先删元数据，保证中途失败时条目对读者不可见。
	if err := s.removeIfExists(metaPath); err != nil {
		return opError("delete", key, err)
	}
	if err := s.removeIfExists(payloadPath); err != nil {
		return opError("delete", key, err)
	}
	return nil
}

func (s *fileStore) List(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	infos, err := s.fs.ReadDir(s.dir)
	if err != nil {
		return nil, opError("list", "", err)
	}

	entries := make([]Entry, 0, len(infos)/2)
	for _, info := range infos {
		name := info.Name()
		if info.IsDir() || strings.HasPrefix(name, tempPrefix) || !strings.HasSuffix(name, metaSuffix) {
			continue
		}
		entry, err := s.readMeta(s.fs.Join(s.dir, name))
		if err != nil {
			// 单条损坏不影响整体扫描。
			continue
		}
		entries = append(entries, *entry)
	}
	return entries, nil
}

func (s *fileStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	infos, err := s.fs.ReadDir(s.dir)
	if err != nil {
		return opError("clear", "", err)
	}

	var errs []error
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		if err := s.removeIfExists(s.fs.Join(s.dir, info.Name())); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return opError("clear", "", errors.Join(errs...))
	}
	return nil
}

func (s *fileStore) readMeta(metaPath string) (*Entry, error) {
	raw, err := s.readFile(metaPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, opError("read", "", err)
	}

	var meta recordMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptEntry, err)
	}
	if meta.StoredAt.IsZero() || meta.Key == "" || meta.SizeBytes < 0 {
		return nil, fmt.Errorf("%w: invalid metadata in %s", ErrCorruptEntry, metaPath)
	}
	return &Entry{
		Key:       meta.Key,
		SizeBytes: meta.SizeBytes,
		StoredAt:  meta.StoredAt,
	}, nil
}

func (s *fileStore) readFile(name string) ([]byte, error) {
	f, err := s.fs.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// writeAtomically 先写临时文件再 rename，读者只会看到完整文件。
func (s *fileStore) writeAtomically(target string, data []byte) error {
	tempFile, err := s.fs.TempFile(s.dir, tempPrefix)
	if err != nil {
		return err
	}
	tempName := tempFile.Name()

	_, err = tempFile.Write(data)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = s.fs.Remove(tempName)
		return err
	}

	if err := s.fs.Rename(tempName, target); err != nil {
		// 部分实现不允许覆盖已有文件，删除后重试一次。
		_ = s.fs.Remove(target)
		if retryErr := s.fs.Rename(tempName, target); retryErr != nil {
			_ = s.fs.Remove(tempName)
			return retryErr
		}
	}
	return nil
}

func (s *fileStore) removeIfExists(name string) error {
	if err := s.fs.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *fileStore) lockEntry(key string) func() {
	s.mu.Lock()
	lock := s.locks[key]
	if lock == nil {
		lock = &entryLock{}
		s.locks[key] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}

func (s *fileStore) paths(key string) (string, string) {
	digest := keyDigest(key)
	return s.fs.Join(s.dir, digest+metaSuffix), s.fs.Join(s.dir, digest+payloadSuffix)
}

// dropStaleGenerations 删除同名旧版本集合，失败只会留下不可见的残留文件。
func (s *fileStore) dropStaleGenerations(name, current string) {
	infos, err := s.fs.ReadDir("/")
	if err != nil {
		return
	}
	prefix := name + "-v"
	for _, info := range infos {
		if !info.IsDir() || info.Name() == current || !strings.HasPrefix(info.Name(), prefix) {
			continue
		}
		_ = removeTree(s.fs, info.Name())
	}
}

func removeTree(filesystem billy.Filesystem, dir string) error {
	infos, err := filesystem.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, info := range infos {
		child := filesystem.Join(dir, info.Name())
		if info.IsDir() {
			if err := removeTree(filesystem, child); err != nil {
				return err
			}
			continue
		}
		if err := filesystem.Remove(child); err != nil {
			return err
		}
	}
	return filesystem.Remove(dir)
}

func collectionDir(name string, version int) string {
	return fmt.Sprintf("%s-v%d", name, version)
}

func keyDigest(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
