package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/stretchr/testify/require"
)

func TestStorePutAndGet(t *testing.T) {
	store := newTestStore(t)
	storedAt := time.Now().Add(-time.Hour).UTC()
	entry := NewEntry(DeriveKey("media", "clips/a.mp4"), []byte("payload"), storedAt)

	require.NoError(t, store.Put(context.Background(), entry))

	got, err := store.Get(context.Background(), entry.Key)
	require.NoError(t, err)
	require.Equal(t, entry.Payload, got.Payload)
	require.Equal(t, int64(len("payload")), got.SizeBytes)
	require.True(t, got.StoredAt.Equal(storedAt), "stored_at mismatch: %v vs %v", got.StoredAt, storedAt)
}

func TestStoreGetMissing(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Get(context.Background(), "media:missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStorePutReplacesExisting(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	key := DeriveKey("media", "clips/a.mp4")

	require.NoError(t, store.Put(ctx, NewEntry(key, []byte("first"), time.Now())))
	require.NoError(t, store.Put(ctx, NewEntry(key, []byte("second-version"), time.Now())))

	got, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "second-version", string(got.Payload))

	entries, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, int64(len("second-version")), entries[0].SizeBytes)
}

func TestStoreDeleteIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	key := DeriveKey("media", "clips/remove.mp4")

	require.NoError(t, store.Put(ctx, NewEntry(key, []byte("data"), time.Now())))
	require.NoError(t, store.Delete(ctx, key))
	require.NoError(t, store.Delete(ctx, key))

	_, err := store.Get(ctx, key)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStoreListReturnsMetadataOnly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, NewEntry("media:a", make([]byte, 10), time.Now())))
	require.NoError(t, store.Put(ctx, NewEntry("media:b", make([]byte, 20), time.Now())))

	entries, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	var total int64
	for _, entry := range entries {
		require.Nil(t, entry.Payload)
		total += entry.SizeBytes
	}
	require.Equal(t, int64(30), total)
}

func TestStoreClearLeavesStoreUsable(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, NewEntry("media:a", []byte("a"), time.Now())))
	require.NoError(t, store.Put(ctx, NewEntry("media:b", []byte("b"), time.Now())))
	require.NoError(t, store.Clear(ctx))

	entries, err := store.List(ctx)
	require.NoError(t, err)
	require.Empty(t, entries)

	require.NoError(t, store.Put(ctx, NewEntry("media:c", []byte("c"), time.Now())))
	_, err = store.Get(ctx, "media:c")
	require.NoError(t, err)
}

func TestStoreDetectsTruncatedPayload(t *testing.T) {
	filesystem := memfs.New()
	store, err := NewStore(filesystem, "video-cache", 1)
	require.NoError(t, err)
	ctx := context.Background()

	key := "media:clips/broken.mp4"
	require.NoError(t, store.Put(ctx, NewEntry(key, []byte("0123456789"), time.Now())))

	fsStore := store.(*fileStore)
	_, payloadPath := fsStore.paths(key)
	f, err := filesystem.Create(payloadPath)
	require.NoError(t, err)
	_, err = f.Write([]byte("0123"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = store.Get(ctx, key)
	require.ErrorIs(t, err, ErrCorruptEntry)
}

func TestStoreOnDiskDropsOldGenerations(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()

	v1, err := NewStore(osfs.New(root), "video-cache", 1)
	require.NoError(t, err)
	require.NoError(t, v1.Put(ctx, NewEntry("media:a", []byte("old"), time.Now())))

	v2, err := NewStore(osfs.New(root), "video-cache", 2)
	require.NoError(t, err)

	entries, err := v2.List(ctx)
	require.NoError(t, err)
	require.Empty(t, entries)

	_, err = os.Stat(filepath.Join(root, "video-cache-v1"))
	require.True(t, os.IsNotExist(err), "old generation should be removed, got %v", err)
	_, err = os.Stat(filepath.Join(root, "video-cache-v2"))
	require.NoError(t, err)
}

func TestOpenDriverNoneIsUnsupported(t *testing.T) {
	_, err := Open(StoreOptions{Driver: DriverNone, Name: "video-cache", Version: 1})
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestOpenDiskCreatesCollection(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "storage")
	store, err := Open(StoreOptions{Driver: DriverDisk, Path: root, Name: "video-cache", Version: 1})
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), NewEntry("media:a", []byte("a"), time.Now())))

	_, err = os.Stat(filepath.Join(root, "video-cache-v1"))
	require.NoError(t, err)
}

func TestOpenDiskUnwritableIsUnavailable(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	dir := t.TempDir()
	blocked := filepath.Join(dir, "blocked")
	require.NoError(t, os.Mkdir(blocked, 0o555))
	t.Cleanup(func() { _ = os.Chmod(blocked, 0o755) })

	_, err := Open(StoreOptions{Driver: DriverDisk, Path: blocked, Name: "video-cache", Version: 1})
	require.ErrorIs(t, err, ErrStoreUnavailable)
	require.NotErrorIs(t, err, ErrUnsupported)
}

// newTestStore returns a Store backed by an in-memory filesystem.
func newTestStore(t *testing.T) Store {
	t.Helper()
	store, err := NewStore(memfs.New(), "video-cache", 1)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}
