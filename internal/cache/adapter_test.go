package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAdapterWriteThenRead(t *testing.T) {
	adapter := NewStoreAdapter(newTestStore(t), NewExpiryPolicy(time.Hour), nil)
	ctx := context.Background()
	entry := NewEntry("media:clips/a.mp4", []byte("clip"), time.Now())

	require.NoError(t, adapter.Put(ctx, entry))
	got, ok := adapter.Get(ctx, entry.Key)
	require.True(t, ok)
	require.Equal(t, entry.Payload, got.Payload)
	require.Equal(t, entry.SizeBytes, got.SizeBytes)
}

func TestAdapterPurgesExpiredOnRead(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()
	policy := ExpiryPolicy{TTL: time.Hour, Now: func() time.Time { return now }}
	adapter := NewStoreAdapter(store, policy, nil)
	ctx := context.Background()

	stale := NewEntry("media:old.mp4", []byte("old"), now.Add(-time.Hour-time.Second))
	require.NoError(t, store.Put(ctx, stale))

	_, ok := adapter.Get(ctx, stale.Key)
	require.False(t, ok)

	_, err := store.Get(ctx, stale.Key)
	require.ErrorIs(t, err, ErrNotFound, "expired entry should be deleted by the read")
}

func TestAdapterUnsupportedDegrades(t *testing.T) {
	adapter := NewAdapter(OpenerFor(StoreOptions{Driver: DriverNone}), NewExpiryPolicy(time.Hour), nil)
	ctx := context.Background()

	require.False(t, adapter.Supported(ctx))
	_, ok := adapter.Get(ctx, "media:a")
	require.False(t, ok)
	require.ErrorIs(t, adapter.Put(ctx, NewEntry("media:a", []byte("a"), time.Now())), ErrUnsupported)
	_, err := adapter.List(ctx)
	require.ErrorIs(t, err, ErrUnsupported)
	require.ErrorIs(t, adapter.Clear(ctx), ErrUnsupported)
}

func TestAdapterOpensLazilyOnce(t *testing.T) {
	var calls int32
	store := newTestStore(t)
	adapter := NewAdapter(func(context.Context) (Store, error) {
		atomic.AddInt32(&calls, 1)
		return store, nil
	}, NewExpiryPolicy(time.Hour), nil)

	require.Equal(t, int32(0), atomic.LoadInt32(&calls))
	ctx := context.Background()
	adapter.Get(ctx, "media:a")
	adapter.Get(ctx, "media:b")
	require.True(t, adapter.Supported(ctx))
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestAdapterTransientOpenFailureRetries(t *testing.T) {
	var calls int32
	store := newTestStore(t)
	adapter := NewAdapter(func(context.Context) (Store, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil, errors.New("no space left on device")
		}
		return store, nil
	}, NewExpiryPolicy(time.Hour), nil)
	ctx := context.Background()

	err := adapter.Delete(ctx, "media:a")
	require.ErrorIs(t, err, ErrStoreUnavailable)
	require.NotErrorIs(t, err, ErrUnsupported)

	require.True(t, adapter.Supported(ctx))
	require.NoError(t, adapter.Put(ctx, NewEntry("media:a", []byte("a"), time.Now())))
	_, ok := adapter.Get(ctx, "media:a")
	require.True(t, ok)
	require.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestAdapterUnsupportedOpenIsLatched(t *testing.T) {
	var calls int32
	adapter := NewAdapter(func(context.Context) (Store, error) {
		atomic.AddInt32(&calls, 1)
		return nil, ErrUnsupported
	}, NewExpiryPolicy(time.Hour), nil)
	ctx := context.Background()

	require.False(t, adapter.Supported(ctx))
	require.False(t, adapter.Supported(ctx))
	require.ErrorIs(t, adapter.Clear(ctx), ErrUnsupported)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))

	require.False(t, NewAdapter(nil, NewExpiryPolicy(time.Hour), nil).Supported(ctx))
}

func TestAdapterOpenIgnoresCallerCancellation(t *testing.T) {
	adapter := NewAdapter(OpenerFor(StoreOptions{Driver: DriverMemory, Name: "video-cache", Version: 1}),
		NewExpiryPolicy(time.Hour), nil)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok := adapter.Get(cancelled, "media:clips/a.mp4")
	require.False(t, ok)

	ctx := context.Background()
	require.True(t, adapter.Supported(ctx))
	require.NoError(t, adapter.Put(ctx, NewEntry("media:clips/a.mp4", []byte("clip"), time.Now())))
	_, ok = adapter.Get(ctx, "media:clips/a.mp4")
	require.True(t, ok)
}

func TestAdapterGetSwallowsStorageErrors(t *testing.T) {
	faulty := &faultyStore{Store: newTestStore(t), getErr: errors.New("io error")}
	adapter := NewStoreAdapter(faulty, NewExpiryPolicy(time.Hour), nil)

	_, ok := adapter.Get(context.Background(), "media:a")
	require.False(t, ok)
}

func TestAdapterPutErrorIsStorageOperation(t *testing.T) {
	faulty := &faultyStore{Store: newTestStore(t), putErr: errors.New("disk full")}
	adapter := NewStoreAdapter(faulty, NewExpiryPolicy(time.Hour), nil)

	err := adapter.Put(context.Background(), NewEntry("media:a", []byte("a"), time.Now()))
	require.ErrorIs(t, err, ErrStorageOperation)

	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	require.Equal(t, "put", opErr.Op)
	require.Equal(t, "media:a", opErr.Key)
}

// faultyStore 在指定操作上注入错误，其余委托给真实 Store。
type faultyStore struct {
	Store
	getErr error
	putErr error
}

func (f *faultyStore) Get(ctx context.Context, key string) (*Entry, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.Store.Get(ctx, key)
}

func (f *faultyStore) Put(ctx context.Context, entry *Entry) error {
	if f.putErr != nil {
		return f.putErr
	}
	return f.Store.Put(ctx, entry)
}
