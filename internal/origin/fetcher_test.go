package origin

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestFetcher(opts FetcherOptions) (*HTTPFetcher, *[]time.Duration) {
	f := NewHTTPFetcher(nil, opts)
	var waits []time.Duration
	f.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	f.jitter = func(time.Duration) time.Duration { return 0 }
	return f, &waits
}

func TestHTTPFetcherReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write([]byte("clip-bytes"))
	}))
	defer srv.Close()

	f, waits := newTestFetcher(FetcherOptions{})
	body, err := f.Fetch(context.Background(), srv.URL+"/a.mp4")
	require.NoError(t, err)
	require.Equal(t, []byte("clip-bytes"), body)
	require.Empty(t, *waits)
}

func TestHTTPFetcherRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f, waits := newTestFetcher(FetcherOptions{MaxRetries: 3, InitialBackoff: 100 * time.Millisecond})
	body, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, []byte("ok"), body)
	require.EqualValues(t, 3, calls.Load())
	require.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, *waits)
}

func TestHTTPFetcherDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "missing", http.StatusNotFound)
	}))
	defer srv.Close()

	f, _ := newTestFetcher(FetcherOptions{MaxRetries: 3})
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, http.StatusNotFound, httpErr.StatusCode)
	require.Contains(t, string(httpErr.Body), "missing")
	require.EqualValues(t, 1, calls.Load())
}

func TestHTTPFetcherGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f, waits := newTestFetcher(FetcherOptions{MaxRetries: 2, InitialBackoff: time.Second})
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, http.StatusServiceUnavailable, httpErr.StatusCode)
	require.EqualValues(t, 3, calls.Load())
	require.Len(t, *waits, 2)
}

func TestHTTPFetcherNegativeRetriesDisablesRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f, _ := newTestFetcher(FetcherOptions{MaxRetries: -1})
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	require.EqualValues(t, 1, calls.Load())
}

func TestHTTPFetcherStopsWhenContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.Client(), FetcherOptions{MaxRetries: 5, InitialBackoff: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	f.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return sleepContext(ctx, d)
	}

	_, err := f.Fetch(ctx, srv.URL)
	require.Error(t, err)
	require.True(t, errors.Is(err, context.Canceled))
}

func TestBackoffIsCapped(t *testing.T) {
	f, _ := newTestFetcher(FetcherOptions{InitialBackoff: 10 * time.Second})
	require.Equal(t, 10*time.Second, f.backoff(1))
	require.Equal(t, 20*time.Second, f.backoff(2))
	require.Equal(t, maxBackoff, f.backoff(3))
	require.Equal(t, maxBackoff, f.backoff(10))
}

func TestFetcherFunc(t *testing.T) {
	var fetcher Fetcher = FetcherFunc(func(_ context.Context, url string) ([]byte, error) {
		return []byte(url), nil
	})
	body, err := fetcher.Fetch(context.Background(), "https://x/y")
	require.NoError(t, err)
	require.Equal(t, "https://x/y", string(body))
}
