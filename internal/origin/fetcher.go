package origin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"
)

const (
	defaultMaxRetries     = 3
	defaultInitialBackoff = time.Second
	maxBackoff            = 32 * time.Second
	errorBodyLimit        = 512
)

// Fetcher 以绝对 URL 拉取完整字节，编排层只依赖该接口。
type Fetcher interface {
	Fetch(ctx context.Context, absoluteURL string) ([]byte, error)
}

// FetcherFunc 允许用普通函数实现 Fetcher。
type FetcherFunc func(ctx context.Context, absoluteURL string) ([]byte, error)

// Fetch 调用 f 本身。
func (f FetcherFunc) Fetch(ctx context.Context, absoluteURL string) ([]byte, error) {
	return f(ctx, absoluteURL)
}

// HTTPError 表示源站返回了非 2xx 状态码。
type HTTPError struct {
	StatusCode int
	Body       []byte
}

func (e *HTTPError) Error() string {
	if len(e.Body) == 0 {
		return fmt.Sprintf("origin returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("origin returned status %d: %s", e.StatusCode, e.Body)
}

// Retryable 表示该状态码是否值得重试：5xx 与 429。
func (e *HTTPError) Retryable() bool {
	return e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests
}

// FetcherOptions 控制重试次数与退避起点。
type FetcherOptions struct {
	MaxRetries     int
	InitialBackoff time.Duration
}

// HTTPFetcher 通过共享 http.Client 回源，对瞬时错误做带抖动的指数退避。
type HTTPFetcher struct {
	client         *http.Client
	maxRetries     int
	initialBackoff time.Duration

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(d time.Duration) time.Duration
}

// NewHTTPFetcher 构建 HTTPFetcher，client 为空时使用 http.DefaultClient。
// MaxRetries 为负数时不重试，为零时使用默认值。
func NewHTTPFetcher(client *http.Client, opts FetcherOptions) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	retries := opts.MaxRetries
	switch {
	case retries == 0:
		retries = defaultMaxRetries
	case retries < 0:
		retries = 0
	}
	backoff := opts.InitialBackoff
	if backoff <= 0 {
		backoff = defaultInitialBackoff
	}
	return &HTTPFetcher{
		client:         client,
		maxRetries:     retries,
		initialBackoff: backoff,
		sleep:          sleepContext,
		jitter:         randomJitter,
	}
}

// Fetch 执行 GET，最多尝试 1+MaxRetries 次，返回最后一次的错误。
func (f *HTTPFetcher) Fetch(ctx context.Context, absoluteURL string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			if err := f.sleep(ctx, f.backoff(attempt)); err != nil {
				return nil, errors.Join(err, lastErr)
			}
		}

		body, err := f.fetchOnce(ctx, absoluteURL)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable(ctx, err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("origin fetch failed after %d attempts: %w", f.maxRetries+1, lastErr)
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, absoluteURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, absoluteURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build origin request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: snippet}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read origin body: %w", err)
	}
	return body, nil
}

// backoff 返回第 attempt 次重试前的等待时长：initial*2^(attempt-1) 加抖动，上限 32s。
func (f *HTTPFetcher) backoff(attempt int) time.Duration {
	delay := f.initialBackoff
	for i := 1; i < attempt && delay < maxBackoff; i++ {
		delay *= 2
	}
	if delay > maxBackoff {
		delay = maxBackoff
	}
	delay += f.jitter(delay)
	if delay > maxBackoff {
		delay = maxBackoff
	}
	return delay
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Retryable()
	}
	return true
}

func randomJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(d)/2 + 1))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
