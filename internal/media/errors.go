package media

import "fmt"

// NetworkFailure 表示回源失败，是 FetchWithCache 唯一会向调用方暴露的错误。
type NetworkFailure struct {
	Path string
	URL  string
	Err  error
}

func (e *NetworkFailure) Error() string {
	return fmt.Sprintf("fetch %s from %s: %v", e.Path, e.URL, e.Err)
}

func (e *NetworkFailure) Unwrap() error {
	return e.Err
}
