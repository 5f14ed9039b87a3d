package origin

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Resolver 把逻辑媒体路径拼接到源站根地址上，纯函数、无副作用。
type Resolver struct {
	base *url.URL
}

// NewResolver 解析源站根地址，仅接受 http/https。
func NewResolver(rawBase string) (*Resolver, error) {
	if strings.TrimSpace(rawBase) == "" {
		return nil, errors.New("origin base url required")
	}
	parsed, err := url.Parse(strings.TrimSpace(rawBase))
	if err != nil {
		return nil, fmt.Errorf("parse origin base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("unsupported origin scheme: %s", parsed.Scheme)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("origin base url missing host: %s", rawBase)
	}
	parsed.RawQuery = ""
	parsed.Fragment = ""
	return &Resolver{base: parsed}, nil
}

// ToAbsoluteURL 去掉逻辑路径开头的分隔符后拼接到根地址，路径中的查询串原样保留。
func (r *Resolver) ToAbsoluteURL(logicalPath string) string {
	rel := strings.TrimLeft(strings.TrimSpace(logicalPath), `/\`)
	rawQuery := ""
	if idx := strings.IndexByte(rel, '?'); idx >= 0 {
		rel, rawQuery = rel[:idx], rel[idx+1:]
	}

	target := *r.base
	target.Path = strings.TrimRight(r.base.Path, "/") + "/" + rel
	target.RawPath = ""
	target.RawQuery = rawQuery
	return target.String()
}
