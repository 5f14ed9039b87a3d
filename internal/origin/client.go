package origin

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/any-hub/clip-cache/internal/config"
	"github.com/any-hub/clip-cache/internal/version"
)

// Shared HTTP transport tunings，复用长连接并集中配置超时。
var defaultTransport = &http.Transport{
	Proxy:                 http.ProxyFromEnvironment,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   100,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	ForceAttemptHTTP2:     true,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
}

// NewUpstreamClient 返回共享 http.Client，用于所有回源请求。凭证、代理与 User-Agent 都在 Transport 层注入。
func NewUpstreamClient(cfg *config.Config) *http.Client {
	timeout := 30 * time.Second
	if cfg != nil && cfg.Global.UpstreamTimeout.DurationValue() > 0 {
		timeout = cfg.Global.UpstreamTimeout.DurationValue()
	}

	transport := defaultTransport.Clone()
	var origin config.OriginConfig
	userAgent := version.UserAgent()
	if cfg != nil {
		origin = cfg.Origin
		if cfg.Global.UserAgent != "" {
			userAgent = cfg.Global.UserAgent
		}
	}
	if origin.Proxy != "" {
		if proxyURL, err := url.Parse(origin.Proxy); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	var rt http.RoundTripper = transport
	switch {
	case origin.HasClientCredentials():
		rt = clientCredentialsTransport(origin, transport)
	case origin.HasBasicAuth():
		rt = &basicAuthRoundTripper{wrapped: rt, username: origin.Username, password: origin.Password}
	}
	rt = &userAgentRoundTripper{wrapped: rt, userAgent: userAgent}

	return &http.Client{
		Timeout:   timeout,
		Transport: rt,
	}
}

// clientCredentialsTransport 使用 OAuth2 client credentials 换取并自动刷新 Bearer token。
func clientCredentialsTransport(origin config.OriginConfig, base http.RoundTripper) http.RoundTripper {
	cc := &clientcredentials.Config{
		ClientID:     origin.ClientID,
		ClientSecret: origin.ClientSecret,
		TokenURL:     origin.TokenURL,
		Scopes:       origin.Scopes,
	}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{
		Timeout:   30 * time.Second,
		Transport: base,
	})
	return &oauth2.Transport{
		Source: oauth2.ReuseTokenSource(nil, cc.TokenSource(tokenCtx)),
		Base:   base,
	}
}

// userAgentRoundTripper 为每个请求设置 User-Agent。
type userAgentRoundTripper struct {
	wrapped   http.RoundTripper
	userAgent string
}

func (rt *userAgentRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", rt.userAgent)
	return rt.wrapped.RoundTrip(clone)
}

// basicAuthRoundTripper 为未携带 Authorization 的请求补充 Basic 凭证。
type basicAuthRoundTripper struct {
	wrapped  http.RoundTripper
	username string
	password string
}

func (rt *basicAuthRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Authorization") != "" {
		return rt.wrapped.RoundTrip(req)
	}
	clone := req.Clone(req.Context())
	clone.SetBasicAuth(rt.username, rt.password)
	return rt.wrapped.RoundTrip(clone)
}
