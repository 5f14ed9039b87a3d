// Package origin talks to the remote media origin: it builds absolute URLs from
// logical media paths, owns the shared upstream http.Client (transport tuning,
// outbound proxy, User-Agent, Basic or OAuth2 client-credentials auth) and the
// retrying byte fetcher the cache-aside orchestrator falls back to on a miss.
package origin
