// Package media is the public read path of clip-cache. Service ties the
// fail-soft cache adapter, the eviction sweep and the origin fetcher together
// into the cache-aside protocol, and exposes the diagnostics operations the
// HTTP surface needs. ObjectRegistry hands out short-lived local handles for
// fetched payloads so players can address them by URL.
package media
