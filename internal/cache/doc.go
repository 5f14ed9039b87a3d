// Package cache implements the client-resident media cache engine: a durable
// key-value store over a go-billy filesystem, the fail-soft Adapter that the
// rest of the service talks to, key derivation from logical media paths, TTL
// expiry, and the capacity-bound eviction sweep that runs before each write.
// Storage faults never escape as hard failures: the Adapter converts them into
// cache misses or no-ops and reports them as explicit errors for callers that
// want to log them. The media package layers the cache-aside protocol on top.
package cache
