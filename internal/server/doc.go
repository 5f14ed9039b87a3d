// Package server hosts the Fiber HTTP service that exposes the media cache to
// the UI layer. It owns the middleware chain (panic recovery, request ids), the
// media read routes (/media, /play, /-/handles, /-/objects) and the helpers the
// routes package reuses for diagnostics endpoints. Keep exports narrow and
// accept explicit dependencies.
package server
