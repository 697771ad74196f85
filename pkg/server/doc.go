// Package server wires the proxy handler to its listeners and owns their
// lifecycle.
//
// A Server always runs the plain HTTP listener. When HTTPS is enabled it
// additionally runs a TLS listener whose certificates are resolved per
// handshake through the certificate manager's SNI lookup. Metrics, when
// enabled, are served from a separate address so the proxied surface is not
// polluted with operational endpoints.
//
// Start blocks until the context is cancelled, SIGINT or SIGTERM arrives, or
// a listener fails; every exit path drains in-flight requests through a
// graceful shutdown bounded by the configured timeout.
package server
