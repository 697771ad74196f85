// Package proxy implements the request-routing and forwarding engine.
//
// Every inbound request flows through the Handler in a fixed order: the
// /health check and ACME challenge responder short-circuit first, then the
// Host header is validated, then an optional force-HTTPS redirect applies,
// and only then is the mapping store consulted. Matched requests take one of
// two paths:
//
//   - plain HTTP: a fresh backend connection per request, fully buffered
//     bodies, headers relayed with the original Host preserved and
//     X-Forwarded-For/Host/Proto added
//   - WebSocket upgrades: a hand-written HTTP/1.1 handshake over a raw
//     backend socket, then a bidirectional byte splice until either side
//     closes
//
// Path rewriting between the front (client-facing) and back (backend-facing)
// namespaces is pure: see RewritePath and BuildBackendURL.
//
// There is deliberately no backend connection pooling, no body streaming,
// and no enforced backend timeout; these simplifications are part of the
// observable behavior and are not to be silently "fixed".
package proxy
