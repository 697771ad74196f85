package proxy

import (
	"bufio"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"verge-hq/verge/pkg/certs"
	"verge-hq/verge/pkg/telemetry/metrics"
)

const acmeChallengePrefix = "/.well-known/acme-challenge/"

// Handler dispatches every inbound request: health check and ACME challenge
// short-circuits first, then routing, then either the buffered HTTP forward
// path or the WebSocket tunnel.
type Handler struct {
	router     *Router
	certs      *certs.Manager
	forceHTTPS bool
	metrics    *metrics.Collector
	logger     *slog.Logger
}

// NewHandler creates the proxy request handler. The metrics collector may be
// nil, in which case no metrics are recorded.
func NewHandler(router *Router, certManager *certs.Manager, forceHTTPS bool, collector *metrics.Collector) *Handler {
	return &Handler{
		router:     router,
		certs:      certManager,
		forceHTTPS: forceHTTPS,
		metrics:    collector,
		logger:     slog.Default().With("component", "proxy"),
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	path := r.URL.Path

	h.logger.Debug("request", "method", r.Method, "path", path, "host", r.Host, "remote", r.RemoteAddr)

	// Health check bypasses routing entirely.
	if path == "/health" {
		h.respond(w, http.StatusOK, "OK")
		h.observe(http.StatusOK, "health", start)
		return
	}

	// ACME HTTP-01 challenge responder.
	if strings.HasPrefix(path, acmeChallengePrefix) {
		token := strings.TrimPrefix(path, acmeChallengePrefix)
		if keyAuth, ok := h.certs.GetACMEChallenge(token); ok {
			h.respond(w, http.StatusOK, keyAuth)
			h.observe(http.StatusOK, "acme", start)
			return
		}
		h.respond(w, http.StatusNotFound, "Challenge not found")
		h.observe(http.StatusNotFound, "acme", start)
		return
	}

	// Host is required for virtual-host routing, independent of whether a
	// mapping exists.
	if r.Host == "" {
		h.respond(w, http.StatusBadRequest, "Missing Host header")
		h.observe(http.StatusBadRequest, "http", start)
		return
	}

	if h.forceHTTPS && !isHTTPSRequest(r) {
		// The port in the Host header is the plain-HTTP one; the HTTPS
		// listener lives on the default port for the scheme.
		location := "https://" + StripPort(r.Host) + r.URL.RequestURI()
		w.Header().Set("Location", location)
		w.WriteHeader(http.StatusMovedPermanently)
		h.observe(http.StatusMovedPermanently, "redirect", start)
		return
	}

	mapping, err := h.router.Resolve(r.Context(), r.Host, path)
	if err != nil {
		if errors.Is(err, ErrNoMapping) {
			h.respond(w, http.StatusNotFound, "No mapping found")
			h.observe(http.StatusNotFound, "http", start)
			return
		}
		// A storage failure must not take down the connection; it
		// degrades to a 500 for this request only.
		h.logger.Error("mapping lookup failed", "host", r.Host, "path", path, "error", err)
		h.respond(w, http.StatusInternalServerError, "Internal Server Error")
		h.observe(http.StatusInternalServerError, "http", start)
		return
	}

	backendURL := BuildBackendURL(mapping, path, r.URL.RawQuery)
	target, err := url.Parse(backendURL)
	if err != nil {
		h.logger.Error("invalid backend URL", "url", backendURL, "error", err)
		h.respond(w, http.StatusInternalServerError, "Internal Server Error")
		h.observe(http.StatusInternalServerError, "http", start)
		return
	}

	if isWebSocketUpgrade(r) {
		ws := sniffStatus(w, func(status int) { h.observe(status, "tunnel", start) })
		h.tunnel(ws, r, target, RewritePath(path, mapping))
		return
	}

	h.logger.Debug("proxying", "url", backendURL)
	h.forward(sniffStatus(w, func(status int) { h.observe(status, "http", start) }), r, target, backendURL)
}

// isWebSocketUpgrade reports whether the request asks for a WebSocket
// upgrade (case-insensitive header value).
func isWebSocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

// respond writes a plain-text response.
func (h *Handler) respond(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func (h *Handler) observe(status int, kind string, start time.Time) {
	if h.metrics != nil {
		h.metrics.ObserveRequest(status, kind, time.Since(start))
	}
}

func (h *Handler) countBackendError(phase string) {
	if h.metrics != nil {
		h.metrics.BackendError(phase)
	}
}

// backendFailure logs, counts, and answers a backend error with a 502.
func (h *Handler) backendFailure(w http.ResponseWriter, err *BackendError) {
	h.logger.Error("backend request failed", "addr", err.Addr, "phase", err.Op, "error", err.Err)
	h.countBackendError(err.Op)
	h.respond(w, http.StatusBadGateway, "Bad Gateway")
}

// statusSniffer reports the final status code of a forwarded response to a
// callback once the header is written.
type statusSniffer struct {
	http.ResponseWriter
	report func(int)
	done   bool
}

func sniffStatus(w http.ResponseWriter, report func(int)) http.ResponseWriter {
	return &statusSniffer{ResponseWriter: w, report: report}
}

// WriteHeader implements http.ResponseWriter.
func (s *statusSniffer) WriteHeader(status int) {
	if !s.done {
		s.done = true
		s.report(status)
	}
	s.ResponseWriter.WriteHeader(status)
}

// Hijack passes through to the underlying writer. A successful hijack means
// the tunnel completed its handshake, which is reported as a 101.
func (s *statusSniffer) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("underlying writer does not support hijacking")
	}
	conn, rw, err := hijacker.Hijack()
	if err == nil && !s.done {
		s.done = true
		s.report(http.StatusSwitchingProtocols)
	}
	return conn, rw, err
}
