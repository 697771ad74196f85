package proxy

import (
	"bufio"
	"bytes"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"net/url"
)

// forward proxies a single buffered HTTP request to the mapped backend.
//
// A fresh TCP connection is opened for this request and closed afterwards;
// there is no connection reuse or pooling. Request and response bodies are
// fully buffered in memory, which bounds this path to bounded-size payloads.
// Both are deliberate simplifications carried from the reference behavior.
func (h *Handler) forward(w http.ResponseWriter, r *http.Request, target *url.URL, backendURL string) {
	originalHost := r.Host

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Error("failed to read request body", "error", err)
		h.respond(w, http.StatusBadRequest, "Bad Request")
		return
	}

	conn, err := dialBackend(target)
	if err != nil {
		h.backendFailure(w, &BackendError{Addr: backendAddr(target), Op: "connect", Err: err})
		return
	}
	defer conn.Close()

	outbound, err := http.NewRequestWithContext(r.Context(), r.Method, backendURL, bytes.NewReader(body))
	if err != nil {
		h.logger.Error("failed to build backend request", "url", backendURL, "error", err)
		h.respond(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	// All original headers except Host; the outbound Host stays the
	// client-facing one so backend virtual hosting keeps working.
	copyHeaders(outbound.Header, r.Header)
	outbound.Host = originalHost
	outbound.ContentLength = int64(len(body))
	setForwardedHeaders(outbound.Header, r, originalHost)

	if err := outbound.Write(conn); err != nil {
		h.backendFailure(w, &BackendError{Addr: backendAddr(target), Op: "send", Err: err})
		return
	}

	resp, err := http.ReadResponse(bufio.NewReader(conn), outbound)
	if err != nil {
		h.backendFailure(w, &BackendError{Addr: backendAddr(target), Op: "read", Err: err})
		return
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		h.backendFailure(w, &BackendError{Addr: backendAddr(target), Op: "read", Err: err})
		return
	}

	copyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(respBody)
}

// dialBackend opens a fresh connection to the target, wrapping it in TLS
// when the backend base URL uses the https scheme.
func dialBackend(target *url.URL) (net.Conn, error) {
	addr := backendAddr(target)
	if target.Scheme == "https" {
		return tls.Dial("tcp", addr, &tls.Config{ServerName: target.Hostname()})
	}
	return net.Dial("tcp", addr)
}

// backendAddr returns host:port for a backend URL, defaulting the host to
// localhost and the port by scheme.
func backendAddr(target *url.URL) string {
	host := target.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := target.Port()
	if port == "" {
		if target.Scheme == "https" {
			port = "443"
		} else {
			port = "80"
		}
	}
	return net.JoinHostPort(host, port)
}

// copyHeaders copies all headers except Host (Host is a request property in
// Go, not a header map entry, but guard against a stray entry anyway).
func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		if http.CanonicalHeaderKey(key) == "Host" {
			continue
		}
		for _, v := range values {
			dst.Add(key, v)
		}
	}
}

// setForwardedHeaders adds the standard forwarding headers for a proxied
// request.
func setForwardedHeaders(dst http.Header, r *http.Request, originalHost string) {
	dst.Set("X-Forwarded-For", clientIP(r))
	dst.Set("X-Forwarded-Host", originalHost)
	if isHTTPSRequest(r) {
		dst.Set("X-Forwarded-Proto", "https")
	} else {
		dst.Set("X-Forwarded-Proto", "http")
	}
}

// clientIP extracts the client address without the port.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// isHTTPSRequest reports whether the request arrived over HTTPS, either
// directly on the TLS listener or according to the forwarding headers set
// by an upstream proxy.
func isHTTPSRequest(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	if r.Header.Get("X-Forwarded-Proto") == "https" {
		return true
	}
	if r.Header.Get("X-Forwarded-Ssl") == "on" {
		return true
	}
	if r.Header.Get("Front-End-Https") == "on" {
		return true
	}
	return false
}
