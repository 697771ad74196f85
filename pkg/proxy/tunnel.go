package proxy

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

// tunnel handles a WebSocket upgrade request. Routing and path rewriting are
// identical to the buffered HTTP path; the difference is the transport: the
// upgrade request is written by hand over a raw backend socket because after
// a 101 response the byte stream becomes opaque and must not pass through
// the structured HTTP machinery.
func (h *Handler) tunnel(w http.ResponseWriter, r *http.Request, target *url.URL, rewrittenPath string) {
	originalHost := r.Host

	backendConn, err := dialBackend(target)
	if err != nil {
		h.backendFailure(w, &BackendError{Addr: backendAddr(target), Op: "connect", Err: err})
		return
	}

	requestURI := rewrittenPath
	if r.URL.RawQuery != "" {
		requestURI += "?" + r.URL.RawQuery
	}

	var upgrade strings.Builder
	fmt.Fprintf(&upgrade, "GET %s HTTP/1.1\r\nHost: %s\r\n", requestURI, originalHost)
	for key, values := range r.Header {
		if http.CanonicalHeaderKey(key) == "Host" {
			continue
		}
		for _, v := range values {
			fmt.Fprintf(&upgrade, "%s: %s\r\n", key, v)
		}
	}
	fmt.Fprintf(&upgrade, "X-Forwarded-For: %s\r\n", clientIP(r))
	fmt.Fprintf(&upgrade, "X-Forwarded-Host: %s\r\n", originalHost)
	if isHTTPSRequest(r) {
		upgrade.WriteString("X-Forwarded-Proto: https\r\n")
	} else {
		upgrade.WriteString("X-Forwarded-Proto: http\r\n")
	}
	upgrade.WriteString("\r\n")

	if _, err := backendConn.Write([]byte(upgrade.String())); err != nil {
		backendConn.Close()
		h.backendFailure(w, &BackendError{Addr: backendAddr(target), Op: "send", Err: err})
		return
	}

	// Read the backend's response head. Any bytes the backend sends after
	// the blank line stay buffered in the reader and are relayed below.
	backendReader := bufio.NewReader(backendConn)
	statusLine, err := readResponseHead(backendReader)
	if err != nil {
		backendConn.Close()
		h.backendFailure(w, &BackendError{Addr: backendAddr(target), Op: "read", Err: err})
		return
	}

	if !strings.Contains(statusLine, "101") {
		backendConn.Close()
		h.logger.Warn("upgrade rejected by backend", "addr", backendAddr(target), "status_line", statusLine)
		h.respond(w, http.StatusBadGateway, "WebSocket upgrade failed")
		return
	}

	hijacker, ok := w.(http.Hijacker)
	if !ok {
		backendConn.Close()
		h.logger.Error("response writer does not support hijacking")
		h.respond(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	clientConn, clientRW, err := hijacker.Hijack()
	if err != nil {
		backendConn.Close()
		h.logger.Error("failed to hijack client connection", "error", err)
		return
	}

	response := "HTTP/1.1 101 Switching Protocols\r\nUpgrade: websocket\r\nConnection: Upgrade\r\n\r\n"
	if _, err := clientConn.Write([]byte(response)); err != nil {
		clientConn.Close()
		backendConn.Close()
		return
	}

	h.logger.Debug("tunnel established", "host", originalHost, "addr", backendAddr(target))
	if h.metrics != nil {
		h.metrics.TunnelOpened()
		defer h.metrics.TunnelClosed()
	}

	splice(clientConn, clientRW.Reader, backendConn, backendReader)
}

// readResponseHead consumes an HTTP response head (status line through the
// terminating blank line) and returns the status line.
func readResponseHead(r *bufio.Reader) (string, error) {
	statusLine, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return "", err
		}
		if line == "\r\n" || line == "\n" {
			return strings.TrimRight(statusLine, "\r\n"), nil
		}
	}
}

// splice relays raw bytes between both sides of an established tunnel until
// either closes, propagating a half-close immediately to the other side.
// Frame contents are never parsed or altered. Reads go through the buffered
// readers so bytes already consumed during the handshakes are not lost.
func splice(clientConn net.Conn, clientR io.Reader, backendConn net.Conn, backendR io.Reader) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		_, _ = io.Copy(backendConn, clientR)
		closeWrite(backendConn)
	}()
	go func() {
		defer wg.Done()
		_, _ = io.Copy(clientConn, backendR)
		closeWrite(clientConn)
	}()

	wg.Wait()
	clientConn.Close()
	backendConn.Close()
}

// closeWrite half-closes a connection when the transport supports it, so
// the peer sees EOF while the opposite direction keeps flowing.
func closeWrite(conn net.Conn) {
	type closeWriter interface {
		CloseWrite() error
	}
	if cw, ok := conn.(closeWriter); ok {
		_ = cw.CloseWrite()
	} else {
		_ = conn.Close()
	}
}
