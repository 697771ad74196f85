package proxy

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// wsEchoBackend accepts one connection, replies 101 to the upgrade and then
// echoes every byte back. It reports the upgrade request head it received.
func wsEchoBackend(t *testing.T) (port int, head <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen failed: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	headCh := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		reader := bufio.NewReader(conn)
		var sb strings.Builder
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			sb.WriteString(line)
			if line == "\r\n" {
				break
			}
		}
		headCh <- sb.String()

		fmt.Fprint(conn, "HTTP/1.1 101 Switching Protocols\r\nUpgrade: websocket\r\nConnection: Upgrade\r\n\r\n")
		io.Copy(conn, reader)
	}()
	return ln.Addr().(*net.TCPAddr).Port, headCh
}

func TestTunnelRelaysBytes(t *testing.T) {
	port, headCh := wsEchoBackend(t)

	h, s := newTestHandler(t, false)
	if _, err := s.AddMapping(context.Background(), "ws.test", "ws", port, "socket", ""); err != nil {
		t.Fatalf("AddMapping failed: %v", err)
	}

	proxy := httptest.NewServer(h)
	defer proxy.Close()

	conn, err := net.Dial("tcp", strings.TrimPrefix(proxy.URL, "http://"))
	if err != nil {
		t.Fatalf("dialing proxy: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	fmt.Fprint(conn, "GET /ws/chat HTTP/1.1\r\nHost: ws.test\r\nUpgrade: websocket\r\nConnection: Upgrade\r\n\r\n")

	reader := bufio.NewReader(conn)
	statusLine, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("reading status line: %v", err)
	}
	if !strings.Contains(statusLine, "101") {
		t.Fatalf("status line = %q, want 101", statusLine)
	}
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("reading response head: %v", err)
		}
		if line == "\r\n" {
			break
		}
	}

	// Bytes written after the handshake come back through the echo backend.
	payload := "binary \x00 payload"
	if _, err := conn.Write([]byte(payload)); err != nil {
		t.Fatalf("writing payload: %v", err)
	}
	buf := make([]byte, len(payload))
	if _, err := io.ReadFull(reader, buf); err != nil {
		t.Fatalf("reading echo: %v", err)
	}
	if string(buf) != payload {
		t.Errorf("echoed = %q, want %q", buf, payload)
	}

	head := <-headCh
	if !strings.HasPrefix(head, "GET /socket/chat HTTP/1.1\r\n") {
		t.Errorf("backend request line not rewritten:\n%s", head)
	}
	if !strings.Contains(head, "Host: ws.test\r\n") {
		t.Errorf("backend upgrade missing original host:\n%s", head)
	}
	if !strings.Contains(head, "X-Forwarded-Proto: http\r\n") {
		t.Errorf("backend upgrade missing forwarding headers:\n%s", head)
	}
}

func TestTunnelUpgradeRejected(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen failed: %v", err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		reader := bufio.NewReader(conn)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			if line == "\r\n" {
				break
			}
		}
		fmt.Fprint(conn, "HTTP/1.1 403 Forbidden\r\nContent-Length: 0\r\n\r\n")
	}()

	h, s := newTestHandler(t, false)
	port := ln.Addr().(*net.TCPAddr).Port
	if _, err := s.AddMapping(context.Background(), "ws.test", "", port, "", ""); err != nil {
		t.Fatalf("AddMapping failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "http://ws.test/chat", nil)
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Connection", "Upgrade")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
	if body := rec.Body.String(); body != "WebSocket upgrade failed" {
		t.Errorf("body = %q", body)
	}
}

func TestTunnelDeadBackend(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen failed: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	h, s := newTestHandler(t, false)
	if _, err := s.AddMapping(context.Background(), "ws.test", "", port, "", ""); err != nil {
		t.Fatalf("AddMapping failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "http://ws.test/chat", nil)
	req.Header.Set("Upgrade", "websocket")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}
