package server

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"verge-hq/verge/pkg/certs"
	"verge-hq/verge/pkg/config"
)

func TestServerStartStop(t *testing.T) {
	cm, err := certs.NewManager(filepath.Join(t.TempDir(), "certs"), "")
	if err != nil {
		t.Fatalf("certs.NewManager failed: %v", err)
	}

	cfg := &config.ServerConfig{
		HTTPPort:        0, // ephemeral
		ShutdownTimeout: 5 * time.Second,
	}
	srv := NewServer(cfg, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}), cm, Options{})

	done := make(chan error, 1)
	go func() { done <- srv.Start(context.Background()) }()

	deadline := time.Now().Add(5 * time.Second)
	for !srv.IsRunning() {
		if time.Now().After(deadline) {
			t.Fatal("server did not report running")
		}
		time.Sleep(10 * time.Millisecond)
	}

	srv.Stop()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}

	if srv.IsRunning() {
		t.Error("server still reports running after shutdown")
	}
}

func TestServerDoubleStart(t *testing.T) {
	cm, err := certs.NewManager(filepath.Join(t.TempDir(), "certs"), "")
	if err != nil {
		t.Fatalf("certs.NewManager failed: %v", err)
	}
	cfg := &config.ServerConfig{HTTPPort: 0, ShutdownTimeout: time.Second}
	srv := NewServer(cfg, http.NotFoundHandler(), cm, Options{})

	go srv.Start(context.Background())

	deadline := time.Now().Add(5 * time.Second)
	for !srv.IsRunning() {
		if time.Now().After(deadline) {
			t.Fatal("server did not report running")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := srv.Start(context.Background()); err == nil {
		t.Error("second Start did not fail")
	}
	srv.Stop()
}
