package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"verge-hq/verge/pkg/certs"
	"verge-hq/verge/pkg/config"
	"verge-hq/verge/pkg/telemetry/metrics"
)

// Server runs the proxy listeners: the plain HTTP listener, the optional TLS
// listener, and the optional metrics endpoint on its own address.
type Server struct {
	config       *config.ServerConfig
	handler      http.Handler
	certManager  *certs.Manager
	collector    *metrics.Collector
	metricsAddr  string
	httpServer   *http.Server
	httpsServer  *http.Server
	metricsHTTP  *http.Server
	shutdownChan chan struct{}
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// Options carries the optional collaborators for a Server. A nil Collector
// or an empty MetricsAddr disables the metrics listener.
type Options struct {
	Collector   *metrics.Collector
	MetricsAddr string
}

// NewServer creates a proxy server. The handler serves both listeners; the
// certificate manager supplies certificates for the TLS listener by SNI.
func NewServer(cfg *config.ServerConfig, handler http.Handler, certManager *certs.Manager, opts Options) *Server {
	return &Server{
		config:       cfg,
		handler:      handler,
		certManager:  certManager,
		collector:    opts.Collector,
		metricsAddr:  opts.MetricsAddr,
		shutdownChan: make(chan struct{}),
	}
}

// Start starts the listeners and blocks until the context is cancelled, a
// shutdown signal arrives, or a listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	errChan := make(chan error, 3)

	s.httpServer = &http.Server{
		Addr:    ":" + strconv.Itoa(s.config.HTTPPort),
		Handler: s.handler,
	}
	go func() {
		slog.Info("starting HTTP listener", "port", s.config.HTTPPort)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("http listener: %w", err)
		}
	}()

	if s.config.EnableHTTPS {
		s.httpsServer = &http.Server{
			Addr:      ":" + strconv.Itoa(s.config.HTTPSPort),
			Handler:   s.handler,
			TLSConfig: s.configureTLS(),
		}
		go func() {
			slog.Info("starting HTTPS listener", "port", s.config.HTTPSPort)
			if err := s.httpsServer.ListenAndServeTLS("", ""); err != nil && err != http.ErrServerClosed {
				errChan <- fmt.Errorf("https listener: %w", err)
			}
		}()
	}

	if s.collector != nil && s.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", s.collector.Handler())
		s.metricsHTTP = &http.Server{Addr: s.metricsAddr, Handler: mux}
		go func() {
			slog.Info("starting metrics listener", "address", s.metricsAddr)
			if err := s.metricsHTTP.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errChan <- fmt.Errorf("metrics listener: %w", err)
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		slog.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig.String())
		return s.Shutdown(context.Background())
	case err := <-errChan:
		_ = s.Shutdown(context.Background())
		return err
	case <-s.shutdownChan:
		slog.Info("shutdown requested")
		return s.Shutdown(context.Background())
	}
}

// Stop requests a graceful shutdown from another goroutine.
func (s *Server) Stop() {
	select {
	case <-s.shutdownChan:
	default:
		close(s.shutdownChan)
	}
}

// Shutdown gracefully drains all listeners within the configured timeout.
// Hijacked tunnel connections are not tracked by net/http and keep running
// until their peers close.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		if !s.isRunning {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		slog.Info("initiating graceful shutdown", "timeout", s.config.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()

		for _, srv := range []*http.Server{s.httpServer, s.httpsServer, s.metricsHTTP} {
			if srv == nil {
				continue
			}
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Error("error during listener shutdown", "addr", srv.Addr, "error", err)
				if shutdownErr == nil {
					shutdownErr = fmt.Errorf("listener shutdown error: %w", err)
				}
			}
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		slog.Info("proxy server stopped")
	})

	return shutdownErr
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// configureTLS builds the TLS listener configuration. Certificates are
// selected per handshake by SNI, so newly issued certificates are picked up
// without a restart.
func (s *Server) configureTLS() *tls.Config {
	return &tls.Config{
		MinVersion:     tls.VersionTLS12,
		GetCertificate: s.certManager.GetCertificate,
	}
}
