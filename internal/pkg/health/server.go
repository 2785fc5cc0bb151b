package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Vodeneev/livewatch/internal/pkg/config"
	"github.com/Vodeneev/livewatch/internal/pkg/health/handlers"
	"github.com/Vodeneev/livewatch/internal/pkg/performance"
)

// Options wires the server to the running watcher.
type Options struct {
	Service           string
	ReadHeaderTimeout time.Duration
	Hub               *Hub
	Tracker           *performance.Tracker
	Checker           handlers.IPChecker
	Proxy             *config.ProxyConfig
	Stop              func()
}

// NewMux registers every endpoint.
func NewMux(opts Options) *http.ServeMux {
	mux := http.NewServeMux()

	// Health endpoints
	mux.HandleFunc("/ping", handlers.HandlePing)
	mux.HandleFunc("/health", handlers.HandleHealth)

	mux.HandleFunc("/metrics", handlers.Metrics(opts.Tracker))

	// Latest snapshot and status stream
	mux.HandleFunc("/matches", handlers.Matches(opts.Hub))
	mux.HandleFunc("/status", handlers.Status(opts.Hub))
	mux.HandleFunc("/ws", opts.Hub.HandleWS)

	if opts.Stop != nil {
		mux.HandleFunc("/stop", handlers.Stop(opts.Stop))
	}

	if opts.Checker != nil {
		mux.HandleFunc("/diagnostics/ip", handlers.DiagnosticsIP(opts.Checker))
		mux.HandleFunc("/diagnostics/proxy", handlers.DiagnosticsProxy(opts.Checker, opts.Proxy))
	}

	return mux
}

// Run serves the mux on addr until ctx is done.
func Run(ctx context.Context, addr string, opts Options) error {
	if opts.ReadHeaderTimeout <= 0 {
		return errors.New("read_header_timeout must be specified in config")
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           NewMux(opts),
		ReadHeaderTimeout: opts.ReadHeaderTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	go func() {
		slog.Info("Health server listening", "service", opts.Service, "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Health server error", "service", opts.Service, "error", err)
		}
	}()
	return nil
}

// AddrFor returns the listen address for port.
func AddrFor(port int) (string, error) {
	if port <= 0 {
		return "", fmt.Errorf("port must be greater than 0, got %d", port)
	}
	return fmt.Sprintf(":%d", port), nil
}
