package httpserver

import (
	"log/slog"
	"net/http"
	"time"
)

type Option func(*http.Server)

// WithErrorLog routes net/http's internal errors (TLS handshakes, panics in
// hijacked connections) through the structured logger.
func WithErrorLog(logger *slog.Logger) Option {
	return func(srv *http.Server) {
		if logger != nil {
			srv.ErrorLog = slog.NewLogLogger(logger.Handler(), slog.LevelError)
		}
	}
}

// WithWriteTimeout bounds response writes. It must exceed the submit timeout.
func WithWriteTimeout(d time.Duration) Option {
	return func(srv *http.Server) {
		if d > 0 {
			srv.WriteTimeout = d
		}
	}
}

// New builds an HTTP server with conservative timeouts.
func New(addr string, handler http.Handler, opts ...Option) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	for _, opt := range opts {
		opt(srv)
	}
	return srv
}
