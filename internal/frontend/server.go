package frontend

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// Server owns one listening HTTP server wrapping a front-end handler.
// It satisfies the blueprint component lifecycle via Close.
type Server struct {
	name   string
	server *http.Server
	logger *slog.Logger
}

// NewServer binds handler to address:port under the given component
// name (used for logging only).
func NewServer(name, address string, port int, handler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		name:   name,
		logger: logger,
		server: &http.Server{
			Addr:    net.JoinHostPort(address, fmt.Sprintf("%d", port)),
			Handler: handler,
		},
	}
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}

// ListenAndServe blocks until the server stops. Closing the server (or
// cancelling ctx) returns nil.
func (s *Server) ListenAndServe(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.Close()
	}()

	s.logger.Info("front-end listening", slog.String("component", s.name), slog.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.WithStack(err)
	}
	return nil
}

// Close drains in-flight requests briefly, then forces the listener
// shut. Used both by the blueprint engine's reverse-order teardown and
// by context cancellation.
func (s *Server) Close() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return errors.WithStack(s.server.Close())
	}
	return nil
}
