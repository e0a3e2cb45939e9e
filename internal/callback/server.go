// Package callback receives OAuth redirects on a loopback HTTP server and
// feeds them into the auth flows of the active providers.
package callback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// HandlerFunc completes pending handshakes once a callback has been recorded
// in the Environment.
type HandlerFunc func(ctx context.Context) error

// Server represents the loopback callback server
type Server struct {
	mux    *http.ServeMux
	server *http.Server
	env    *Environment
	handle HandlerFunc
	done   chan error
}

// Compile-time check that Server implements http.Handler
var _ http.Handler = (*Server)(nil)

// New creates a callback server that listens on the path of env's redirect URL.
func New(env *Environment, handle HandlerFunc, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		mux:    http.NewServeMux(),
		env:    env,
		handle: handle,
		done:   make(chan error, 1),
	}

	s.mux.Handle("GET "+env.RedirectURL().Path, applyMiddlewares(http.HandlerFunc(s.callback),
		RedactQuery,
		Logging(logger),
		Recovery,
	))

	return s
}

// ServeHTTP implements http.Handler interface
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Done delivers the outcome of the first handled callback.
func (s *Server) Done() <-chan error {
	return s.done
}

func (s *Server) callback(w http.ResponseWriter, r *http.Request) {
	s.env.receive(originalQuery(r))

	err := s.handle(r.Context())

	select {
	case s.done <- err:
	default:
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = fmt.Fprintf(w, "Authorization failed: %v\n", err)
		return
	}
	_, _ = fmt.Fprintln(w, "Authorization complete. You can close this window.")
}

// Start starts the HTTP server in the background and returns immediately.
// Returns a channel for runtime errors and a startup error if any.
//
// Startup errors (port in use, permission denied) are returned immediately.
// Runtime errors (network failures during operation) are sent to the error channel.
//
// The caller is responsible for calling Shutdown() to stop the server.
func (s *Server) Start(ctx context.Context, address string) (<-chan error, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	s.server = &http.Server{
		Handler:      s,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: time.Minute, // covers the token exchange
		IdleTimeout:  30 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)

	go func() {
		err := s.server.Serve(listener)
		// Only report error if not from graceful shutdown
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	return errCh, nil
}

// Shutdown performs graceful shutdown of the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	if err := s.server.Shutdown(ctx); err != nil {
		_ = s.server.Close()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	return nil
}
