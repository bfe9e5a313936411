// Package static serves the browser client's files over plain HTTP. It is
// independent of the websocket transport and shares no connection state with it.
package static

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Server is a read-only file server.
type Server struct {
	addr   string
	dir    string
	logger *zap.Logger

	mu       sync.Mutex
	stopped  bool
	httpSrv  *http.Server
	listener net.Listener
}

// NewServer creates a Server serving dir on addr.
//
// Precondition: dir should name an existing directory; logger must be non-nil.
func NewServer(addr, dir string, logger *zap.Logger) *Server {
	return &Server{addr: addr, dir: dir, logger: logger}
}

// Handler returns the file-serving handler. Only GET and HEAD are accepted.
func (s *Server) Handler() http.Handler {
	files := http.FileServer(http.Dir(s.dir))
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			rw.Header().Set("Allow", "GET, HEAD")
			http.Error(rw, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		files.ServeHTTP(rw, r)
	})
}

// ListenAndServe binds the configured address and serves until Stop.
//
// Postcondition: Returns nil after Stop, or the listen/serve error.
func (s *Server) ListenAndServe() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.addr, err)
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		_ = lis.Close()
		return nil
	}
	s.httpSrv = srv
	s.listener = lis
	s.mu.Unlock()

	s.logger.Info("static file server listening",
		zap.String("addr", lis.Addr().String()),
		zap.String("dir", s.dir),
	)
	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving static files: %w", err)
	}
	return nil
}

// Addr returns the bound address, or "" before ListenAndServe.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() {
	s.mu.Lock()
	s.stopped = true
	srv := s.httpSrv
	s.mu.Unlock()
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		s.logger.Warn("static file server shutdown", zap.Error(err))
	}
}
