// Package ws serves the voxel sync protocol over WebSocket.
package ws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/YashM20/voxel-builder-threejs/internal/gameserver"
)

// Sessions runs one client connection to completion.
type Sessions interface {
	Serve(ctx context.Context, conn gameserver.Conn) error
}

// Config holds transport settings.
type Config struct {
	// Addr is the "host:port" listen address.
	Addr string
	// WriteTimeout bounds each frame write; 0 disables the deadline.
	WriteTimeout time.Duration
	// MaxMessageBytes caps inbound frame size; 0 leaves it unlimited.
	MaxMessageBytes int64
	// ShutdownTimeout bounds graceful HTTP shutdown in Stop.
	ShutdownTimeout time.Duration
	// Fallback serves non-upgrade requests on /; nil upgrades every request.
	Fallback http.Handler
}

// Server upgrades HTTP requests to websockets and hands them to Sessions.
type Server struct {
	cfg      Config
	sessions Sessions
	logger   *zap.Logger
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
	conns  sync.WaitGroup

	mu       sync.Mutex
	httpSrv  *http.Server
	listener net.Listener
}

// NewServer creates a Server.
//
// Precondition: sessions and logger must be non-nil.
func NewServer(cfg Config, sessions Sessions, logger *zap.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:      cfg,
		sessions: sessions,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// Handler returns the HTTP handler accepting websocket upgrades on /ws and /.
// With a Fallback configured, plain requests outside /ws go to the Fallback so
// a page and its sync endpoint can share one origin.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleUpgrade)
	mux.HandleFunc("/", s.handleRoot)
	return mux
}

func (s *Server) handleRoot(rw http.ResponseWriter, r *http.Request) {
	if s.cfg.Fallback != nil && !websocket.IsWebSocketUpgrade(r) {
		s.cfg.Fallback.ServeHTTP(rw, r)
		return
	}
	s.handleUpgrade(rw, r)
}

func (s *Server) handleUpgrade(rw http.ResponseWriter, r *http.Request) {
	if s.ctx.Err() != nil {
		http.Error(rw, "shutting down", http.StatusServiceUnavailable)
		return
	}
	wsConn, err := s.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	s.conns.Add(1)
	defer s.conns.Done()
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("connection handler panicked",
				zap.String("remote_addr", r.RemoteAddr),
				zap.Any("panic", p),
			)
			_ = wsConn.Close()
		}
	}()

	conn := NewConn(wsConn, r.RemoteAddr, s.cfg.WriteTimeout, s.cfg.MaxMessageBytes)
	if err := s.sessions.Serve(s.ctx, conn); err != nil {
		s.logger.Info("connection ended with error",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
	}
}

// ListenAndServe binds cfg.Addr and serves until Stop is called.
//
// Postcondition: Returns nil after Stop, or the listen/serve error.
func (s *Server) ListenAndServe() error {
	lis, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(lis)
}

// Serve accepts connections on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		_ = lis.Close()
		return nil
	}
	s.httpSrv = srv
	s.listener = lis
	s.mu.Unlock()

	s.logger.Info("websocket transport listening", zap.String("addr", lis.Addr().String()))
	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving websocket transport: %w", err)
	}
	return nil
}

// Addr returns the bound listen address, or "" before Serve.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop closes the listener, drops every live connection and waits for their
// handlers to finish.
func (s *Server) Stop() {
	s.cancel()

	s.mu.Lock()
	srv := s.httpSrv
	s.mu.Unlock()
	if srv != nil {
		timeout := s.cfg.ShutdownTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			s.logger.Warn("websocket transport shutdown", zap.Error(err))
		}
	}
	s.conns.Wait()
}
