// Package gameserver runs the per-connection session flow: registration,
// the initial world snapshot, edit handling and broadcast fan-out.
package gameserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/YashM20/voxel-builder-threejs/internal/audit"
	"github.com/YashM20/voxel-builder-threejs/internal/observability"
	"github.com/YashM20/voxel-builder-threejs/internal/protocol"
	"github.com/YashM20/voxel-builder-threejs/internal/session"
	"github.com/YashM20/voxel-builder-threejs/internal/world"
)

var (
	// ErrRateLimited marks an edit dropped by the per-session rate limit.
	ErrRateLimited = errors.New("edit rate limit exceeded")
	// ErrBlockNotAllowed marks an edit whose block code is not in the catalog.
	ErrBlockNotAllowed = errors.New("block type not allowed")
)

// Conn is one message-oriented client connection.
//
// ReadMessage returns io.EOF on an orderly close. Close must unblock a
// pending ReadMessage or WriteMessage.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
	RemoteAddr() string
}

// Auditor receives accepted world events.
type Auditor interface {
	Record(e audit.Event)
}

type nopAuditor struct{}

func (nopAuditor) Record(audit.Event) {}

// ConnState is the lifecycle stage of a connection.
type ConnState int

const (
	StateConnecting ConnState = iota
	StateActive
	StateClosed
)

// String returns the lowercase state name.
func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("ConnState(%d)", int(s))
	}
}

// Options tunes a Handler. The zero value is valid.
type Options struct {
	// OutboxSize is the per-connection queue depth; <= 0 uses session.DefaultOutboxSize.
	OutboxSize int
	// EditsPerSecond limits each session's edit rate; 0 disables limiting.
	EditsPerSecond float64
	// EditBurst is the token bucket size when limiting is enabled.
	EditBurst int
	// Catalog restricts placeable block codes; nil allows every non-negative code.
	Catalog *world.Catalog
	// Auditor records accepted events; nil disables auditing.
	Auditor Auditor
}

// Handler owns the shared grid and registry and serves connections.
type Handler struct {
	grid     *world.Grid
	sessions *session.Registry
	hub      *Hub
	opts     Options
	auditor  Auditor
	logger   *zap.Logger

	// applyMu orders grid writes and their update_voxel fan-out identically.
	applyMu sync.Mutex
}

// NewHandler creates a Handler.
//
// Precondition: grid, sessions, hub and logger must be non-nil.
// Postcondition: Returns a Handler ready for Serve.
func NewHandler(grid *world.Grid, sessions *session.Registry, hub *Hub, opts Options, logger *zap.Logger) *Handler {
	aud := opts.Auditor
	if aud == nil {
		aud = nopAuditor{}
	}
	return &Handler{
		grid:     grid,
		sessions: sessions,
		hub:      hub,
		opts:     opts,
		auditor:  aud,
		logger:   logger,
	}
}

// Serve runs one connection until it closes, errors, or ctx is cancelled.
// Flow:
//  1. Register the connection and send init_world directly on conn
//  2. Publish user_joined to every session, the new one included
//  3. Spawn a goroutine forwarding queued frames to conn
//  4. Apply each inbound edit and publish it
//  5. Unregister, publish user_left, close conn
//
// Postcondition: conn is closed and the session unregistered. Returns nil on
// an orderly close or cancellation.
func (h *Handler) Serve(ctx context.Context, conn Conn) error {
	remote := conn.RemoteAddr()
	h.logger.Debug("accepting connection",
		zap.String("remote_addr", remote),
		zap.Stringer("state", StateConnecting),
	)
	out := session.NewOutbox(remote, h.opts.OutboxSize)

	sess := h.sessions.Register(out, remote)
	logger := observability.ForSession(h.logger, sess)
	logger.Info("client connected",
		zap.Stringer("state", StateActive),
		zap.String("color", sess.Color),
		zap.Int("active", h.Active()),
	)

	// init_world is written before the forwarder starts so it is always the
	// first frame; broadcasts racing in meanwhile wait in out.
	initFrame, err := protocol.Encode(protocol.NewInitWorld(h.grid.Snapshot(), sess.ID, sess.Color))
	if err == nil {
		err = conn.WriteMessage(initFrame)
	}
	if err != nil {
		h.teardown(sess, out, conn, logger)
		return fmt.Errorf("sending init_world: %w", err)
	}

	h.auditor.Record(audit.Join(sess.ID, sess.ConnID))
	if _, err := h.hub.Publish(protocol.NewUserJoined(sess.ID, h.Roster())); err != nil {
		logger.Error("publishing user_joined", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		h.forwardFrames(out, conn, logger)
	}()

	err = h.receiveLoop(ctx, sess, conn, logger)
	stopped := ctx.Err() != nil

	h.teardown(sess, out, conn, logger)
	cancel()
	wg.Wait()

	if err != nil && !errors.Is(err, io.EOF) && !stopped {
		return fmt.Errorf("reading from client %d: %w", sess.ID, err)
	}
	return nil
}

// receiveLoop reads frames until the connection fails.
func (h *Handler) receiveLoop(ctx context.Context, sess *session.Session, conn Conn, logger *zap.Logger) error {
	limiter := h.newLimiter()
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, io.EOF) {
				logger.Debug("read failed", zap.Error(err))
			}
			return err
		}
		if err := h.applyEdit(sess, limiter, data); err != nil {
			logger.Warn("dropping edit", zap.Error(err))
		}
	}
}

// forwardFrames drains out into conn until out is closed or a write fails.
func (h *Handler) forwardFrames(out *session.Outbox, conn Conn, logger *zap.Logger) {
	for data := range out.Events() {
		if err := conn.WriteMessage(data); err != nil {
			logger.Debug("forward frame failed", zap.Error(err))
			_ = out.Close()
			return
		}
	}
}

// applyEdit validates one inbound frame and, when accepted, mutates the grid
// and publishes the attributed update.
//
// Postcondition: Returns nil when the edit was applied, or an error wrapping
// protocol.ErrMalformedMessage, ErrRateLimited, ErrBlockNotAllowed or
// world.ErrOutOfBounds; rejected edits leave the grid unchanged and publish nothing.
func (h *Handler) applyEdit(sess *session.Session, limiter *rate.Limiter, data []byte) error {
	req, err := protocol.DecodeEditRequest(data)
	if err != nil {
		return err
	}
	if limiter != nil && !limiter.Allow() {
		return fmt.Errorf("edit at %v: %w", req.Pos, ErrRateLimited)
	}
	if !h.opts.Catalog.Allows(req.BlockType) {
		return fmt.Errorf("edit at %v with block %d: %w", req.Pos, req.BlockType, ErrBlockNotAllowed)
	}

	h.applyMu.Lock()
	if err := h.grid.Set(req.X(), req.Y(), req.Z(), req.BlockType); err != nil {
		h.applyMu.Unlock()
		return err
	}
	delivered, err := h.hub.Publish(protocol.NewUpdateVoxel(req.Pos, req.BlockType, sess.ID, sess.Color))
	h.applyMu.Unlock()
	if err != nil {
		h.logger.Error("publishing update_voxel", zap.Int("client_id", sess.ID), zap.Error(err))
	}

	h.auditor.Record(audit.Edit(sess.ID, sess.ConnID, req.Pos, req.BlockType))
	h.logger.Debug("edit applied",
		zap.Int("client_id", sess.ID),
		zap.Ints("pos", req.Pos[:]),
		zap.String("block", h.blockName(req.BlockType)),
		zap.Int("delivered", delivered),
	)
	return nil
}

// blockName returns the catalog name for code, "empty" for Empty, or the bare code.
func (h *Handler) blockName(code int) string {
	if code == world.Empty {
		return "empty"
	}
	if def, ok := h.opts.Catalog.Lookup(code); ok {
		return def.Name
	}
	return fmt.Sprintf("block %d", code)
}

// teardown unregisters the session and announces its departure. It is safe
// to call more than once.
func (h *Handler) teardown(sess *session.Session, out *session.Outbox, conn Conn, logger *zap.Logger) {
	if _, ok := h.sessions.Unregister(out); ok {
		h.auditor.Record(audit.Leave(sess.ID, sess.ConnID))
		if _, err := h.hub.Publish(protocol.NewUserLeft(sess.ID)); err != nil {
			logger.Error("publishing user_left", zap.Error(err))
		}
		logger.Info("client disconnected",
			zap.Stringer("state", StateClosed),
			zap.Int("undelivered", out.Len()),
			zap.Int("active", h.Active()),
		)
	}
	_ = out.Close()
	_ = conn.Close()
}

func (h *Handler) newLimiter() *rate.Limiter {
	if h.opts.EditsPerSecond <= 0 {
		return nil
	}
	burst := h.opts.EditBurst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(h.opts.EditsPerSecond), burst)
}

// Roster returns every registered session as protocol roster entries, ordered by ID.
func (h *Handler) Roster() []protocol.ClientInfo {
	all := h.sessions.All()
	out := make([]protocol.ClientInfo, 0, len(all))
	for _, s := range all {
		out = append(out, protocol.ClientInfo{ID: s.ID, Color: s.Color, IP: hostOnly(s.RemoteAddr)})
	}
	return out
}

// Active returns the number of registered sessions.
func (h *Handler) Active() int {
	return h.sessions.Count()
}

func hostOnly(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
