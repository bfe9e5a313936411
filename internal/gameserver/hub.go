package gameserver

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/YashM20/voxel-builder-threejs/internal/protocol"
	"github.com/YashM20/voxel-builder-threejs/internal/session"
)

// Hub fans encoded envelopes out to every registered session.
// All methods are safe for concurrent use.
type Hub struct {
	sessions *session.Registry
	logger   *zap.Logger
}

// NewHub creates a Hub over the given registry.
//
// Precondition: sessions and logger must be non-nil.
func NewHub(sessions *session.Registry, logger *zap.Logger) *Hub {
	return &Hub{sessions: sessions, logger: logger}
}

// Publish encodes env once and enqueues the identical bytes for every open
// session, the originator included. The registry is snapshotted before any
// frame is queued, so no lock is held while delivering.
//
// Postcondition: Returns the number of sessions the frame was queued for, or
// an error if env could not be encoded. Per-session failures never abort delivery.
func (h *Hub) Publish(env protocol.Envelope) (int, error) {
	data, err := protocol.Encode(env)
	if err != nil {
		return 0, fmt.Errorf("publishing %s: %w", env.Type, err)
	}

	delivered := 0
	for _, sess := range h.sessions.All() {
		if h.deliver(sess, env.Type, data) {
			delivered++
		}
	}
	return delivered, nil
}

func (h *Hub) deliver(sess *session.Session, kind protocol.Kind, data []byte) bool {
	if !sess.Transport.IsOpen() {
		return false
	}
	err := sess.Transport.Send(data)
	if err == nil {
		return true
	}
	if errors.Is(err, session.ErrOutboxFull) {
		// The client resyncs from a fresh init_world after reconnecting.
		h.logger.Warn("client not draining, closing connection",
			zap.Int("client_id", sess.ID),
			zap.String("conn_id", sess.ConnID),
			zap.String("type", string(kind)),
		)
		_ = sess.Transport.Close()
		return false
	}
	h.logger.Debug("skipping closed transport",
		zap.Int("client_id", sess.ID),
		zap.Error(err),
	)
	return false
}
