// Package session tracks connected participants, their identities and their
// outbound frame queues.
package session

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/YashM20/voxel-builder-threejs/internal/rng"
)

// DefaultPalette is the set of display colours assigned to new sessions.
var DefaultPalette = []string{
	"#FF6B6B", "#4ECDC4", "#FFD166", "#06D6A0", "#118AB2",
	"#EF476F", "#FFC43D", "#1B9AAA", "#6A4C93", "#F72585",
}

// Transport is the handle a Session is registered under. Outbox is the
// production implementation.
type Transport interface {
	Send(data []byte) error
	IsOpen() bool
	Close() error
}

// Session is one connected participant. Fields are immutable after Register.
type Session struct {
	// ID is unique for the process lifetime and never reused.
	ID int
	// Color is a palette entry; several live sessions may share one.
	Color string
	// RemoteAddr is the peer address reported by the transport.
	RemoteAddr string
	// ConnID correlates log lines for one connection.
	ConnID string
	// Transport delivers frames to the participant.
	Transport Transport
}

// Registry maps transports to sessions.
// All methods are safe for concurrent use.
type Registry struct {
	palette []string
	src     rng.Source

	mu       sync.RWMutex
	nextID   int
	sessions map[Transport]*Session
}

// NewRegistry creates an empty Registry.
//
// Precondition: src must be non-nil. An empty palette selects DefaultPalette.
// Postcondition: The first Register returns ID 1.
func NewRegistry(src rng.Source, palette []string) *Registry {
	if len(palette) == 0 {
		palette = DefaultPalette
	}
	p := make([]string, len(palette))
	copy(p, palette)
	return &Registry{
		palette:  p,
		src:      src,
		nextID:   1,
		sessions: make(map[Transport]*Session),
	}
}

// Register allocates the next identity and a random colour for t.
//
// Precondition: t must be non-nil and not already registered.
// Postcondition: Returns a Session whose ID is greater than every previously issued ID.
func (r *Registry) Register(t Transport, remoteAddr string) *Session {
	color := r.palette[r.src.Intn(len(r.palette))]
	connID := uuid.NewString()

	r.mu.Lock()
	defer r.mu.Unlock()

	sess := &Session{
		ID:         r.nextID,
		Color:      color,
		RemoteAddr: remoteAddr,
		ConnID:     connID,
		Transport:  t,
	}
	r.nextID++
	r.sessions[t] = sess
	return sess
}

// Unregister removes the session registered under t.
//
// Postcondition: Returns the removed session and true, or nil and false when
// t was not registered. Repeated calls are no-ops.
func (r *Registry) Unregister(t Transport) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[t]
	if !ok {
		return nil, false
	}
	delete(r.sessions, t)
	return sess, true
}

// Lookup returns the session registered under t.
func (r *Registry) Lookup(t Transport) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[t]
	return sess, ok
}

// All returns a point-in-time copy of every registered session, ordered by ID.
//
// Postcondition: The returned slice is owned by the caller.
func (r *Registry) All() []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
