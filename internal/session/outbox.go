package session

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrOutboxClosed is returned by Send after Close.
	ErrOutboxClosed = errors.New("outbox closed")
	// ErrOutboxFull is returned by Send when the peer is not draining its queue.
	ErrOutboxFull = errors.New("outbox full")
)

// DefaultOutboxSize is the queue depth used when a non-positive size is requested.
const DefaultOutboxSize = 256

// Outbox is a bounded queue of encoded frames for one connection. Broadcasters
// enqueue without blocking; the connection's writer goroutine drains Events.
type Outbox struct {
	id     string
	events chan []byte
	mu     sync.Mutex
	closed bool
}

// NewOutbox creates an open Outbox.
//
// Precondition: id identifies the connection in error messages.
// Postcondition: Returns an Outbox with an open events channel of capacity size
// (DefaultOutboxSize when size <= 0).
func NewOutbox(id string, size int) *Outbox {
	if size <= 0 {
		size = DefaultOutboxSize
	}
	return &Outbox{
		id:     id,
		events: make(chan []byte, size),
	}
}

// Send enqueues data without blocking.
//
// Precondition: data must be a non-nil byte slice that is never mutated afterwards.
// Postcondition: data is enqueued, or an error wrapping ErrOutboxClosed or ErrOutboxFull.
func (o *Outbox) Send(data []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return fmt.Errorf("outbox %s: %w", o.id, ErrOutboxClosed)
	}
	select {
	case o.events <- data:
		return nil
	default:
		return fmt.Errorf("outbox %s: %w", o.id, ErrOutboxFull)
	}
}

// Events returns the read-only frame channel. It is closed by Close.
func (o *Outbox) Events() <-chan []byte {
	return o.events
}

// Close marks the outbox closed and closes the events channel. It is idempotent.
//
// Postcondition: Further Send calls return ErrOutboxClosed.
func (o *Outbox) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.closed {
		o.closed = true
		close(o.events)
	}
	return nil
}

// IsOpen reports whether the outbox still accepts frames.
func (o *Outbox) IsOpen() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return !o.closed
}

// Len returns the number of queued frames.
func (o *Outbox) Len() int {
	return len(o.events)
}
