package gameserver

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/YashM20/voxel-builder-threejs/internal/audit"
	"github.com/YashM20/voxel-builder-threejs/internal/protocol"
	"github.com/YashM20/voxel-builder-threejs/internal/rng"
	"github.com/YashM20/voxel-builder-threejs/internal/session"
	"github.com/YashM20/voxel-builder-threejs/internal/world"
)

// fakeConn is an in-memory Conn. Frames written by the server appear on out;
// frames pushed to in are returned by ReadMessage.
type fakeConn struct {
	addr      string
	in        chan []byte
	out       chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	failWrite bool
}

func newFakeConn(addr string) *fakeConn {
	return &fakeConn{
		addr:   addr,
		in:     make(chan []byte, 16),
		out:    make(chan []byte, 256),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case <-c.closed:
		return nil, io.EOF
	default:
	}
	select {
	case b := <-c.in:
		return b, nil
	case <-c.closed:
		return nil, io.EOF
	}
}

func (c *fakeConn) WriteMessage(data []byte) error {
	if c.failWrite {
		return errors.New("write failed")
	}
	select {
	case <-c.closed:
		return errors.New("use of closed connection")
	default:
	}
	c.out <- data
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) RemoteAddr() string { return c.addr }

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// next returns the next decoded frame written to c or fails the test.
func (c *fakeConn) next(t *testing.T) protocol.Envelope {
	t.Helper()
	select {
	case b := <-c.out:
		env, err := protocol.Decode(b)
		require.NoError(t, err)
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return protocol.Envelope{}
	}
}

// quiet asserts nothing is written to c within d.
func (c *fakeConn) quiet(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case b := <-c.out:
		t.Fatalf("unexpected frame %s", b)
	case <-time.After(d):
	}
}

type recordingAuditor struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingAuditor) Record(e audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e.Event)
}

func (r *recordingAuditor) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type fixture struct {
	grid     *world.Grid
	sessions *session.Registry
	hub      *Hub
	handler  *Handler
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	grid, err := world.NewGrid(16, 16, 16)
	require.NoError(t, err)
	logger := zaptest.NewLogger(t)
	sessions := session.NewRegistry(rng.NewSeededSource(11), nil)
	hub := NewHub(sessions, logger)
	return &fixture{
		grid:     grid,
		sessions: sessions,
		hub:      hub,
		handler:  NewHandler(grid, sessions, hub, opts, logger),
	}
}

// gateTransport blocks its first Send until release is closed.
type gateTransport struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGateTransport() *gateTransport {
	return &gateTransport{entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gateTransport) Send([]byte) error {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	return nil
}

func (g *gateTransport) IsOpen() bool { return true }
func (g *gateTransport) Close() error { return nil }
