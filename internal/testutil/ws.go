// Package testutil provides helpers for integration tests.
package testutil

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/YashM20/voxel-builder-threejs/internal/protocol"
)

// WSClient is a websocket test client speaking the voxel sync protocol.
// A background goroutine reads frames so a quiet period never poisons the
// connection.
type WSClient struct {
	conn    *websocket.Conn
	t       *testing.T
	frames  chan []byte
	done    chan struct{}
	// readErr is set by readLoop before done and frames are closed.
	readErr error
}

// DialWS connects to url, rewriting an http:// or https:// scheme to ws:// or wss://.
//
// Precondition: url must point at a listening websocket endpoint.
// Postcondition: Returns a connected WSClient or fails the test.
func DialWS(t *testing.T, url string) *WSClient {
	t.Helper()
	start := time.Now()

	url = strings.Replace(url, "http://", "ws://", 1)
	url = strings.Replace(url, "https://", "wss://", 1)
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("connecting to %s: %v [%s]", url, err, time.Since(start))
	}
	t.Cleanup(func() {
		conn.Close()
	})

	c := &WSClient{
		conn:   conn,
		t:      t,
		frames: make(chan []byte, 256),
		done:   make(chan struct{}),
	}
	go c.readLoop()

	t.Logf("websocket client connected to %s [%s]", url, time.Since(start))
	return c
}

func (c *WSClient) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.readErr = err
			close(c.done)
			close(c.frames)
			return
		}
		c.frames <- data
	}
}

// Next reads and decodes the next frame.
//
// Postcondition: Returns the decoded envelope, or fails on timeout or decode error.
func (c *WSClient) Next(timeout time.Duration) protocol.Envelope {
	c.t.Helper()
	var data []byte
	select {
	case b, ok := <-c.frames:
		if !ok {
			c.t.Fatalf("reading frame: %v", c.Err())
		}
		data = b
	case <-time.After(timeout):
		c.t.Fatalf("timed out after %s waiting for frame", timeout)
	}
	env, err := protocol.Decode(data)
	if err != nil {
		c.t.Fatalf("decoding frame %s: %v", data, err)
	}
	return env
}

// Expect reads the next frame and fails unless it has the given kind.
func (c *WSClient) Expect(kind protocol.Kind, timeout time.Duration) protocol.Payload {
	c.t.Helper()
	env := c.Next(timeout)
	if env.Type != kind {
		c.t.Fatalf("expected %s, got %s", kind, env.Type)
	}
	return env.Payload
}

// ExpectQuiet fails if any frame arrives within d.
func (c *WSClient) ExpectQuiet(d time.Duration) {
	c.t.Helper()
	select {
	case data, ok := <-c.frames:
		if ok {
			c.t.Fatalf("unexpected frame %s", data)
		}
		c.t.Fatalf("connection closed: %v", c.Err())
	case <-time.After(d):
	}
}

// ExpectClosed fails unless the server closes the connection within timeout.
func (c *WSClient) ExpectClosed(timeout time.Duration) {
	c.t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case _, ok := <-c.frames:
			if !ok {
				return
			}
		case <-deadline:
			c.t.Fatalf("connection still open after %s", timeout)
		}
	}
}

// Err returns the error that ended the read loop, or nil while the
// connection is still open. It may be called any number of times.
func (c *WSClient) Err() error {
	select {
	case <-c.done:
		return c.readErr
	default:
		return nil
	}
}

// SendRaw writes text as one frame.
func (c *WSClient) SendRaw(text string) {
	c.t.Helper()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		c.t.Fatalf("sending %q: %v", text, err)
	}
}

// SendEdit writes an update_voxel edit request.
func (c *WSClient) SendEdit(x, y, z, blockType int) {
	c.t.Helper()
	c.SendRaw(fmt.Sprintf(`{"type":"update_voxel","payload":{"pos":[%d,%d,%d],"blockType":%d}}`, x, y, z, blockType))
}

// Close performs a normal websocket close.
func (c *WSClient) Close() {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.conn.Close()
}
