package ws

import (
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn adapts a gorilla websocket to gameserver.Conn.
type Conn struct {
	ws           *websocket.Conn
	remote       string
	writeTimeout time.Duration

	writeMu sync.Mutex
}

// NewConn wraps ws.
//
// Precondition: ws must be an upgraded connection; maxMessageBytes > 0 sets
// the inbound frame limit.
func NewConn(ws *websocket.Conn, remote string, writeTimeout time.Duration, maxMessageBytes int64) *Conn {
	if maxMessageBytes > 0 {
		ws.SetReadLimit(maxMessageBytes)
	}
	return &Conn{ws: ws, remote: remote, writeTimeout: writeTimeout}
}

// ReadMessage returns the next text or binary frame. A close frame with a
// normal status is reported as io.EOF.
func (c *Conn) ReadMessage() ([]byte, error) {
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				return nil, io.EOF
			}
			return nil, err
		}
		if mt == websocket.TextMessage || mt == websocket.BinaryMessage {
			return data, nil
		}
	}
}

// WriteMessage sends data as one text frame.
func (c *Conn) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.writeTimeout > 0 {
		_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Close closes the underlying network connection without a close handshake.
func (c *Conn) Close() error {
	return c.ws.Close()
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() string {
	return c.remote
}
