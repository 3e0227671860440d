package bridge

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/go-mud/go-mud-portal/lib/util"
)

// WSClient adapts an upgraded WebSocket connection to the session's client
// leg. Reads stay on the session's pump goroutine; writes arrive from the
// upstream pump, the chat bus, and teardown notices, so they serialize on a
// mutex and each carry a deadline.
type WSClient struct {
	writeMu sync.Mutex
	ws      *websocket.Conn

	// remoteAddr is the browser's host, cached for logging after close.
	remoteAddr string

	writeTimeout time.Duration
	createdAt    time.Time
	closed       atomic.Bool
}

// NewWSClient wraps an upgraded connection. writeTimeout bounds each frame
// write; zero writes without a deadline.
func NewWSClient(ws *websocket.Conn, writeTimeout time.Duration) *WSClient {
	host := ws.RemoteAddr().String()
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return &WSClient{
		ws:           ws,
		remoteAddr:   host,
		writeTimeout: writeTimeout,
		createdAt:    time.Now(),
	}
}

// ReadFrame blocks for the next text frame. Non-text frames are not part of
// the protocol and are skipped.
func (c *WSClient) ReadFrame() (string, error) {
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			return "", err
		}
		if kind != websocket.TextMessage {
			continue
		}
		return string(data), nil
	}
}

// WriteFrame sends one text frame. Safe for concurrent use.
func (c *WSClient) WriteFrame(frame string) error {
	if c.closed.Load() {
		return util.ErrSessionClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writeTimeout > 0 {
		_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.ws.WriteMessage(websocket.TextMessage, []byte(frame))
}

// Close sends a best-effort close frame and drops the connection. Safe to
// call more than once; later calls are no-ops.
func (c *WSClient) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	// WriteControl is safe alongside in-flight writes, so a browser that is
	// still draining sees a clean close instead of a dropped socket.
	deadline := time.Now().Add(time.Second)
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return c.ws.Close()
}

// RemoteAddr returns the browser's host.
func (c *WSClient) RemoteAddr() string {
	return c.remoteAddr
}

// CreatedAt returns when the connection was accepted.
func (c *WSClient) CreatedAt() time.Time {
	return c.createdAt
}

// Age returns how long the connection has been open.
func (c *WSClient) Age() time.Duration {
	return time.Since(c.createdAt)
}
