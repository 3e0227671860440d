package upstream

import (
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-mud/go-mud-portal/lib/metrics"
	"github.com/go-mud/go-mud-portal/lib/util"
)

// Conn is one TCP connection to a MUD server. A write mutex is held for the
// whole of each Write call, so a logical telnet unit (a 3-byte command, a
// complete SB..SE block, a run of input) is never interleaved with another
// writer's bytes.
type Conn struct {
	writeMu sync.Mutex
	nc      net.Conn
	host    string
	port    int
	idle    time.Duration
	closed  atomic.Bool
}

// NewConn wraps an already-established connection. Dial is the usual
// constructor; NewConn exists for callers that bring their own transport.
func NewConn(nc net.Conn, host string, port int, idle time.Duration) *Conn {
	return &Conn{nc: nc, host: host, port: port, idle: idle}
}

// Read fills p from the server. When an idle timeout is configured the read
// deadline is pushed out first, so a silent server eventually surfaces a
// timeout error.
func (c *Conn) Read(p []byte) (int, error) {
	if c.idle > 0 {
		if err := c.nc.SetReadDeadline(time.Now().Add(c.idle)); err != nil {
			return 0, err
		}
	}
	return c.nc.Read(p)
}

// Write sends one logical frame to the server.
func (c *Conn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed.Load() {
		return 0, util.ErrUpstreamClosed
	}
	n, err := c.nc.Write(p)
	metrics.BytesToUpstream.Add(float64(n))
	return n, err
}

// Close shuts the connection down. Safe to call more than once; only the
// first call reaches the socket.
func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.nc.Close()
}

// Host returns the hostname this connection was dialed with.
func (c *Conn) Host() string { return c.host }

// Port returns the TCP port this connection was dialed with.
func (c *Conn) Port() int { return c.port }

// Addr returns the dialed host:port.
func (c *Conn) Addr() string { return net.JoinHostPort(c.host, strconv.Itoa(c.port)) }
