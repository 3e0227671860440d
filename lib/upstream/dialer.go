// Package upstream manages the TCP leg to the MUD server: the dialer with
// its negative-result cache and the connection wrapper that keeps logical
// telnet frames atomic on the wire.
package upstream

import (
	"net"
	"strconv"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"github.com/go-mud/go-mud-portal/lib/metrics"
	"github.com/go-mud/go-mud-portal/lib/util"
)

const (
	// failCacheSize bounds how many dead targets are remembered.
	failCacheSize = 256

	// failCacheTTL is how long a dial failure suppresses retries to the
	// same target. Entries expire on their own; a successful dial clears
	// the entry early.
	failCacheTTL = 15 * time.Second
)

// Dialer opens TCP connections to MUD servers. Targets that just failed are
// kept in an expirable cache so a reconnect-happy browser cannot hammer a
// dead server.
type Dialer struct {
	timeout time.Duration
	idle    time.Duration
	log     *logrus.Logger
	failed  *expirable.LRU[string, string]

	// dial is swappable in tests.
	dial func(network, addr string, timeout time.Duration) (net.Conn, error)
}

// NewDialer returns a Dialer. timeout bounds each dial attempt; idle, when
// positive, is applied as a read deadline to every connection it opens.
func NewDialer(timeout, idle time.Duration, log *logrus.Logger) *Dialer {
	return &Dialer{
		timeout: timeout,
		idle:    idle,
		log:     log,
		failed:  expirable.NewLRU[string, string](failCacheSize, nil, failCacheTTL),
		dial:    net.DialTimeout,
	}
}

// Dial connects to host:port. Failures are returned as a util.DialError and
// remembered, so dials to the same target fail fast with
// util.ErrRecentlyUnreachable until the cache entry expires.
func (d *Dialer) Dial(host string, port int) (*Conn, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	if reason, ok := d.failed.Get(addr); ok {
		metrics.DialFailures.Inc()
		d.log.WithField("reason", reason).Debugf("suppressing dial to %s", addr)
		return nil, util.NewDialError(host, port, util.ErrRecentlyUnreachable)
	}

	nc, err := d.dial("tcp", addr, d.timeout)
	if err != nil {
		metrics.DialFailures.Inc()
		d.failed.Add(addr, err.Error())
		return nil, util.NewDialError(host, port, err)
	}
	d.failed.Remove(addr)
	return NewConn(nc, host, port, d.idle), nil
}
