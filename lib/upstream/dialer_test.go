package upstream

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/go-mud/go-mud-portal/lib/util"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func TestDialer_Success(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()

	d := NewDialer(time.Second, 0, testLogger())
	d.dial = func(network, addr string, timeout time.Duration) (net.Conn, error) {
		if network != "tcp" || addr != "mud.example:4000" {
			t.Errorf("dial %s %s, want tcp mud.example:4000", network, addr)
		}
		return client, nil
	}

	conn, err := d.Dial("mud.example", 4000)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	if conn.Host() != "mud.example" || conn.Port() != 4000 {
		t.Errorf("conn target = %s:%d, want mud.example:4000", conn.Host(), conn.Port())
	}
	if conn.Addr() != "mud.example:4000" {
		t.Errorf("Addr = %q, want mud.example:4000", conn.Addr())
	}
}

func TestDialer_FailureIsCached(t *testing.T) {
	d := NewDialer(time.Second, 0, testLogger())
	calls := 0
	d.dial = func(network, addr string, timeout time.Duration) (net.Conn, error) {
		calls++
		return nil, errors.New("connection refused")
	}

	_, err := d.Dial("dead.example", 23)
	if err == nil {
		t.Fatal("first dial to a dead host succeeded")
	}
	var dialErr *util.DialError
	if !errors.As(err, &dialErr) {
		t.Fatalf("error = %T, want *util.DialError", err)
	}

	// The second attempt is answered from the cache without dialing.
	_, err = d.Dial("dead.example", 23)
	if !errors.Is(err, util.ErrRecentlyUnreachable) {
		t.Fatalf("second dial error = %v, want ErrRecentlyUnreachable", err)
	}
	if calls != 1 {
		t.Errorf("dial func called %d times, want 1", calls)
	}
}

func TestDialer_SuccessClearsCacheEntry(t *testing.T) {
	d := NewDialer(time.Second, 0, testLogger())
	fail := true
	d.dial = func(network, addr string, timeout time.Duration) (net.Conn, error) {
		if fail {
			return nil, errors.New("connection refused")
		}
		server, client := net.Pipe()
		_ = server
		return client, nil
	}

	if _, err := d.Dial("flaky.example", 4000); err == nil {
		t.Fatal("expected first dial to fail")
	}

	// Simulate the entry expiring, then a successful dial.
	d.failed.Remove("flaky.example:4000")
	fail = false
	conn, err := d.Dial("flaky.example", 4000)
	if err != nil {
		t.Fatalf("Dial after recovery: %v", err)
	}
	conn.Close()
	if _, ok := d.failed.Get("flaky.example:4000"); ok {
		t.Error("successful dial left a negative cache entry")
	}
}

func TestDialer_DistinctTargetsDoNotShareCacheEntries(t *testing.T) {
	d := NewDialer(time.Second, 0, testLogger())
	d.dial = func(network, addr string, timeout time.Duration) (net.Conn, error) {
		if addr == "dead.example:23" {
			return nil, errors.New("connection refused")
		}
		server, client := net.Pipe()
		_ = server
		return client, nil
	}

	if _, err := d.Dial("dead.example", 23); err == nil {
		t.Fatal("expected dial to dead.example to fail")
	}
	conn, err := d.Dial("dead.example", 24)
	if err != nil {
		t.Fatalf("dial to a different port was suppressed: %v", err)
	}
	conn.Close()
}
