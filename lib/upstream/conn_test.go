package upstream

import (
	"bytes"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/go-mud/go-mud-portal/lib/util"
)

func TestConn_WriteReachesServer(t *testing.T) {
	server, client := net.Pipe()
	conn := NewConn(client, "mud.example", 4000, 0)
	defer conn.Close()
	defer server.Close()

	done := make(chan []byte, 1)
	go func() {
		p := make([]byte, 16)
		n, _ := server.Read(p)
		done <- p[:n]
	}()

	if _, err := conn.Write([]byte{255, 251, 24}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := <-done; !bytes.Equal(got, []byte{255, 251, 24}) {
		t.Errorf("server read %v, want the WILL TTYPE frame", got)
	}
}

func TestConn_CloseIsIdempotent(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	conn := NewConn(client, "mud.example", 4000, 0)

	if err := conn.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := conn.Write([]byte("x")); !errors.Is(err, util.ErrUpstreamClosed) {
		t.Errorf("Write after Close = %v, want ErrUpstreamClosed", err)
	}
}

func TestConn_IdleTimeoutSurfacesAsNetError(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	conn := NewConn(client, "mud.example", 4000, 20*time.Millisecond)
	defer conn.Close()

	_, err := conn.Read(make([]byte, 1))
	var netErr net.Error
	if !errors.As(err, &netErr) || !netErr.Timeout() {
		t.Fatalf("Read on a silent server = %v, want a timeout", err)
	}
}
