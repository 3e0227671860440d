package bridge

import (
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/go-mud/go-mud-portal/lib/chat"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// testServerConfig returns a config suitable for loopback tests: a private
// chat log and a teardown short enough to wait for.
func testServerConfig(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Upstream.DefaultHost = "mud.test"
	cfg.Chat.LogPath = filepath.Join(t.TempDir(), "chat.json")
	cfg.Timeouts.Teardown = 5 * time.Millisecond
	return cfg
}

// startServer serves the handler from httptest and returns the server plus
// the HTTP base URL.
func startServer(t *testing.T, cfg *Config) (*Server, string) {
	t.Helper()
	srv, err := NewServer(cfg, testLogger())
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(func() { srv.Close() })
	return srv, ts.URL
}

func dialWS(t *testing.T, httpURL, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(httpURL, "http") + path
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s failed: %v", url, err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func decodeFrame(t *testing.T, frame string) string {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(frame)
	if err != nil {
		t.Fatalf("frame %q is not base64: %v", frame, err)
	}
	return string(raw)
}

// readUntilNotice reads frames until a base64 one decodes to text containing
// the wanted substring. Chat frames along the way are skipped.
func readUntilNotice(t *testing.T, ws *websocket.Conn, contains string) string {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("connection ended before %q arrived: %v", contains, err)
		}
		frame := string(data)
		if strings.HasPrefix(frame, chat.FrameChat) || strings.HasPrefix(frame, chat.FrameChatlog) {
			continue
		}
		if text := decodeFrame(t, frame); strings.Contains(text, contains) {
			return text
		}
	}
}

func TestNewServer_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ListenAddr = ""

	_, err := NewServer(cfg, testLogger())
	if err == nil {
		t.Fatal("expected a config error")
	}
	if !strings.Contains(err.Error(), "ListenAddr") {
		t.Errorf("error should name the field, got: %v", err)
	}
}

func TestServer_AcceptsSession(t *testing.T) {
	srv, url := startServer(t, testServerConfig(t))

	ws := dialWS(t, url, "/")
	waitFor(t, "session registration", func() bool { return srv.SessionCount() == 1 })

	ws.Close()
	waitFor(t, "session teardown", func() bool { return srv.SessionCount() == 0 })
}

func TestServer_ChatRoundTrip(t *testing.T) {
	srv, url := startServer(t, testServerConfig(t))

	ws := dialWS(t, url, "/")
	waitFor(t, "session registration", func() bool { return srv.SessionCount() == 1 })

	post := `{"name":"alice","chat":{"channel":"portal","name":"alice","msg":"hi all"}}`
	if err := ws.WriteMessage(websocket.TextMessage, []byte(post)); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	// Joining delivers the chat log first, then the post itself.
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var sawChatlog, sawPost bool
	for !sawPost {
		_, data, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		frame := string(data)
		switch {
		case strings.HasPrefix(frame, chat.FrameChatlog):
			sawChatlog = true
		case strings.HasPrefix(frame, chat.FrameChat):
			if !sawChatlog {
				t.Error("chat post arrived before the chat log")
			}
			if !strings.Contains(frame, "hi all") {
				t.Errorf("post frame missing message: %q", frame)
			}
			sawPost = true
		default:
			t.Errorf("unexpected frame %q", frame)
		}
	}
}

func TestServer_AllowlistRefusal(t *testing.T) {
	cfg := testServerConfig(t)
	cfg.Upstream.OnlyDefaultHost = true
	srv, url := startServer(t, cfg)

	ws := dialWS(t, url, "/")
	waitFor(t, "session registration", func() bool { return srv.SessionCount() == 1 })

	frame := `{"host":"other.example","port":4000,"connect":true}`
	if err := ws.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	text := readUntilNotice(t, ws, "does not allow connections")
	if !strings.Contains(text, "mud.test") {
		t.Errorf("refusal should name the served host, got %q", text)
	}

	// The refused session is torn down shortly after.
	waitFor(t, "session teardown", func() bool { return srv.SessionCount() == 0 })
}

func TestServer_RefusesWhenClosed(t *testing.T) {
	srv, url := startServer(t, testServerConfig(t))

	if err := srv.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	resp, err := http.Get(url + "/")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusServiceUnavailable)
	}
}

func TestServer_ShutdownNotifiesSessions(t *testing.T) {
	srv, url := startServer(t, testServerConfig(t))

	ws := dialWS(t, url, "/")
	waitFor(t, "session registration", func() bool { return srv.SessionCount() == 1 })

	go srv.Close()

	text := readUntilNotice(t, ws, "going down")
	if text == "" {
		t.Error("expected a going-down notice")
	}

	// The socket drops after the notice.
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}

	select {
	case <-srv.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("server never finished closing")
	}
}

func TestServer_CloseIdempotent(t *testing.T) {
	srv, _ := startServer(t, testServerConfig(t))

	if err := srv.Close(); err != nil {
		t.Fatalf("first close failed: %v", err)
	}
	if err := srv.Close(); err != nil {
		t.Errorf("second close should be a no-op, got: %v", err)
	}
}

func TestServer_MetricsEndpoint(t *testing.T) {
	_, url := startServer(t, testServerConfig(t))

	resp, err := http.Get(url + "/metrics")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if !strings.Contains(string(body), "mudportal_") {
		t.Error("scrape output should carry the portal collectors")
	}
}

func TestServer_MetricsDisabled(t *testing.T) {
	cfg := testServerConfig(t)
	cfg.Metrics = false
	_, url := startServer(t, cfg)

	resp, err := http.Get(url + "/metrics")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	// /metrics falls through to the WebSocket endpoint, which refuses a
	// plain GET during the upgrade.
	if resp.StatusCode == http.StatusOK {
		t.Error("metrics should not be served when disabled")
	}
}

func TestServer_CustomWSPath(t *testing.T) {
	cfg := testServerConfig(t)
	cfg.WSPath = "/portal"
	srv, url := startServer(t, cfg)

	ws := dialWS(t, url, "/portal")
	waitFor(t, "session registration", func() bool { return srv.SessionCount() == 1 })
	ws.Close()

	// The root path is not an endpoint now.
	if _, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(url, "http")+"/", nil); err == nil {
		t.Error("dial outside the configured path should fail")
	}
}

func TestServer_ListenAndServe(t *testing.T) {
	cfg := testServerConfig(t)
	cfg.ListenAddr = "127.0.0.1:0"
	srv, err := NewServer(cfg, testLogger())
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}

	served := make(chan error, 1)
	go func() { served <- srv.ListenAndServe() }()

	waitFor(t, "listener", func() bool { return srv.Addr() != "" })

	ws, _, err := websocket.DefaultDialer.Dial("ws://"+srv.Addr()+"/", nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	waitFor(t, "session registration", func() bool { return srv.SessionCount() == 1 })
	ws.Close()

	if err := srv.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	select {
	case err := <-served:
		if err != nil {
			t.Errorf("ListenAndServe returned %v after close", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ListenAndServe never returned")
	}
}
