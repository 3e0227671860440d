package handler

import (
	"errors"
	"io"
	"reflect"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/go-mud/go-mud-portal/lib/protocol"
)

// callSession records every PortalSession call so tests can assert both
// values and ordering.
type callSession struct {
	calls    []string
	host     string
	port     int
	ttype    string
	name     string
	client   string
	mccp     bool
	utf8     bool
	debug    bool
	chat     map[string]any
	raw      []byte
	msdpKey  string
	msdpVals []string
	rawErr   error
}

func (c *callSession) SetHost(h string) {
	c.calls = append(c.calls, "host")
	c.host = h
}

func (c *callSession) SetPort(p int) {
	c.calls = append(c.calls, "port")
	c.port = p
}

func (c *callSession) SetTerminalType(t string) {
	c.calls = append(c.calls, "ttype")
	c.ttype = t
}

func (c *callSession) SetName(n string) {
	c.calls = append(c.calls, "name")
	c.name = n
}

func (c *callSession) SetClientID(id string) {
	c.calls = append(c.calls, "client")
	c.client = id
}

func (c *callSession) EnableMCCP() {
	c.calls = append(c.calls, "mccp")
	c.mccp = true
}

func (c *callSession) EnableUTF8() {
	c.calls = append(c.calls, "utf8")
	c.utf8 = true
}

func (c *callSession) EnableDebug() {
	c.calls = append(c.calls, "debug")
	c.debug = true
}

func (c *callSession) Chat(payload map[string]any) {
	c.calls = append(c.calls, "chat")
	c.chat = payload
}

func (c *callSession) Connect() {
	c.calls = append(c.calls, "connect")
}

func (c *callSession) WriteRaw(p []byte) error {
	c.calls = append(c.calls, "raw")
	c.raw = append([]byte(nil), p...)
	return c.rawErr
}

func (c *callSession) SendMSDP(key string, values []string) error {
	c.calls = append(c.calls, "msdp")
	c.msdpKey = key
	c.msdpVals = append([]string(nil), values...)
	return nil
}

func testCtx(s PortalSession) *Context {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return &Context{Session: s, Log: logrus.NewEntry(log)}
}

func mustControl(t *testing.T, frame string) *protocol.Control {
	t.Helper()
	ctl, err := protocol.ParseControl([]byte(frame))
	if err != nil {
		t.Fatalf("ParseControl(%q): %v", frame, err)
	}
	return ctl
}

func TestSettings_AppliesOnlyPresentKeys(t *testing.T) {
	tests := []struct {
		name      string
		frame     string
		wantCalls []string
	}{
		{
			name:      "full target",
			frame:     `{"host":"mud.example.com","port":4000}`,
			wantCalls: []string{"host", "port"},
		},
		{
			name:      "identity only",
			frame:     `{"name":"alice","client":"webmud"}`,
			wantCalls: []string{"name", "client"},
		},
		{
			name:      "zero values skipped",
			frame:     `{"host":"","port":0,"ttype":""}`,
			wantCalls: nil,
		},
		{
			name:      "ttype",
			frame:     `{"ttype":"ansi"}`,
			wantCalls: []string{"ttype"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &callSession{}
			if err := (&Settings{}).Handle(testCtx(s), mustControl(t, tt.frame)); err != nil {
				t.Fatalf("Handle: %v", err)
			}
			if !reflect.DeepEqual(s.calls, tt.wantCalls) {
				t.Errorf("calls = %v, want %v", s.calls, tt.wantCalls)
			}
		})
	}
}

func TestSettings_Values(t *testing.T) {
	s := &callSession{}
	ctl := mustControl(t, `{"host":"mud.example.com","port":4000,"ttype":"xterm","name":"alice","client":"webmud"}`)
	if err := (&Settings{}).Handle(testCtx(s), ctl); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if s.host != "mud.example.com" || s.port != 4000 || s.ttype != "xterm" {
		t.Errorf("target = %q:%d ttype %q", s.host, s.port, s.ttype)
	}
	if s.name != "alice" || s.client != "webmud" {
		t.Errorf("identity = %q/%q", s.name, s.client)
	}
}

func TestFeatures_TruthyGates(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		mccp  bool
		utf8  bool
		debug bool
	}{
		{name: "all on", frame: `{"mccp":1,"utf8":true,"debug":"yes"}`, mccp: true, utf8: true, debug: true},
		{name: "falsy stay off", frame: `{"mccp":0,"utf8":false,"debug":""}`},
		{name: "absent stay off", frame: `{}`},
		{name: "mccp only", frame: `{"mccp":true}`, mccp: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &callSession{}
			if err := (&Features{}).Handle(testCtx(s), mustControl(t, tt.frame)); err != nil {
				t.Fatalf("Handle: %v", err)
			}
			if s.mccp != tt.mccp || s.utf8 != tt.utf8 || s.debug != tt.debug {
				t.Errorf("mccp/utf8/debug = %v/%v/%v, want %v/%v/%v",
					s.mccp, s.utf8, s.debug, tt.mccp, tt.utf8, tt.debug)
			}
		})
	}
}

func TestChat_ForwardsPayload(t *testing.T) {
	s := &callSession{}
	ctl := mustControl(t, `{"chat":{"channel":"chat","msg":"hi all","name":"alice"}}`)
	if err := (&Chat{}).Handle(testCtx(s), ctl); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if s.chat == nil {
		t.Fatal("chat payload not forwarded")
	}
	if got := s.chat["msg"]; got != "hi all" {
		t.Errorf("msg = %v, want %q", got, "hi all")
	}
}

func TestChat_AbsentAndNullIgnored(t *testing.T) {
	for _, frame := range []string{`{}`, `{"chat":null}`} {
		s := &callSession{}
		if err := (&Chat{}).Handle(testCtx(s), mustControl(t, frame)); err != nil {
			t.Fatalf("Handle(%q): %v", frame, err)
		}
		if len(s.calls) != 0 {
			t.Errorf("Handle(%q) made calls %v", frame, s.calls)
		}
	}
}

func TestConnect_TruthyOnly(t *testing.T) {
	tests := []struct {
		frame string
		want  bool
	}{
		{`{"connect":true}`, true},
		{`{"connect":1}`, true},
		{`{"connect":false}`, false},
		{`{"connect":0}`, false},
		{`{}`, false},
	}
	for _, tt := range tests {
		s := &callSession{}
		if err := (&Connect{}).Handle(testCtx(s), mustControl(t, tt.frame)); err != nil {
			t.Fatalf("Handle(%q): %v", tt.frame, err)
		}
		connected := len(s.calls) == 1 && s.calls[0] == "connect"
		if connected != tt.want {
			t.Errorf("Handle(%q) connect = %v, want %v", tt.frame, connected, tt.want)
		}
	}
}

func TestBinary_WritesBytesVerbatim(t *testing.T) {
	s := &callSession{}
	ctl := mustControl(t, `{"bin":[255,253,24]}`)
	if err := (&Binary{}).Handle(testCtx(s), ctl); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	want := []byte{255, 253, 24}
	if !reflect.DeepEqual(s.raw, want) {
		t.Errorf("raw = %v, want %v", s.raw, want)
	}
}

func TestBinary_EmptyIgnored(t *testing.T) {
	s := &callSession{}
	if err := (&Binary{}).Handle(testCtx(s), mustControl(t, `{"bin":[]}`)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(s.calls) != 0 {
		t.Errorf("empty bin made calls %v", s.calls)
	}
}

func TestDefault_AppliesWholeFrameInOrder(t *testing.T) {
	s := &callSession{}
	frame := `{"host":"mud.example.com","port":4000,"name":"alice","mccp":true,` +
		`"chat":{"msg":"hi"},"connect":true,"bin":[241],"msdp":{"key":"REPORT","val":"HEALTH"}}`
	Default().Apply(testCtx(s), mustControl(t, frame))

	want := []string{"host", "port", "name", "mccp", "chat", "connect", "raw", "msdp"}
	if !reflect.DeepEqual(s.calls, want) {
		t.Errorf("calls = %v, want %v", s.calls, want)
	}
}

func TestChain_HandlerErrorDoesNotStopChain(t *testing.T) {
	s := &callSession{rawErr: errors.New("no upstream")}
	frame := `{"bin":[255],"msdp":{"key":"REPORT","val":"HEALTH"}}`
	Default().Apply(testCtx(s), mustControl(t, frame))

	want := []string{"raw", "msdp"}
	if !reflect.DeepEqual(s.calls, want) {
		t.Errorf("calls = %v, want %v", s.calls, want)
	}
}
