// Package bridge runs the portal's front door: it upgrades browser
// connections to WebSocket, hands each one to a session, tracks the live set,
// enforces the connect allowlist, and coordinates graceful shutdown.
package bridge

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-mud/go-mud-portal/lib/chat"
	"github.com/go-mud/go-mud-portal/lib/session"
	"github.com/go-mud/go-mud-portal/lib/util"
)

// Default configuration values.
const (
	// DefaultListenAddr is the default WebSocket listen address.
	DefaultListenAddr = ":8080"

	// DefaultWSPath is the default upgrade path.
	DefaultWSPath = "/"

	// DefaultUpstreamPort is the default MUD server port.
	DefaultUpstreamPort = 4000

	// DefaultDialTimeout bounds each upstream dial attempt.
	DefaultDialTimeout = 10 * time.Second

	// DefaultHandshakeTimeout bounds the WebSocket upgrade handshake.
	DefaultHandshakeTimeout = 10 * time.Second

	// DefaultWriteTimeout bounds each frame write to a browser. A browser
	// that stops draining its socket loses the session rather than
	// stalling the pumps.
	DefaultWriteTimeout = 60 * time.Second

	// DefaultTeardownDelay is the pause between a final notice and the
	// close, so the browser renders the notice before its socket drops.
	DefaultTeardownDelay = 500 * time.Millisecond

	// DefaultMCCPDelay is the pause before agreeing to MCCP2, so the
	// server finishes announcing its other options on the plain stream.
	DefaultMCCPDelay = 6 * time.Second

	// DefaultChatLogPath is where the chat history is persisted.
	DefaultChatLogPath = "chat.json"

	// DefaultBufferSize sizes the WebSocket read and write buffers.
	DefaultBufferSize = 4096
)

// DefaultTerminalTypes is the TTYPE list announced to servers that walk the
// terminal-type queue, most capable first.
var DefaultTerminalTypes = []string{"xterm-256color", "screen-256color", "linux"}

// Config holds the portal server configuration.
// All fields have sensible defaults that can be overridden.
type Config struct {
	// ListenAddr is the TCP address to listen on (e.g. ":8080").
	ListenAddr string

	// WSPath is the HTTP path upgraded to WebSocket.
	WSPath string

	// CertFile and KeyFile enable TLS when both are set. Leaving them
	// empty serves plain WebSocket.
	CertFile string
	KeyFile  string

	// CheckOrigin decides whether an upgrade request's Origin is
	// acceptable. Nil accepts every origin; browsers talk to portals
	// from anywhere.
	CheckOrigin func(r *http.Request) bool

	// Upstream holds the MUD-side dial settings.
	Upstream UpstreamConfig

	// Negotiation holds the telnet option announcements.
	Negotiation NegotiationConfig

	// Chat holds the shared chat channel settings.
	Chat ChatConfig

	// Timeouts holds the transport deadlines.
	Timeouts TimeoutConfig

	// Compress deflates outbound frames while MCCP is inactive.
	Compress bool

	// Debug starts every session with frame tracing on and lowers the
	// log level.
	Debug bool

	// Metrics exposes /metrics on the same mux as the WebSocket endpoint.
	Metrics bool
}

// UpstreamConfig holds the MUD-side dial settings.
type UpstreamConfig struct {
	// DefaultHost and DefaultPort are the dial target for sessions that
	// connect without naming one.
	DefaultHost string
	DefaultPort int

	// OnlyDefaultHost refuses connects to any other host. Refused
	// sessions get an explanatory message and are torn down.
	OnlyDefaultHost bool

	// DialTimeout bounds each dial attempt.
	DialTimeout time.Duration

	// IdleTimeout tears down sessions whose server has gone quiet
	// (0 = no limit).
	IdleTimeout time.Duration
}

// NegotiationConfig holds the telnet option announcements made on each
// session's behalf.
type NegotiationConfig struct {
	// TerminalTypes seeds the per-session TTYPE queue.
	TerminalTypes []string

	// GMCPPortal is the ordered GMCP introduction list.
	GMCPPortal []string

	// MSDPPairs is the ordered MSDP introduction list.
	MSDPPairs []session.MSDPIntro

	// MCCPDelay is the pause before agreeing to MCCP2.
	MCCPDelay time.Duration
}

// ChatConfig holds the shared chat channel settings.
type ChatConfig struct {
	// LogPath is the chat history file, rewritten after each post.
	LogPath string

	// HistoryLimit bounds the kept history (0 selects the chat
	// package default).
	HistoryLimit int
}

// TimeoutConfig holds the transport deadlines.
type TimeoutConfig struct {
	// Handshake bounds the WebSocket upgrade.
	Handshake time.Duration

	// Write bounds each frame write to a browser.
	Write time.Duration

	// Teardown is the notice-then-close delay.
	Teardown time.Duration
}

// DefaultConfig returns a Config with default values. The negotiation
// announcements identify the portal without a version; callers that know
// their version use DefaultNegotiation.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:  DefaultListenAddr,
		WSPath:      DefaultWSPath,
		CheckOrigin: nil, // accept all
		Upstream: UpstreamConfig{
			DefaultPort: DefaultUpstreamPort,
			DialTimeout: DefaultDialTimeout,
			IdleTimeout: 0, // no idle timeout by default
		},
		Negotiation: DefaultNegotiation(""),
		Chat: ChatConfig{
			LogPath:      DefaultChatLogPath,
			HistoryLimit: chat.DefaultHistoryLimit,
		},
		Timeouts: TimeoutConfig{
			Handshake: DefaultHandshakeTimeout,
			Write:     DefaultWriteTimeout,
			Teardown:  DefaultTeardownDelay,
		},
		Metrics: true,
	}
}

// DefaultNegotiation returns the stock announcement set: the portal
// introduces itself over GMCP and MSDP and walks the default terminal types.
// version may be empty; it is dropped from the GMCP list and left blank in
// MSDP when it is.
func DefaultNegotiation(version string) NegotiationConfig {
	gmcp := []string{"client mud-portal"}
	if version != "" {
		gmcp = append(gmcp, "client_version "+version)
	}
	return NegotiationConfig{
		TerminalTypes: append([]string(nil), DefaultTerminalTypes...),
		GMCPPortal:    gmcp,
		MSDPPairs: []session.MSDPIntro{
			{Key: "CLIENT_ID", Value: "mud-portal"},
			{Key: "CLIENT_VERSION", Value: version},
			{Key: "CLIENT_IP"}, // value substituted per session
			{Key: "XTERM_256_COLORS", Value: "1"},
			{Key: "MXP", Value: "1"},
			{Key: "UTF_8", Value: "1"},
		},
		MCCPDelay: DefaultMCCPDelay,
	}
}

// Validate checks the configuration and returns the first error found.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return util.NewConfigError("ListenAddr", "cannot be empty")
	}
	if !strings.HasPrefix(c.WSPath, "/") {
		return util.NewConfigError("WSPath", "must start with /")
	}
	if c.Metrics && c.WSPath == "/metrics" {
		return util.NewConfigError("WSPath", "collides with the metrics endpoint")
	}
	if (c.CertFile == "") != (c.KeyFile == "") {
		return util.NewConfigError("CertFile/KeyFile", "must be set together")
	}
	if c.Upstream.DefaultPort < 0 || c.Upstream.DefaultPort > 65535 {
		return util.NewConfigError("Upstream.DefaultPort", "must be 0-65535")
	}
	if c.Upstream.OnlyDefaultHost && c.Upstream.DefaultHost == "" {
		return util.NewConfigError("Upstream.OnlyDefaultHost", "requires a default host")
	}
	if c.Upstream.DialTimeout < 0 {
		return util.NewConfigError("Upstream.DialTimeout", "cannot be negative")
	}
	if c.Upstream.IdleTimeout < 0 {
		return util.NewConfigError("Upstream.IdleTimeout", "cannot be negative")
	}
	if c.Negotiation.MCCPDelay < 0 {
		return util.NewConfigError("Negotiation.MCCPDelay", "cannot be negative")
	}
	if c.Chat.HistoryLimit < 0 {
		return util.NewConfigError("Chat.HistoryLimit", "cannot be negative")
	}
	if c.Timeouts.Handshake < 0 {
		return util.NewConfigError("Timeouts.Handshake", "cannot be negative")
	}
	if c.Timeouts.Write < 0 {
		return util.NewConfigError("Timeouts.Write", "cannot be negative")
	}
	if c.Timeouts.Teardown < 0 {
		return util.NewConfigError("Timeouts.Teardown", "cannot be negative")
	}
	return nil
}

// TLSEnabled reports whether the listener should serve TLS.
func (c *Config) TLSEnabled() bool {
	return c.CertFile != "" && c.KeyFile != ""
}

// SessionConfig resolves the per-session tunables from the server
// configuration.
func (c *Config) SessionConfig() session.Config {
	return session.Config{
		DefaultHost:   c.Upstream.DefaultHost,
		DefaultPort:   c.Upstream.DefaultPort,
		TerminalTypes: c.Negotiation.TerminalTypes,
		GMCPPortal:    c.Negotiation.GMCPPortal,
		MSDPPairs:     c.Negotiation.MSDPPairs,
		MCCPDelay:     c.Negotiation.MCCPDelay,
		TeardownDelay: c.Timeouts.Teardown,
		Compress:      c.Compress,
		Debug:         c.Debug,
	}
}

// WithListenAddr returns a copy of the config with the listen address set.
func (c *Config) WithListenAddr(addr string) *Config {
	newCfg := *c
	newCfg.ListenAddr = addr
	return &newCfg
}

// WithWSPath returns a copy of the config with the upgrade path set.
func (c *Config) WithWSPath(path string) *Config {
	newCfg := *c
	newCfg.WSPath = path
	return &newCfg
}

// WithDefaultMUD returns a copy of the config with the default upstream set.
func (c *Config) WithDefaultMUD(host string, port int) *Config {
	newCfg := *c
	newCfg.Upstream.DefaultHost = host
	newCfg.Upstream.DefaultPort = port
	return &newCfg
}

// WithOnlyDefaultHost returns a copy of the config with the allowlist toggle
// set.
func (c *Config) WithOnlyDefaultHost(only bool) *Config {
	newCfg := *c
	newCfg.Upstream.OnlyDefaultHost = only
	return &newCfg
}

// WithTLS returns a copy of the config with the certificate pair set.
func (c *Config) WithTLS(certFile, keyFile string) *Config {
	newCfg := *c
	newCfg.CertFile = certFile
	newCfg.KeyFile = keyFile
	return &newCfg
}

// WithChatLog returns a copy of the config with the chat history path set.
func (c *Config) WithChatLog(path string) *Config {
	newCfg := *c
	newCfg.Chat.LogPath = path
	return &newCfg
}

// WithCompression returns a copy of the config with outbound deflate set.
func (c *Config) WithCompression(on bool) *Config {
	newCfg := *c
	newCfg.Compress = on
	return &newCfg
}

// WithDebug returns a copy of the config with debug tracing set.
func (c *Config) WithDebug(on bool) *Config {
	newCfg := *c
	newCfg.Debug = on
	return &newCfg
}
