// Package session implements one browser's proxy session: the client and
// upstream pumps, the telnet option state machine, MCCP2 activation, and the
// live-session registry the bridge serves from.
package session

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/flate"
	"github.com/sirupsen/logrus"

	"github.com/go-mud/go-mud-portal/lib/chat"
	"github.com/go-mud/go-mud-portal/lib/handler"
	"github.com/go-mud/go-mud-portal/lib/metrics"
	"github.com/go-mud/go-mud-portal/lib/protocol"
	"github.com/go-mud/go-mud-portal/lib/streaming"
	"github.com/go-mud/go-mud-portal/lib/telnet"
	"github.com/go-mud/go-mud-portal/lib/upstream"
	"github.com/go-mud/go-mud-portal/lib/util"
)

// readBufferSize is the upstream read chunk. One read becomes at most one
// browser frame, so the size also caps frame payloads.
const readBufferSize = 4096

// ClientConn is the browser leg of a session. The bridge implements it over
// a WebSocket; tests substitute a channel-backed fake.
type ClientConn interface {
	// ReadFrame blocks for the next text frame from the browser.
	ReadFrame() (string, error)

	// WriteFrame sends one text frame. Must be safe for concurrent use.
	WriteFrame(frame string) error

	// Close tears the connection down. Safe to call more than once.
	Close() error

	// RemoteAddr returns the browser's host, the session's identity in
	// logs, TTYPE fallbacks and NEW-ENVIRON replies.
	RemoteAddr() string
}

// Dialer opens upstream connections. *upstream.Dialer implements it.
type Dialer interface {
	Dial(host string, port int) (*upstream.Conn, error)
}

// Config carries the per-session tunables the bridge resolves from its own
// configuration.
type Config struct {
	// DefaultHost and DefaultPort are the dial target until a control
	// frame overrides them.
	DefaultHost string
	DefaultPort int

	// TerminalTypes seeds the TTYPE answer queue.
	TerminalTypes []string

	// GMCPPortal and MSDPPairs are the introduction payloads announced
	// during negotiation.
	GMCPPortal []string
	MSDPPairs  []MSDPIntro

	// MCCPDelay postpones the DO MCCP2 answer so the server finishes
	// announcing its other options first.
	MCCPDelay time.Duration

	// TeardownDelay is the pause between a final notice and the close, so
	// the browser renders the notice before its socket drops.
	TeardownDelay time.Duration

	// Compress deflates outbound frames while MCCP is inactive.
	Compress bool

	// Debug starts the session with frame tracing on.
	Debug bool
}

// Deps are the session's collaborators.
type Deps struct {
	Client ClientConn
	Dialer Dialer
	Bus    *chat.Bus
	Chain  *handler.Chain
	Log    *logrus.Logger

	// HostAllowed guards connect targets. Nil allows every host.
	HostAllowed func(host string) bool

	// OnClose runs exactly once, after the session has torn down.
	OnClose func(*Session)
}

// Session proxies one browser to one MUD server. Two pumps drive it: Run
// reads browser frames, and a second goroutine started by a successful dial
// reads the server stream. All mutable state is guarded by one mutex, so
// every update to flags, queues and mode bits lands in a single total
// order no matter which pump it came from.
type Session struct {
	id     string
	remote string
	log    *logrus.Entry

	client ClientConn
	dialer Dialer
	bus    *chat.Bus
	chain  *handler.Chain
	cfg    Config

	hostAllowed func(string) bool
	onClose     func(*Session)

	mu            sync.Mutex
	host          string
	port          int
	name          string
	debug         bool
	wantUTF8      bool
	passwordMode  bool
	onChat        bool
	dialing       bool
	conn          *upstream.Conn
	source        *streaming.Source
	neg           *Negotiator
	framer        *protocol.Framer
	teardownTimer *time.Timer

	closing atomic.Bool
	done    chan struct{}
}

// New builds a session around an accepted client connection. The session is
// inert until Run is called.
func New(cfg Config, deps Deps) *Session {
	log := deps.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	chain := deps.Chain
	if chain == nil {
		chain = handler.Default()
	}
	remote := deps.Client.RemoteAddr()
	entry := util.SessionLogger(log, remote)

	s := &Session{
		id:          uuid.NewString(),
		remote:      remote,
		log:         entry,
		client:      deps.Client,
		dialer:      deps.Dialer,
		bus:         deps.Bus,
		chain:       chain,
		cfg:         cfg,
		hostAllowed: deps.HostAllowed,
		onClose:     deps.OnClose,
		host:        cfg.DefaultHost,
		port:        cfg.DefaultPort,
		debug:       cfg.Debug,
		done:        make(chan struct{}),
	}
	s.neg = NewNegotiator(NegotiatorConfig{
		Remote:        remote,
		TerminalTypes: NewTerminalTypes(cfg.TerminalTypes),
		GMCPPortal:    cfg.GMCPPortal,
		MSDPPairs:     cfg.MSDPPairs,
		MCCPDelay:     cfg.MCCPDelay,
		Log:           entry,
	})
	s.framer = protocol.NewFramer(cfg.Compress, entry)
	return s
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// RemoteAddr returns the browser's host.
func (s *Session) RemoteAddr() string { return s.remote }

// Done is closed when the session has torn down.
func (s *Session) Done() <-chan struct{} { return s.done }

// Closing reports whether teardown has begun.
func (s *Session) Closing() bool { return s.closing.Load() }

// Connected reports whether an upstream connection exists.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Flags returns the current negotiation flags.
func (s *Session) Flags() Flags {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.neg.Flags()
}

// PasswordMode reports whether the server currently owns echoing.
func (s *Session) PasswordMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.passwordMode
}

// Run pumps browser frames until the client leg ends, then tears the
// session down. It blocks; the bridge calls it from the accepted
// connection's goroutine.
func (s *Session) Run() {
	defer s.Teardown()
	for {
		frame, err := s.client.ReadFrame()
		if err != nil {
			if !s.closing.Load() {
				s.log.WithError(err).Debug("client leg ended")
			}
			return
		}
		s.HandleClientFrame(frame)
	}
}

// HandleClientFrame applies one browser text frame: a JSON control envelope
// when it opens with '{', raw user input otherwise.
func (s *Session) HandleClientFrame(frame string) {
	if s.closing.Load() {
		return
	}
	raw := []byte(frame)
	if protocol.IsControl(raw) {
		ctl, err := protocol.ParseControl(raw)
		if err != nil {
			s.log.WithError(err).Debug("control frame dropped")
			return
		}
		s.chain.Apply(&handler.Context{Session: s, Log: s.log}, ctl)
		return
	}
	s.forwardInput(frame)
}

// forwardInput transcodes user input to Latin-1 and writes it upstream.
// Input typed before a connection exists goes nowhere. Forwarding leaves
// password mode, and while it was on nothing about the input is traced.
func (s *Session) forwardInput(frame string) {
	out, dropped := protocol.EncodeLatin1(frame)
	if dropped > 0 {
		s.log.WithField("dropped", dropped).Debug("input runes outside Latin-1 dropped")
	}

	s.mu.Lock()
	up := s.conn
	wasPassword := s.passwordMode
	if up != nil && len(out) > 0 {
		s.passwordMode = false
	}
	debug := s.debug
	s.mu.Unlock()

	if up == nil || len(out) == 0 {
		return
	}
	if debug && !wasPassword {
		s.trace("input %q", frame)
	}
	if _, err := up.Write(out); err != nil {
		s.upstreamFailed(err)
	}
}

// SetHost implements handler.PortalSession.
func (s *Session) SetHost(host string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.host = host
}

// SetPort implements handler.PortalSession.
func (s *Session) SetPort(port int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.port = port
}

// SetTerminalType implements handler.PortalSession.
func (s *Session) SetTerminalType(ttype string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.neg.SetTerminalType(ttype)
}

// SetName implements handler.PortalSession.
func (s *Session) SetName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.name = name
}

// SetClientID implements handler.PortalSession.
func (s *Session) SetClientID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.neg.SetClientID(id)
}

// EnableMCCP implements handler.PortalSession.
func (s *Session) EnableMCCP() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.neg.EnableMCCP()
}

// EnableUTF8 implements handler.PortalSession. The toggle is recorded for
// the session but the upstream wire stays Latin-1 either way; the CHARSET
// answer alone decides what the server believes.
func (s *Session) EnableUTF8() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wantUTF8 = true
}

// EnableDebug implements handler.PortalSession.
func (s *Session) EnableDebug() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.debug = true
}

// Chat implements handler.PortalSession: the first chat payload joins the
// bus, every payload is posted. The join's roster update goes out before
// the post so members see the listing change ahead of the message.
func (s *Session) Chat(payload map[string]any) {
	if payload == nil || s.bus == nil || s.closing.Load() {
		return
	}
	s.mu.Lock()
	first := !s.onChat
	s.onChat = true
	s.mu.Unlock()

	if first {
		s.bus.Join(s)
		s.bus.Update()
	}
	s.bus.Post(s, payload)
}

// Connect implements handler.PortalSession. The dial runs in its own
// goroutine so the client pump keeps serving frames; repeat connects while
// one is in flight or a connection exists are ignored. A target outside the
// host policy gets an explanatory notice and the session is torn down.
func (s *Session) Connect() {
	if s.closing.Load() {
		return
	}
	s.mu.Lock()
	host, port := s.host, s.port
	if s.conn != nil || s.dialing {
		s.mu.Unlock()
		s.log.Debug("connect ignored, already connected")
		return
	}
	if host == "" || port <= 0 {
		s.mu.Unlock()
		s.Notice("No server to connect to; send a host and port first.")
		return
	}
	if s.hostAllowed != nil && !s.hostAllowed(host) {
		s.mu.Unlock()
		s.log.WithError(util.ErrHostNotAllowed).WithField("host", host).Info("connect refused")
		s.Notice(fmt.Sprintf("This portal does not allow connections to %s; only %s is served here.",
			host, s.cfg.DefaultHost))
		s.scheduleTeardown()
		return
	}
	s.dialing = true
	s.mu.Unlock()

	go s.dialUpstream(host, port)
}

// dialUpstream completes a Connect. It owns the dialing bit set by Connect.
func (s *Session) dialUpstream(host string, port int) {
	conn, err := s.dialer.Dial(host, port)

	s.mu.Lock()
	s.dialing = false
	if err == nil && s.closing.Load() {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	var src *streaming.Source
	if err == nil {
		src = streaming.NewSource(conn)
		s.conn = conn
		s.source = src
	}
	s.mu.Unlock()

	if err != nil {
		s.log.WithError(err).Info("upstream dial failed")
		s.Notice(util.UserNotice(err))
		s.scheduleTeardown()
		return
	}

	s.log.Infof("connected to %s", conn.Addr())
	go s.upstreamPump(conn, src)
}

// WriteRaw implements handler.PortalSession.
func (s *Session) WriteRaw(p []byte) error {
	s.mu.Lock()
	up := s.conn
	s.mu.Unlock()
	if up == nil {
		return util.ErrNoUpstream
	}
	if _, err := up.Write(p); err != nil {
		s.upstreamFailed(err)
		return err
	}
	return nil
}

// SendMSDP implements handler.PortalSession. Without an upstream the
// request is silently dropped.
func (s *Session) SendMSDP(key string, values []string) error {
	if key == "" || len(values) == 0 {
		return nil
	}
	s.mu.Lock()
	up := s.conn
	s.mu.Unlock()
	if up == nil {
		return nil
	}
	if _, err := up.Write(telnet.MSDPPair(key, values...)); err != nil {
		s.upstreamFailed(err)
		return err
	}
	return nil
}

// DeliverFrame implements chat.Member. The bus holds its lock across the
// broadcast, so a failed write only schedules teardown, which runs later.
func (s *Session) DeliverFrame(frame string) {
	if err := s.client.WriteFrame(frame); err != nil {
		if !s.closing.Load() {
			s.log.WithError(err).Debug("chat delivery failed")
			s.scheduleTeardown()
		}
	}
}

// ChatIdentity implements chat.Member.
func (s *Session) ChatIdentity() (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	host := ""
	if s.conn != nil {
		host = s.conn.Host()
	}
	return s.name, host
}

// Notice sends a plain sentence to the browser, framed like server output.
func (s *Session) Notice(text string) {
	if text == "" {
		return
	}
	s.deliver([]byte(text))
}

// upstreamPump reads the server stream until it ends. Each read becomes at
// most one browser frame, so server-side pacing survives into the browser.
func (s *Session) upstreamPump(conn *upstream.Conn, src *streaming.Source) {
	sc := &telnet.Scanner{}
	buf := make([]byte, readBufferSize)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if perr := s.processArrival(sc, conn, src, buf[:n]); perr != nil {
				s.upstreamFailed(perr)
				return
			}
		}
		if err != nil {
			if !s.closing.Load() {
				s.upstreamFailed(classifyReadError(err, src.Inflating()))
			}
			return
		}
	}
}

// processArrival scans one read's bytes, answers negotiations, and frames
// the data runs. When the MCCP2 sentinel lands mid-buffer the unscanned
// remainder is handed to the inflater instead of the scanner.
func (s *Session) processArrival(sc *telnet.Scanner, conn *upstream.Conn, src *streaming.Source, p []byte) error {
	var out []byte

	for {
		s.mu.Lock()
		if s.neg.CompressionPossible() {
			sc.SplitAfter(telnet.OptMCCP2)
		}
		events, rest := sc.Scan(p)
		var (
			started bool
			err     error
		)
		for _, ev := range events {
			if ev.Kind == telnet.EventData {
				out = append(out, ev.Data...)
				continue
			}
			var res Result
			res, err = s.neg.Apply(ev, conn)
			if err != nil {
				break
			}
			if res.StartPasswordMode {
				s.passwordMode = true
			}
			started = started || res.StartCompression
		}
		s.mu.Unlock()

		if err != nil {
			return err
		}
		if started {
			s.deliver(out)
			src.StartInflate(rest)
			return nil
		}
		if len(rest) == 0 {
			break
		}
		// The split fired without activating (a non-sentinel MCCP2
		// subnegotiation): scan the remainder raw.
		p = rest
	}

	s.deliver(out)
	return nil
}

// deliver frames one arrival's application bytes toward the browser. Pure
// negotiation traffic produces no frame.
func (s *Session) deliver(p []byte) {
	if len(p) == 0 {
		return
	}
	s.mu.Lock()
	frame := s.framer.Frame(p, s.neg.Compressed())
	debug := s.debug
	s.mu.Unlock()

	metrics.BytesToClient.Add(float64(len(p)))
	if debug {
		s.trace("deliver %d bytes", len(p))
	}
	if err := s.client.WriteFrame(frame); err != nil {
		if !s.closing.Load() {
			s.log.WithError(err).Debug("client write failed")
			s.scheduleTeardown()
		}
	}
}

// upstreamFailed reports a fatal upstream error to the browser and
// schedules the delayed close.
func (s *Session) upstreamFailed(err error) {
	if s.closing.Load() {
		return
	}
	s.log.WithError(err).Info("upstream ended")
	s.Notice(util.UserNotice(err))
	s.scheduleTeardown()
}

// scheduleTeardown arms the delayed close that lets the browser render a
// final notice before the socket drops. Arming twice keeps the first timer.
func (s *Session) scheduleTeardown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.teardownTimer != nil || s.closing.Load() {
		return
	}
	delay := s.cfg.TeardownDelay
	if delay < 0 {
		delay = 0
	}
	s.teardownTimer = time.AfterFunc(delay, s.Teardown)
}

// Teardown closes both legs and detaches the session. Idempotent: the first
// caller does the work, later calls and a still-armed timer are no-ops.
func (s *Session) Teardown() {
	if s.closing.Swap(true) {
		return
	}
	s.log.Info("session closed")

	s.mu.Lock()
	if s.teardownTimer != nil {
		s.teardownTimer.Stop()
		s.teardownTimer = nil
	}
	s.neg.Stop()
	conn := s.conn
	src := s.source
	onChat := s.onChat
	s.mu.Unlock()

	if onChat && s.bus != nil {
		s.bus.Leave(s)
	}
	if src != nil {
		_ = src.Close()
	}
	if conn != nil {
		_ = conn.Close()
	}
	_ = s.client.Close()
	close(s.done)
	if s.onClose != nil {
		s.onClose(s)
	}
}

// trace emits per-frame diagnostics. The session's debug toggle, not the
// logger level, gates it: a browser can ask one session for tracing on a
// portal running at the default level.
func (s *Session) trace(format string, args ...any) {
	s.log.Infof("debug: "+format, args...)
}

// classifyReadError maps a pump read error onto the sentinel that drives
// the user-facing notice.
func classifyReadError(err error, inflating bool) error {
	if errors.Is(err, io.EOF) {
		return util.ErrUpstreamClosed
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return err
	}
	if inflating && isFlateError(err) {
		return fmt.Errorf("%w: %v", util.ErrInflate, err)
	}
	return err
}

// isFlateError reports whether err came from the deflate decoder rather
// than the socket under it.
func isFlateError(err error) bool {
	var corrupt flate.CorruptInputError
	return errors.As(err, &corrupt) || errors.Is(err, io.ErrUnexpectedEOF)
}
