package session

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/go-mud/go-mud-portal/lib/telnet"
)

// MSDPIntro is one variable announced to servers that speak MSDP.
type MSDPIntro struct {
	Key   string
	Value string
}

// Result reports the side effects of applying one negotiation event that
// the caller must act on.
type Result struct {
	// StartCompression means the MCCP2 activation sentinel was consumed:
	// every upstream byte after it belongs to the deflate stream.
	StartCompression bool
	// StartPasswordMode means the server took over echoing, which MUDs
	// do while the user types a password.
	StartPasswordMode bool
}

// NegotiatorConfig seeds a Negotiator.
type NegotiatorConfig struct {
	// Remote is the browser's address, used as the terminal-type fallback,
	// the NEW-ENVIRON IPADDRESS value, and the GMCP client_ip line.
	Remote        string
	TerminalTypes *TerminalTypes
	// GMCPPortal is the ordered list of GMCP introduction payloads. When a
	// client identifier is set the first entry is replaced by
	// "client <id>"; "client_ip <remote>" is always appended.
	GMCPPortal []string
	// MSDPPairs is the ordered MSDP introduction list. CLIENT_IP takes the
	// remote address as its value and CLIENT_ID the client identifier when
	// one is set.
	MSDPPairs []MSDPIntro
	// MCCPDelay postpones the DO MCCP2 answer so the server can finish
	// announcing its other options first. Zero or negative answers
	// immediately.
	MCCPDelay time.Duration
	Log       *logrus.Entry
}

// Negotiator answers telnet option negotiation on the browser's behalf. It
// owns the session's option flags and emits responses in event order, one
// Write per wire sequence. Negotiations are one-shot: a repeated event after
// its flag is set produces no output, except TTYPE which answers every
// round, serving the remote address once the queued names run out.
//
// Not safe for concurrent use; the owning session serializes Apply with the
// setters.
type Negotiator struct {
	flags    Flags
	ttypes   *TerminalTypes
	remote   string
	clientID string
	wantMCCP bool

	gmcpPortal []string
	msdpPairs  []MSDPIntro

	mccpDelay time.Duration
	mccpTimer *time.Timer

	log *logrus.Entry
}

// NewNegotiator builds a Negotiator with every option still open.
func NewNegotiator(cfg NegotiatorConfig) *Negotiator {
	ttypes := cfg.TerminalTypes
	if ttypes == nil {
		ttypes = NewTerminalTypes(nil)
	}
	log := cfg.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Negotiator{
		ttypes:     ttypes,
		remote:     cfg.Remote,
		gmcpPortal: cfg.GMCPPortal,
		msdpPairs:  cfg.MSDPPairs,
		mccpDelay:  cfg.MCCPDelay,
		log:        log,
	}
}

// SetClientID records the identifier announced in GMCP and MSDP
// introductions.
func (n *Negotiator) SetClientID(id string) { n.clientID = id }

// SetTerminalType replaces the queued terminal names with the single given
// one, so the next TTYPE round announces it.
func (n *Negotiator) SetTerminalType(name string) { n.ttypes.Replace(name) }

// EnableMCCP opts the session in to MCCP2. Without it WILL MCCP2 offers are
// left unanswered.
func (n *Negotiator) EnableMCCP() { n.wantMCCP = true }

// Flags returns the current option flags.
func (n *Negotiator) Flags() Flags { return n.flags }

// Compressed reports whether the MCCP2 activation sentinel has been seen.
func (n *Negotiator) Compressed() bool { return n.flags.Has(FlagCompressed) }

// CompressionPossible reports whether a future event could still start
// MCCP2 compression, which tells the scanner owner to arm the stream split.
func (n *Negotiator) CompressionPossible() bool {
	return n.wantMCCP && !n.flags.Has(FlagCompressed)
}

// Stop cancels the pending delayed DO MCCP2, if any. Idempotent.
func (n *Negotiator) Stop() {
	if n.mccpTimer != nil {
		n.mccpTimer.Stop()
		n.mccpTimer = nil
	}
}

// Apply reacts to one scanner event, writing any responses to w. Data
// events are the caller's business and are ignored here.
func (n *Negotiator) Apply(ev telnet.Event, w io.Writer) (Result, error) {
	switch ev.Kind {
	case telnet.EventCommand:
		return n.applyCommand(ev, w)
	case telnet.EventSubneg:
		return n.applySubneg(ev, w)
	default:
		return Result{}, nil
	}
}

func (n *Negotiator) applyCommand(ev telnet.Event, w io.Writer) (Result, error) {
	var res Result
	switch {
	case ev.Cmd == telnet.DO && ev.Opt == telnet.OptTType:
		// Answered every time: servers repeat DO TTYPE to walk the list.
		n.flags.Set(FlagTType)
		return res, writeAll(w,
			telnet.Command(telnet.WILL, telnet.OptTType),
			telnet.TTypeIs(n.ttypes.Pop(n.remote)))

	case ev.Opt == telnet.OptGMCP && (ev.Cmd == telnet.DO || ev.Cmd == telnet.WILL):
		if !n.flags.Set(FlagGMCP) {
			return res, nil
		}
		frames := [][]byte{telnet.Command(mirror(ev.Cmd), telnet.OptGMCP)}
		for _, msg := range n.portalMessages() {
			frames = append(frames, telnet.SubnegString(telnet.OptGMCP, msg))
		}
		return res, writeAll(w, frames...)

	case ev.Cmd == telnet.WILL && ev.Opt == telnet.OptMSDP:
		if !n.flags.Set(FlagMSDP) {
			return res, nil
		}
		frames := [][]byte{telnet.Command(telnet.DO, telnet.OptMSDP)}
		for _, p := range n.msdpPairs {
			frames = append(frames, telnet.MSDPPair(p.Key, n.msdpValue(p)))
		}
		return res, writeAll(w, frames...)

	case ev.Cmd == telnet.WILL && ev.Opt == telnet.OptMCCP2:
		if !n.wantMCCP || n.flags.Has(FlagCompressed) || !n.flags.Set(FlagMCCP) {
			return res, nil
		}
		return res, n.agreeMCCP(w)

	case ev.Opt == telnet.OptMXP && (ev.Cmd == telnet.DO || ev.Cmd == telnet.WILL):
		if !n.flags.Set(FlagMXP) {
			return res, nil
		}
		return res, writeAll(w, telnet.Command(mirror(ev.Cmd), telnet.OptMXP))

	case ev.Cmd == telnet.DO && ev.Opt == telnet.OptNewEnv:
		if !n.flags.Set(FlagNewEnv) {
			return res, nil
		}
		return res, writeAll(w, telnet.Command(telnet.WILL, telnet.OptNewEnv))

	case ev.Cmd == telnet.DO && ev.Opt == telnet.OptCharset:
		if !n.flags.Set(FlagCharset) {
			return res, nil
		}
		return res, writeAll(w, telnet.Command(telnet.WILL, telnet.OptCharset))

	case ev.Cmd == telnet.WILL && ev.Opt == telnet.OptSGA:
		if !n.flags.Set(FlagSGA) {
			return res, nil
		}
		return res, writeAll(w, telnet.Command(telnet.WONT, telnet.OptSGA))

	case ev.Cmd == telnet.WILL && ev.Opt == telnet.OptEcho:
		if n.flags.Set(FlagEcho) {
			res.StartPasswordMode = true
		}
		return res, nil

	case ev.Cmd == telnet.WILL && ev.Opt == telnet.OptNAWS:
		if !n.flags.Set(FlagNAWS) {
			return res, nil
		}
		return res, writeAll(w, telnet.Command(telnet.WONT, telnet.OptNAWS))
	}

	n.log.WithFields(logrus.Fields{
		"cmd": telnet.CommandName(ev.Cmd),
		"opt": telnet.OptionName(ev.Opt),
	}).Debug("negotiation ignored")
	return res, nil
}

func (n *Negotiator) applySubneg(ev telnet.Event, w io.Writer) (Result, error) {
	var res Result
	switch ev.Opt {
	case telnet.OptTType:
		// Servers cycle SEND until an answer repeats, so an exhausted queue
		// keeps serving the stable remote-address fallback.
		if len(ev.Data) > 0 && ev.Data[0] == telnet.QualSend {
			return res, writeAll(w, telnet.TTypeIs(n.ttypes.Pop(n.remote)))
		}

	case telnet.OptMCCP2:
		// The activation sentinel is the empty subnegotiation. Everything
		// after its SE is deflate data; the caller routes it through the
		// inflater.
		if len(ev.Data) == 0 && n.wantMCCP && n.flags.Set(FlagCompressed) {
			res.StartCompression = true
		}

	case telnet.OptNewEnv:
		if len(ev.Data) > 0 && ev.Data[0] == telnet.QualSend &&
			n.flags.Has(FlagNewEnv) && n.flags.Set(FlagEnvHandshake) {
			return res, writeAll(w, telnet.EnvIPAddress(n.remote))
		}

	case telnet.OptCharset:
		if n.flags.Set(FlagUTF8) {
			return res, writeAll(w, telnet.AcceptUTF8)
		}

	default:
		n.log.WithField("opt", telnet.OptionName(ev.Opt)).Debug("subnegotiation ignored")
	}
	return res, nil
}

// agreeMCCP answers WILL MCCP2 with DO MCCP2, waiting out the configured
// delay so the server finishes announcing its other options before it
// switches the stream to deflate.
func (n *Negotiator) agreeMCCP(w io.Writer) error {
	frame := telnet.Command(telnet.DO, telnet.OptMCCP2)
	if n.mccpDelay <= 0 {
		return writeAll(w, frame)
	}
	n.mccpTimer = time.AfterFunc(n.mccpDelay, func() {
		// The socket may be gone by now; compression simply never starts.
		_, _ = w.Write(frame)
	})
	return nil
}

// portalMessages resolves the GMCP introduction payloads for this session.
func (n *Negotiator) portalMessages() []string {
	msgs := append([]string(nil), n.gmcpPortal...)
	if n.clientID != "" {
		client := "client " + n.clientID
		if len(msgs) > 0 {
			msgs[0] = client
		} else {
			msgs = append(msgs, client)
		}
	}
	return append(msgs, "client_ip "+n.remote)
}

// msdpValue resolves one MSDP introduction value, substituting the session
// identity keys.
func (n *Negotiator) msdpValue(p MSDPIntro) string {
	switch p.Key {
	case "CLIENT_IP":
		return n.remote
	case "CLIENT_ID":
		if n.clientID != "" {
			return n.clientID
		}
	}
	return p.Value
}

// mirror turns the peer's verb into our agreeing one.
func mirror(cmd byte) byte {
	if cmd == telnet.WILL {
		return telnet.DO
	}
	return telnet.WILL
}

func writeAll(w io.Writer, frames ...[]byte) error {
	for _, f := range frames {
		if _, err := w.Write(f); err != nil {
			return err
		}
	}
	return nil
}
