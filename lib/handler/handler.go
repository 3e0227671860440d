// Package handler applies parsed control frames to a session. Each handler
// owns one group of control keys; a Chain applies them in a fixed order so a
// single frame can set the target, toggle features, post to chat and connect
// all at once.
package handler

import (
	"github.com/sirupsen/logrus"

	"github.com/go-mud/go-mud-portal/lib/protocol"
)

// PortalSession is the session surface handlers drive. This abstraction
// keeps handlers free of the concrete session type so they can be exercised
// against a recording fake.
//
// Setters and feature toggles must be safe to call at any point in the
// session lifecycle; a closed session ignores them.
type PortalSession interface {
	// SetHost sets the upstream host for the next connect.
	SetHost(host string)

	// SetPort sets the upstream port for the next connect.
	SetPort(port int)

	// SetTerminalType replaces the terminal-type queue with a single entry.
	SetTerminalType(ttype string)

	// SetName sets the display name used in chat listings.
	SetName(name string)

	// SetClientID sets the client identifier announced over GMCP and MSDP.
	SetClientID(id string)

	// EnableMCCP opts the session into MCCP2 compression. One-way.
	EnableMCCP()

	// EnableUTF8 opts the session into UTF-8 charset acceptance. One-way.
	EnableUTF8()

	// EnableDebug raises frame tracing for this session. One-way.
	EnableDebug()

	// Chat joins the chat bus if needed and posts the payload.
	Chat(payload map[string]any)

	// Connect dials the configured upstream. Repeat calls are ignored
	// while a connection exists or a dial is in flight.
	Connect()

	// WriteRaw writes bytes upstream verbatim, bypassing the Latin-1
	// encoder. Returns an error when no upstream connection exists.
	WriteRaw(p []byte) error

	// SendMSDP writes an MSDP variable with one or more values upstream.
	SendMSDP(key string, values []string) error
}

// Context carries one frame's application state through the chain.
type Context struct {
	Session PortalSession
	Log     *logrus.Entry
}

// Handler applies one group of control keys from a frame.
type Handler interface {
	// Name identifies the handler in logs.
	Name() string

	// Handle applies the handler's keys. Absent or falsy keys are a no-op.
	Handle(ctx *Context, ctl *protocol.Control) error
}

// Chain applies handlers in order. A handler error is logged and does not
// stop the chain: the frame's remaining keys still apply.
type Chain struct {
	handlers []Handler
}

// NewChain builds a chain over the given handlers, applied in order.
func NewChain(handlers ...Handler) *Chain {
	return &Chain{handlers: handlers}
}

// Default returns the canonical chain: target and identity settings first,
// then feature toggles, chat, connect, and finally the raw upstream
// injections. Settings run before Connect so one frame can both configure
// and dial.
func Default() *Chain {
	return NewChain(
		&Settings{},
		&Features{},
		&Chat{},
		&Connect{},
		&Binary{},
		&MSDP{},
	)
}

// Apply runs every handler against the frame.
func (c *Chain) Apply(ctx *Context, ctl *protocol.Control) {
	for _, h := range c.handlers {
		if err := h.Handle(ctx, ctl); err != nil {
			ctx.Log.WithError(err).Debugf("%s handler failed", h.Name())
		}
	}
}
