package handler

import "github.com/go-mud/go-mud-portal/lib/protocol"

// Connect starts the upstream dial when the frame asks for one. It runs
// after Settings so `{"host":"...","port":...,"connect":true}` works as a
// single frame.
type Connect struct{}

// Name implements Handler.
func (*Connect) Name() string { return "connect" }

// Handle implements Handler.
func (*Connect) Handle(ctx *Context, ctl *protocol.Control) error {
	if ctl.Connect {
		ctx.Session.Connect()
	}
	return nil
}
