package handler

import "github.com/go-mud/go-mud-portal/lib/protocol"

// Features applies the one-way feature toggles: mccp, utf8 and debug.
// There is no way to turn a feature back off; repeat enables are no-ops.
type Features struct{}

// Name implements Handler.
func (*Features) Name() string { return "features" }

// Handle implements Handler.
func (*Features) Handle(ctx *Context, ctl *protocol.Control) error {
	if ctl.MCCP {
		ctx.Session.EnableMCCP()
	}
	if ctl.UTF8 {
		ctx.Session.EnableUTF8()
	}
	if ctl.Debug {
		ctx.Session.EnableDebug()
	}
	return nil
}
