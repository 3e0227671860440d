package handler

import "github.com/go-mud/go-mud-portal/lib/protocol"

// Settings applies the target and identity keys: host, port, ttype, name
// and client. Zero values leave the session untouched, so a frame only
// changes what it names.
type Settings struct{}

// Name implements Handler.
func (*Settings) Name() string { return "settings" }

// Handle implements Handler.
func (*Settings) Handle(ctx *Context, ctl *protocol.Control) error {
	if ctl.Host != "" {
		ctx.Session.SetHost(ctl.Host)
	}
	if ctl.Port != 0 {
		ctx.Session.SetPort(ctl.Port)
	}
	if ctl.TType != "" {
		ctx.Session.SetTerminalType(ctl.TType)
	}
	if ctl.Name != "" {
		ctx.Session.SetName(ctl.Name)
	}
	if ctl.Client != "" {
		ctx.Session.SetClientID(ctl.Client)
	}
	return nil
}
