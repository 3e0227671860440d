package handler

import "github.com/go-mud/go-mud-portal/lib/protocol"

// Binary injects literal byte values upstream, bypassing the Latin-1
// encoder. Browsers use it to answer negotiations the portal does not
// handle itself. Values are truncated to bytes.
type Binary struct{}

// Name implements Handler.
func (*Binary) Name() string { return "bin" }

// Handle implements Handler.
func (*Binary) Handle(ctx *Context, ctl *protocol.Control) error {
	if len(ctl.Bin) == 0 {
		return nil
	}
	p := make([]byte, len(ctl.Bin))
	for i, v := range ctl.Bin {
		p[i] = byte(v)
	}
	return ctx.Session.WriteRaw(p)
}
