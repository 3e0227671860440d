package handler

import "github.com/go-mud/go-mud-portal/lib/protocol"

// Chat routes a frame's chat payload to the bus. The first chat key a
// session sends also joins it to the bus, so posting and subscribing are
// one gesture.
type Chat struct{}

// Name implements Handler.
func (*Chat) Name() string { return "chat" }

// Handle implements Handler.
func (*Chat) Handle(ctx *Context, ctl *protocol.Control) error {
	if ctl.Chat == nil {
		return nil
	}
	ctx.Session.Chat(ctl.Chat)
	return nil
}
