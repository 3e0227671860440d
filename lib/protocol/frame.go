package protocol

import (
	"encoding/base64"

	"github.com/sirupsen/logrus"

	"github.com/go-mud/go-mud-portal/lib/streaming"
)

// Framer renders server output as the base64 text frames the browser
// expects. With global compression enabled each frame's bytes are deflated
// first, except while MCCP is active: that stream is already compressed end
// to end and deflating it again only burns CPU. A Framer is bound to one
// session and is not safe for concurrent use.
type Framer struct {
	comp *streaming.Compressor
	log  *logrus.Entry
}

// NewFramer returns a Framer, with a per-session deflate compressor when
// compress is set.
func NewFramer(compress bool, log *logrus.Entry) *Framer {
	f := &Framer{log: log}
	if compress {
		c, err := streaming.NewCompressor()
		if err != nil {
			log.WithError(err).Warn("outbound compression unavailable, sending plain frames")
			return f
		}
		f.comp = c
	}
	return f
}

// Frame encodes one arrival's bytes as a text frame. Compressor errors fall
// back to the plain encoding so the client always gets the data.
func (f *Framer) Frame(p []byte, mccpActive bool) string {
	if f.comp != nil && !mccpActive {
		out, err := f.comp.Deflate(p)
		if err == nil {
			return base64.StdEncoding.EncodeToString(out)
		}
		f.log.WithError(err).Warn("frame compression failed, sending plain")
	}
	return base64.StdEncoding.EncodeToString(p)
}

// Compressing reports whether the framer deflates frames while MCCP is
// inactive.
func (f *Framer) Compressing() bool { return f.comp != nil }
