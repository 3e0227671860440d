package streaming

import (
	"bytes"

	"github.com/klauspost/compress/flate"
)

// Compressor deflates outbound frame payloads. Every call produces a
// complete raw-deflate stream so the browser inflates each frame on its
// own. One writer is reused across calls; a Compressor is not safe for
// concurrent use, callers serialize.
type Compressor struct {
	buf bytes.Buffer
	w   *flate.Writer
}

// NewCompressor returns a Compressor at the default compression level.
func NewCompressor() (*Compressor, error) {
	c := &Compressor{}
	w, err := flate.NewWriter(&c.buf, flate.DefaultCompression)
	if err != nil {
		return nil, err
	}
	c.w = w
	return c, nil
}

// Deflate compresses p into a fresh slice.
func (c *Compressor) Deflate(p []byte) ([]byte, error) {
	c.buf.Reset()
	c.w.Reset(&c.buf)
	if _, err := c.w.Write(p); err != nil {
		return nil, err
	}
	if err := c.w.Close(); err != nil {
		return nil, err
	}
	out := make([]byte, c.buf.Len())
	copy(out, c.buf.Bytes())
	return out, nil
}
