// Package streaming implements the byte-stream transforms between the MUD
// server and the browser: a read source that switches into MCCP2 inflate
// mode mid-stream, and a per-frame deflate compressor for outbound frames.
package streaming

import (
	"bytes"
	"io"
	"sync"

	"github.com/klauspost/compress/flate"
)

// Source wraps the read side of the upstream connection. It starts as a
// plain passthrough; once the server activates MCCP2 every following byte
// is raw-deflate compressed, and StartInflate routes all further reads
// through an inflater. The switch is one way: a compressed stream never
// reverts to plain.
type Source struct {
	mu       sync.Mutex
	base     io.Reader
	cur      io.Reader
	inflater io.ReadCloser
}

// NewSource returns a Source reading plain bytes from base.
func NewSource(base io.Reader) *Source {
	return &Source{base: base, cur: base}
}

// Read pulls from the current stage: the raw connection before MCCP2
// activates, the inflater after.
func (s *Source) Read(p []byte) (int, error) {
	s.mu.Lock()
	r := s.cur
	s.mu.Unlock()
	return r.Read(p)
}

// StartInflate switches the source onto a raw-deflate inflater. rest holds
// the bytes that arrived in the same read as the activation sentinel; they
// are the head of the compressed stream and are consumed before the
// connection. Calling StartInflate a second time is a no-op.
func (s *Source) StartInflate(rest []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflater != nil {
		return
	}
	src := s.base
	if len(rest) > 0 {
		// Copied because rest usually aliases the caller's read buffer.
		head := append([]byte(nil), rest...)
		src = io.MultiReader(bytes.NewReader(head), s.base)
	}
	s.inflater = flate.NewReader(src)
	s.cur = s.inflater
}

// Inflating reports whether the source has switched to the compressed
// stream.
func (s *Source) Inflating() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflater != nil
}

// Close releases the inflater if one was started. The underlying connection
// belongs to the caller and stays open.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflater == nil {
		return nil
	}
	return s.inflater.Close()
}
