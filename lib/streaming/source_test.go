package streaming

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/klauspost/compress/flate"
)

// deflateWhole compresses data as one complete raw-deflate stream.
func deflateWhole(t *testing.T, data string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if _, err := w.Write([]byte(data)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return buf.Bytes()
}

func TestSource_PlainPassthrough(t *testing.T) {
	src := NewSource(strings.NewReader("login: "))
	if src.Inflating() {
		t.Fatal("fresh source reports inflating")
	}
	got, err := io.ReadAll(src)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "login: " {
		t.Errorf("read %q, want %q", got, "login: ")
	}
}

func TestSource_InflateSpansRestAndConnection(t *testing.T) {
	compressed := deflateWhole(t, "Hello from the MUD")

	tests := []struct {
		name string
		cut  int
	}{
		{name: "all bytes in rest", cut: len(compressed)},
		{name: "split mid stream", cut: 3},
		{name: "nothing in rest", cut: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := NewSource(bytes.NewReader(compressed[tt.cut:]))
			src.StartInflate(compressed[:tt.cut])
			if !src.Inflating() {
				t.Fatal("source did not switch to the compressed stream")
			}
			got, err := io.ReadAll(src)
			if err != nil {
				t.Fatalf("ReadAll: %v", err)
			}
			if string(got) != "Hello from the MUD" {
				t.Errorf("inflated %q, want %q", got, "Hello from the MUD")
			}
		})
	}
}

func TestSource_InflateDeliversChunksAsTheyArrive(t *testing.T) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	w.Write([]byte("Hi"))
	w.Flush()
	first := append([]byte(nil), buf.Bytes()...)
	buf.Reset()
	w.Write([]byte("World"))
	w.Flush()
	second := append([]byte(nil), buf.Bytes()...)

	pr, pw := io.Pipe()
	src := NewSource(pr)
	src.StartInflate(first)

	p := make([]byte, 64)
	n, err := src.Read(p)
	if err != nil {
		t.Fatalf("first Read: %v", err)
	}
	if string(p[:n]) != "Hi" {
		t.Fatalf("first Read = %q, want %q", p[:n], "Hi")
	}

	// The second flushed block arrives over the connection later.
	go pw.Write(second)
	n, err = src.Read(p)
	if err != nil {
		t.Fatalf("second Read: %v", err)
	}
	if string(p[:n]) != "World" {
		t.Fatalf("second Read = %q, want %q", p[:n], "World")
	}
	pw.Close()
}

func TestSource_StartInflateIsOneWay(t *testing.T) {
	compressed := deflateWhole(t, "once")
	src := NewSource(bytes.NewReader(compressed))
	src.StartInflate(nil)
	src.StartInflate([]byte("garbage that must be ignored"))

	got, err := io.ReadAll(src)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "once" {
		t.Errorf("inflated %q, want %q", got, "once")
	}
}

func TestSource_CorruptStreamSurfacesError(t *testing.T) {
	src := NewSource(bytes.NewReader(nil))
	src.StartInflate([]byte{0xde, 0xad, 0xbe, 0xef, 0x00, 0x01, 0x02})
	if _, err := io.ReadAll(src); err == nil {
		t.Fatal("corrupt deflate stream read without error")
	}
}

func TestSource_CloseWithoutInflater(t *testing.T) {
	src := NewSource(strings.NewReader("x"))
	if err := src.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
