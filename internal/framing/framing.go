// Package framing provides the two interchangeable strategies for
// carrying a message stream over a byte stream: fixed-width binary
// frames bound to a protocol.Registry, and an incrementally-parsed
// JSON open-array stream.
package framing

import "io"

// Reader yields decoded messages from a byte stream. Next returns
// io.EOF when the peer shuts down cleanly at a frame boundary; an end
// of stream mid-frame surfaces as *protocol.TruncatedFrameError.
type Reader interface {
	Next() (any, error)
	Close() error
}

// Writer encodes messages onto a byte stream. Writers carry no
// internal send lock; callers sending from several goroutines to one
// connection must serialize themselves.
type Writer interface {
	Send(v any) error
	Close() error
}

// ReaderFactory and WriterFactory bind one framing strategy to a live
// stream, usually the two directions of the same net.Conn.
type (
	ReaderFactory func(rc io.ReadCloser) Reader
	WriterFactory func(wc io.WriteCloser) Writer
)
