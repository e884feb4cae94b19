package framing

import (
	"errors"
	"fmt"
	"io"

	"github.com/pydsigner/coregent/internal/protocol"
)

// StructReader decodes registry-typed binary frames from a byte
// stream: an id sized to the registry's header width, the fixed-width
// header fields, then any variable-length trailers.
type StructReader struct {
	rc  io.ReadCloser
	reg *protocol.Registry
}

func NewStructReader(rc io.ReadCloser, reg *protocol.Registry) *StructReader {
	return &StructReader{rc: rc, reg: reg}
}

// StructReaderFactory binds reg ahead of time so connections can
// construct their reader from the socket alone.
func StructReaderFactory(reg *protocol.Registry) ReaderFactory {
	return func(rc io.ReadCloser) Reader {
		return NewStructReader(rc, reg)
	}
}

// Next reads one frame. Zero bytes before any byte of the id is a
// clean end of stream (io.EOF); running dry after that is a truncated
// frame. An id with no registry entry is fatal to the connection
// because the stream cannot be realigned.
func (r *StructReader) Next() (any, error) {
	idBuf := make([]byte, r.reg.IDWidth())
	n, err := io.ReadFull(r.rc, idBuf)
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, &protocol.TruncatedFrameError{Wanted: len(idBuf), Got: n}
		}
		return nil, err
	}

	id := r.reg.DecodeID(idBuf)
	t, ok := r.reg.Lookup(id)
	if !ok {
		return nil, &protocol.UnknownMessageTypeError{ID: id}
	}
	return t.Deserialize(r.rc)
}

func (r *StructReader) Close() error {
	return r.rc.Close()
}

// StructWriter encodes registry-typed messages as binary frames.
type StructWriter struct {
	wc  io.WriteCloser
	reg *protocol.Registry
}

func NewStructWriter(wc io.WriteCloser, reg *protocol.Registry) *StructWriter {
	return &StructWriter{wc: wc, reg: reg}
}

func StructWriterFactory(reg *protocol.Registry) WriterFactory {
	return func(wc io.WriteCloser) Writer {
		return NewStructWriter(wc, reg)
	}
}

// Send writes the id followed by the serialized payload. Id and
// payload go out in a single Write so the frame stays contiguous on
// the wire without the framing layer holding a send lock.
func (w *StructWriter) Send(v any) error {
	m, ok := v.(*protocol.Message)
	if !ok {
		return fmt.Errorf("binary framing carries *protocol.Message values, got %T", v)
	}
	t, ok := w.reg.Lookup(m.ID())
	if !ok {
		return &protocol.UnknownMessageTypeError{ID: m.ID()}
	}
	payload, err := t.Serialize(m)
	if err != nil {
		return fmt.Errorf("could not serialize %s: %w", m.Name(), err)
	}

	frame := make([]byte, 0, w.reg.IDWidth()+len(payload))
	frame = w.reg.AppendID(frame, m.ID())
	frame = append(frame, payload...)
	_, err = w.wc.Write(frame)
	return err
}

func (w *StructWriter) Close() error {
	return w.wc.Close()
}
