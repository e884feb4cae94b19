package framing

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/pydsigner/coregent/internal/protocol"
)

// JSONReader incrementally parses a byte stream that forms one JSON
// array from connection start to close, yielding top-level elements as
// they become parseable without waiting for the closing bracket.
type JSONReader struct {
	rc      io.ReadCloser
	dec     *json.Decoder
	started bool
}

func NewJSONReader(rc io.ReadCloser) *JSONReader {
	return &JSONReader{rc: rc, dec: json.NewDecoder(rc)}
}

// JSONReaderFactory matches ReaderFactory.
func JSONReaderFactory(rc io.ReadCloser) Reader {
	return NewJSONReader(rc)
}

func mapStreamErr(err error) error {
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return &protocol.TruncatedFrameError{}
	}
	return err
}

func (r *JSONReader) Next() (any, error) {
	if !r.started {
		tok, err := r.dec.Token()
		if err != nil {
			if err == io.EOF {
				return nil, io.EOF
			}
			return nil, mapStreamErr(err)
		}
		if delim, ok := tok.(json.Delim); !ok || delim != '[' {
			return nil, fmt.Errorf("json stream must open an array, got %v", tok)
		}
		r.started = true
	}

	if !r.dec.More() {
		// Either the peer finalized the array or the stream simply
		// stopped between elements; both end iteration cleanly. The
		// trailing bracket, if any, is consumed and not validated.
		if _, err := r.dec.Token(); err != nil && err != io.EOF {
			return nil, mapStreamErr(err)
		}
		return nil, io.EOF
	}

	var v any
	if err := r.dec.Decode(&v); err != nil {
		return nil, mapStreamErr(err)
	}
	return v, nil
}

func (r *JSONReader) Close() error {
	return r.rc.Close()
}

// JSONWriter encodes values onto a streamed JSON array that is never
// finalized until Close: the bytes on the wire remain, at any prefix,
// a syntactically valid open array.
type JSONWriter struct {
	wc     io.WriteCloser
	prefix byte
}

func NewJSONWriter(wc io.WriteCloser) *JSONWriter {
	return &JSONWriter{wc: wc, prefix: '['}
}

// JSONWriterFactory matches WriterFactory.
func JSONWriterFactory(wc io.WriteCloser) Writer {
	return NewJSONWriter(wc)
}

// Send flushes one value immediately: `[` plus the value on the first
// call, `,` plus the value on each one after.
func (w *JSONWriter) Send(v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("could not encode json value: %w", err)
	}
	buf := make([]byte, 0, len(raw)+1)
	buf = append(buf, w.prefix)
	buf = append(buf, raw...)
	if _, err := w.wc.Write(buf); err != nil {
		return err
	}
	w.prefix = ','
	return nil
}

// Close finalizes the array and shuts the stream down.
func (w *JSONWriter) Close() error {
	_, werr := w.wc.Write([]byte{']'})
	cerr := w.wc.Close()
	if werr != nil {
		return werr
	}
	return cerr
}
