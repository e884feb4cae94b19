package framing_test

import (
	"bytes"
	"errors"
	"io"
	"net"
	"testing"
	"testing/iotest"
	"time"

	"github.com/matryer/is"

	"github.com/pydsigner/coregent/internal/framing"
	"github.com/pydsigner/coregent/internal/protocol"
)

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

func testRegistry(t *testing.T) *protocol.Registry {
	t.Helper()

	chatType := protocol.NewType(1000, "Chat",
		protocol.F("time", protocol.Fixed(protocol.Float64)),
		protocol.F("user", protocol.Text8),
		protocol.F("msg", protocol.Text32),
	)
	ping := protocol.NewType(1, "Ping")

	reg, err := protocol.NewRegistry([]*protocol.Type{ping, chatType})
	if err != nil {
		t.Fatal(err)
	}
	return reg
}

func mustLookup(t *testing.T, reg *protocol.Registry, id uint64) *protocol.Type {
	t.Helper()

	typ, ok := reg.Lookup(id)
	if !ok {
		t.Fatalf("no type registered under %d", id)
	}
	return typ
}

func TestStructRoundTrip(t *testing.T) {
	is := is.New(t)

	reg := testRegistry(t)
	is.Equal(reg.IDWidth(), 2)

	chatType := mustLookup(t, reg, 1000)
	ping := mustLookup(t, reg, 1)

	first := chatType.MustNew(42.5, "ada", "hello there")
	second := ping.MustNew()

	var buf bytes.Buffer
	writer := framing.NewStructWriter(nopWriteCloser{&buf}, reg)
	is.NoErr(writer.Send(first))
	is.NoErr(writer.Send(second))

	wire := buf.Bytes()

	decode := func(r io.Reader) {
		reader := framing.NewStructReader(io.NopCloser(r), reg)

		v, err := reader.Next()
		is.NoErr(err)
		m, ok := v.(*protocol.Message)
		is.True(ok)
		is.True(m.Is(chatType))
		for i := 0; i < first.Len(); i++ {
			is.Equal(m.Value(i), first.Value(i))
		}

		v, err = reader.Next()
		is.NoErr(err)
		m, ok = v.(*protocol.Message)
		is.True(ok)
		is.True(m.Is(ping))

		// the stream ends exactly at a frame boundary
		_, err = reader.Next()
		is.Equal(err, io.EOF)
	}

	// requested bytes arriving in single reads and one byte at a time
	// must decode identically
	decode(bytes.NewReader(wire))
	decode(iotest.OneByteReader(bytes.NewReader(wire)))
}

func TestStructTruncatedFrame(t *testing.T) {
	is := is.New(t)

	reg := testRegistry(t)
	chatType := mustLookup(t, reg, 1000)

	var buf bytes.Buffer
	writer := framing.NewStructWriter(nopWriteCloser{&buf}, reg)
	is.NoErr(writer.Send(chatType.MustNew(1.0, "bo", "hi")))
	wire := buf.Bytes()

	var truncErr *protocol.TruncatedFrameError

	for _, cut := range []int{1, reg.IDWidth(), len(wire) - 1} {
		reader := framing.NewStructReader(io.NopCloser(bytes.NewReader(wire[:cut])), reg)
		_, err := reader.Next()
		is.True(errors.As(err, &truncErr))
	}
}

func TestStructUnknownMessageType(t *testing.T) {
	is := is.New(t)

	reg := testRegistry(t)

	wire := reg.AppendID(nil, 999)
	reader := framing.NewStructReader(io.NopCloser(bytes.NewReader(wire)), reg)

	_, err := reader.Next()
	var unknownErr *protocol.UnknownMessageTypeError
	is.True(errors.As(err, &unknownErr))
	is.Equal(unknownErr.ID, uint64(999))

	// the writer refuses unregistered messages too
	stray := protocol.NewType(999, "Stray")
	writer := framing.NewStructWriter(nopWriteCloser{&bytes.Buffer{}}, reg)
	err = writer.Send(stray.MustNew())
	is.True(errors.As(err, &unknownErr))
}

func TestJSONWriterWire(t *testing.T) {
	is := is.New(t)

	var buf bytes.Buffer
	writer := framing.NewJSONWriter(nopWriteCloser{&buf})

	is.NoErr(writer.Send("a"))
	is.NoErr(writer.Send(1))
	is.NoErr(writer.Send(map[string]string{"k": "v"}))

	// at any prefix the bytes form a valid open array
	is.Equal(buf.String(), `["a",1,{"k":"v"}`)

	is.NoErr(writer.Close())
	is.Equal(buf.String(), `["a",1,{"k":"v"}]`)
}

func TestJSONReaderIncremental(t *testing.T) {
	is := is.New(t)

	clientSide, serverSide := net.Pipe()
	reader := framing.NewJSONReader(clientSide)
	writer := framing.NewJSONWriter(serverSide)

	// strings and objects are self-delimiting, so the decoder never has
	// to wait for a byte beyond the element itself
	sendErr := make(chan error, 3)
	go func() {
		sendErr <- writer.Send("one")
		sendErr <- writer.Send(map[string]any{"n": 2})
	}()

	// elements arrive before the array is ever finalized
	v, err := reader.Next()
	is.NoErr(err)
	is.Equal(v, "one")

	v, err = reader.Next()
	is.NoErr(err)
	is.Equal(v, map[string]any{"n": float64(2)})

	is.NoErr(<-sendErr)
	is.NoErr(<-sendErr)

	go func() {
		sendErr <- writer.Close()
	}()

	_, err = reader.Next()
	is.Equal(err, io.EOF)
	is.NoErr(<-sendErr)
	is.NoErr(reader.Close())
}

func TestJSONReaderEndOfStream(t *testing.T) {
	is := is.New(t)

	t.Run("empty stream", func(t *testing.T) {
		is := is.New(t)

		reader := framing.NewJSONReader(io.NopCloser(bytes.NewReader(nil)))
		_, err := reader.Next()
		is.Equal(err, io.EOF)
	})

	t.Run("finalized array", func(t *testing.T) {
		is := is.New(t)

		reader := framing.NewJSONReader(io.NopCloser(bytes.NewReader([]byte(`["a"]`))))
		v, err := reader.Next()
		is.NoErr(err)
		is.Equal(v, "a")

		_, err = reader.Next()
		is.Equal(err, io.EOF)
	})

	t.Run("stream stops between elements", func(t *testing.T) {
		is := is.New(t)

		reader := framing.NewJSONReader(io.NopCloser(bytes.NewReader([]byte(`["a"`))))
		v, err := reader.Next()
		is.NoErr(err)
		is.Equal(v, "a")

		_, err = reader.Next()
		is.Equal(err, io.EOF)
	})

	t.Run("stream stops mid element", func(t *testing.T) {
		is := is.New(t)

		reader := framing.NewJSONReader(io.NopCloser(bytes.NewReader([]byte(`["a", "b`))))
		v, err := reader.Next()
		is.NoErr(err)
		is.Equal(v, "a")

		_, err = reader.Next()
		var truncErr *protocol.TruncatedFrameError
		is.True(errors.As(err, &truncErr))
	})
}

func TestJSONOverSocketPair(t *testing.T) {
	is := is.New(t)

	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	is.NoErr(err)
	defer ln.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		writer := framing.NewJSONWriter(conn)
		_ = writer.Send(map[string]any{"type": "chat", "msg": "hi"})
		_ = writer.Close()
	}()

	conn, err := net.DialTimeout("tcp4", ln.Addr().String(), time.Second)
	is.NoErr(err)

	reader := framing.NewJSONReader(conn)
	v, err := reader.Next()
	is.NoErr(err)
	m, ok := v.(map[string]any)
	is.True(ok)
	is.Equal(m["msg"], "hi")

	_, err = reader.Next()
	is.Equal(err, io.EOF)
	is.NoErr(reader.Close())
	<-done
}
