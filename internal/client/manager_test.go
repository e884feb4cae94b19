package client_test

import (
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/matryer/is"

	"github.com/pydsigner/coregent/internal/client"
	"github.com/pydsigner/coregent/internal/framing"
	"github.com/pydsigner/coregent/internal/netutil"
)

// feedServer accepts connections and hands each one back for the test
// to drive directly.
type feedServer struct {
	ln    net.Listener
	conns chan net.Conn
}

func newFeedServer(t *testing.T) *feedServer {
	t.Helper()

	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	fs := &feedServer{ln: ln, conns: make(chan net.Conn, 4)}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			fs.conns <- conn
		}
	}()

	t.Cleanup(func() { ln.Close() })
	return fs
}

func (fs *feedServer) target() netutil.Target {
	addr := fs.ln.Addr().(*net.TCPAddr)
	return netutil.Target{Host: "127.0.0.1", Port: addr.Port}
}

func (fs *feedServer) accept(t *testing.T) net.Conn {
	t.Helper()

	select {
	case conn := <-fs.conns:
		return conn
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for accept")
		return nil
	}
}

// calls records listener invocations in order.
type calls struct {
	mu  sync.Mutex
	seq []string
}

func (c *calls) add(label string, v any) {
	c.mu.Lock()
	c.seq = append(c.seq, label+":"+v.(string))
	c.mu.Unlock()
}

func (c *calls) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.seq...)
}

func (c *calls) waitLen(t *testing.T, n int) []string {
	t.Helper()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if got := c.snapshot(); len(got) >= n {
			return got
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d listener calls (got %v)", n, c.snapshot())
	return nil
}

func TestManagerFanoutOrder(t *testing.T) {
	is := is.New(t)

	fs := newFeedServer(t)
	mgr := client.NewManager(framing.JSONReaderFactory, framing.JSONWriterFactory, nil)

	got := &calls{}
	is.NoErr(mgr.Open("x", fs.target(), func(v any) { got.add("L1", v) }))
	mgr.RegisterListener("x", func(v any) { got.add("L2", v) })

	srv := framing.NewJSONWriter(fs.accept(t))
	is.NoErr(srv.Send("m"))

	// every listener sees the message exactly once, in registration
	// order
	is.Equal(got.waitLen(t, 2), []string{"L1:m", "L2:m"})

	is.NoErr(mgr.CloseConn("x"))
}

func TestManagerReplacement(t *testing.T) {
	is := is.New(t)

	fs := newFeedServer(t)
	mgr := client.NewManager(framing.JSONReaderFactory, framing.JSONWriterFactory, nil)

	got := &calls{}
	is.NoErr(mgr.Open("x", fs.target(), func(v any) { got.add("L", v) }))
	first := fs.accept(t)

	// reopening under the same name closes the first connection and
	// keeps the listener
	is.NoErr(mgr.Open("x", fs.target(), nil))
	second := fs.accept(t)

	is.NoErr(first.SetReadDeadline(time.Now().Add(time.Second)))
	data, err := io.ReadAll(first)
	is.NoErr(err)
	// the replaced client finalized its json array on the way out
	is.Equal(string(data), "]")

	srv := framing.NewJSONWriter(second)
	is.NoErr(srv.Send("after"))
	is.Equal(got.waitLen(t, 1), []string{"L:after"})

	is.NoErr(mgr.CloseConn("x"))
}

func TestManagerSend(t *testing.T) {
	is := is.New(t)

	fs := newFeedServer(t)
	mgr := client.NewManager(framing.JSONReaderFactory, framing.JSONWriterFactory, nil)

	is.NoErr(mgr.Open("x", fs.target(), nil))
	srv := framing.NewJSONReader(fs.accept(t))

	is.NoErr(mgr.Send("x", "ping"))
	v, err := srv.Next()
	is.NoErr(err)
	is.Equal(v, "ping")

	is.NoErr(mgr.CloseConn("x"))
}

func TestManagerUnknownName(t *testing.T) {
	is := is.New(t)

	mgr := client.NewManager(framing.JSONReaderFactory, framing.JSONWriterFactory, nil)

	is.True(mgr.Send("nobody", "m") != nil)
	is.True(mgr.CloseConn("nobody") != nil)
}
