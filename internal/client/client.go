// Package client binds a framing pair to a live socket, runs one
// background receive loop per connection, and (through Manager) fans
// received messages out to listeners registered by connection name.
package client

import (
	"fmt"
	"io"
	"net"

	"github.com/phuslu/log"

	"github.com/pydsigner/coregent/internal/framing"
	"github.com/pydsigner/coregent/internal/netutil"
)

// Listener handles one decoded inbound message.
type Listener func(v any)

// Client is one connection: a socket, a reader/writer pair built from
// it, and a dedicated receive loop invoking the on-message callback.
type Client struct {
	target netutil.Target

	newReader framing.ReaderFactory
	newWriter framing.WriterFactory

	onMessage Listener
	logger    *log.Logger

	conn   net.Conn
	reader framing.Reader
	writer framing.Writer

	done chan struct{}
}

// New prepares a client that will dial target on Start.
func New(
	target netutil.Target,
	newReader framing.ReaderFactory,
	newWriter framing.WriterFactory,
	onMessage Listener,
	logger *log.Logger,
) *Client {
	// if logger is nil (which might be true in tests) => use default,
	// but silenced logger
	if logger == nil {
		tmp := log.DefaultLogger
		logger = &tmp
		logger.Writer = &log.IOWriter{Writer: io.Discard}
	}

	return &Client{
		target:    target,
		newReader: newReader,
		newWriter: newWriter,
		onMessage: onMessage,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// Attach prepares a client around an already-live socket, as handed
// out by a server accept loop.
func Attach(
	conn net.Conn,
	newReader framing.ReaderFactory,
	newWriter framing.WriterFactory,
	onMessage Listener,
	logger *log.Logger,
) *Client {
	c := New(netutil.Target{}, newReader, newWriter, onMessage, logger)
	c.conn = conn
	return c
}

// Start connects (unless a socket was attached), builds the writer and
// reader bound to the socket, and launches the receive loop.
func (c *Client) Start() error {
	if c.conn == nil {
		conn, err := netutil.Dial(c.target)
		if err != nil {
			return fmt.Errorf("could not dial %s: %w", c.target, err)
		}
		c.conn = conn
	}

	c.writer = c.newWriter(c.conn)
	c.reader = c.newReader(c.conn)

	go c.handleMessages()
	return nil
}

// handleMessages repeatedly pulls the next decoded message and invokes
// the callback synchronously, preserving wire order. Clean end of
// stream exits quietly; any frame-level error terminates the loop. The
// reader is closed on the way out.
func (c *Client) handleMessages() {
	defer close(c.done)
	defer c.reader.Close()

	for {
		v, err := c.reader.Next()
		if err != nil {
			if err == io.EOF {
				c.logger.Debug().
					Msgf("connection %s closed", c.conn.RemoteAddr())
			} else {
				c.logger.Error().
					Msgf("receive loop terminated: %v", err)
			}
			return
		}

		if c.onMessage != nil {
			c.onMessage(v)
		}
	}
}

// Send forwards v to the writer. Not synchronized: callers sending
// from several goroutines must add their own lock.
func (c *Client) Send(v any) error {
	if c.writer == nil {
		return fmt.Errorf("connection not started")
	}
	return c.writer.Send(v)
}

// Close closes the writer and with it the socket; the receive loop
// observes the resulting end of stream and exits on its own.
func (c *Client) Close() error {
	if c.writer == nil {
		return fmt.Errorf("connection not started")
	}
	return c.writer.Close()
}

// Done is closed once the receive loop has exited.
func (c *Client) Done() <-chan struct{} {
	return c.done
}
