package client

import (
	"fmt"
	"io"
	"sync"

	"github.com/phuslu/log"

	"github.com/pydsigner/coregent/internal/framing"
	"github.com/pydsigner/coregent/internal/netutil"
)

// Manager is a named registry of connections plus per-name listener
// lists. Listener lists outlive the connections: replacing or closing
// a connection keeps its listeners registered so a later Open under
// the same name reuses them.
//
// The mutex guards only the two maps and is never held around socket
// I/O, so a stalled connection cannot block work on the others.
type Manager struct {
	newReader framing.ReaderFactory
	newWriter framing.WriterFactory
	logger    *log.Logger

	mu        sync.Mutex
	conns     map[string]*Client
	listeners map[string][]Listener
}

func NewManager(newReader framing.ReaderFactory, newWriter framing.WriterFactory, logger *log.Logger) *Manager {
	// if logger is nil (which might be true in tests) => use default,
	// but silenced logger
	if logger == nil {
		tmp := log.DefaultLogger
		logger = &tmp
		logger.Writer = &log.IOWriter{Writer: io.Discard}
	}

	return &Manager{
		newReader: newReader,
		newWriter: newWriter,
		logger:    logger,
		conns:     make(map[string]*Client),
		listeners: make(map[string][]Listener),
	}
}

// Open connects to target and stores the connection under name,
// closing and replacing any connection previously stored there. If
// onMessage is given it is registered as a listener first. Existing
// listeners for name are kept in all cases, which lets Open revive a
// closed connection.
func (m *Manager) Open(name string, target netutil.Target, onMessage Listener) error {
	m.mu.Lock()
	if _, ok := m.listeners[name]; !ok {
		m.listeners[name] = nil
	}
	if onMessage != nil {
		m.listeners[name] = append(m.listeners[name], onMessage)
	}
	m.mu.Unlock()

	// Listener resolution is deferred to receive time so listeners
	// registered after Open still see this connection's messages.
	next := New(target, m.newReader, m.newWriter, func(v any) {
		m.dispatch(name, v)
	}, m.logger)
	if err := next.Start(); err != nil {
		return fmt.Errorf("could not open connection %q: %w", name, err)
	}

	m.mu.Lock()
	prev := m.conns[name]
	m.conns[name] = next
	m.mu.Unlock()

	if prev != nil {
		if err := prev.Close(); err != nil {
			m.logger.Error().
				Msgf("could not close replaced connection %q: %v", name, err)
		}
	}

	return nil
}

// CloseConn closes and removes the connection stored under name.
// Listeners remain registered.
func (m *Manager) CloseConn(name string) error {
	m.mu.Lock()
	conn, ok := m.conns[name]
	delete(m.conns, name)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("no connection registered under %q", name)
	}
	return conn.Close()
}

// RegisterListener appends onMessage to the listener list for name.
// All listeners for a name receive every message in registration
// order.
func (m *Manager) RegisterListener(name string, onMessage Listener) {
	m.mu.Lock()
	m.listeners[name] = append(m.listeners[name], onMessage)
	m.mu.Unlock()
}

// Send forwards v to the named connection.
func (m *Manager) Send(name string, v any) error {
	m.mu.Lock()
	conn, ok := m.conns[name]
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("no connection registered under %q", name)
	}
	return conn.Send(v)
}

// dispatch fans one received message out to every listener for name in
// registration order. The lock covers only the snapshot, not the
// listener calls.
func (m *Manager) dispatch(name string, v any) {
	m.mu.Lock()
	fns := make([]Listener, len(m.listeners[name]))
	copy(fns, m.listeners[name])
	m.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}
