// Package chatserver implements the reference matchmaking/chat server:
// it accepts inbound connections, authenticates a username, and
// forwards chat between all currently connected players.
package chatserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/hashicorp/go-multierror"
	"github.com/phuslu/log"
	"golang.org/x/sync/errgroup"

	"github.com/pydsigner/coregent/internal/chat"
	"github.com/pydsigner/coregent/internal/debug"
	"github.com/pydsigner/coregent/internal/framing"
	"github.com/pydsigner/coregent/internal/netutil"
	"github.com/pydsigner/coregent/internal/protocol"
)

// DuplicateUsernameError rejects a join whose username is already in
// the player map. Recoverable: only the joining connection is torn
// down, never the server.
type DuplicateUsernameError struct {
	Username string
}

func (e *DuplicateUsernameError) Error() string {
	return fmt.Sprintf("username %q already taken", e.Username)
}

const acceptTimeout = 500 * time.Millisecond

type connKey uint64

func makeConnKey(addr net.Addr) connKey {
	return connKey(xxhash.Sum64String(addr.String()))
}

// Server holds the shared player map. The mutex is held only around
// map reads and mutations, never around socket I/O, so one stalled
// player cannot block the rest.
type Server struct {
	ln     net.Listener
	reg    *protocol.Registry
	logger *log.Logger
	motd   string

	mu      sync.Mutex
	players map[string]framing.Writer
}

func NewServer(target netutil.Target, motd string, logger *log.Logger) (*Server, error) {
	ln, err := netutil.Listen(target)
	if err != nil {
		return nil, fmt.Errorf("could not listen on %s: %w", target, err)
	}

	// if logger is nil (which might be true in tests) => use default,
	// but silenced logger
	if logger == nil {
		tmp := log.DefaultLogger
		logger = &tmp
		logger.Writer = &log.IOWriter{Writer: io.Discard}
	}

	return &Server{
		ln:      ln,
		reg:     chat.Registry(),
		logger:  logger,
		motd:    motd,
		players: make(map[string]framing.Writer),
	}, nil
}

// Addr can be useful to retrieve the server's address when it was
// constructed with port 0.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Run serves until ctx is canceled. Per-connection failures never
// terminate the accept loop.
func (s *Server) Run(ctx context.Context) error {
	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return s.acceptLoop(gctx)
	})
	group.Go(func() error {
		<-gctx.Done()
		// unblock a pending accept immediately instead of waiting out
		// the deadline lap
		return s.ln.Close()
	})

	err := group.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// acceptLoop accepts with a bounded timeout so shutdown is never
// stuck behind a blocking accept.
func (s *Server) acceptLoop(ctx context.Context) error {
	tcp, ok := s.ln.(*net.TCPListener)
	debug.Assert(ok)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			err := tcp.SetDeadline(time.Now().Add(acceptTimeout))
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("could not arm accept deadline: %w", err)
			}

			conn, err := tcp.Accept()
			if err != nil {
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					continue
				}
				if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
					return ctx.Err()
				}
				s.logger.Error().
					Msgf("could not accept: %v", err)
				continue
			}

			s.logger.Info().
				Msgf("connection from %s (conn %d)", conn.RemoteAddr(), makeConnKey(conn.RemoteAddr()))
			go s.handleConn(conn)
		}
	}
}

// handleConn drives one inbound connection through its life:
// authenticate a username, register it, then rebroadcast its chat
// until the stream ends.
func (s *Server) handleConn(conn net.Conn) {
	key := makeConnKey(conn.RemoteAddr())
	reader := framing.NewStructReader(conn, s.reg)
	writer := framing.NewStructWriter(conn, s.reg)

	username, err := s.authenticate(reader, writer)
	if err == nil {
		err = s.registerPlayer(username, writer)
		if err != nil {
			if serr := writer.Send(chat.NewServerChat(nowSeconds(), "server", "Username taken")); serr != nil {
				s.logger.Error().
					Msgf("could not send rejection to conn %d: %v", key, serr)
			}
		}
	}
	if err != nil {
		var dup *DuplicateUsernameError
		if errors.As(err, &dup) {
			s.logger.Info().
				Msgf("rejected conn %d: %v", key, err)
		} else {
			s.logger.Error().
				Msgf("could not authenticate conn %d: %v", key, err)
		}
		if cerr := reader.Close(); cerr != nil {
			s.logger.Error().
				Msgf("could not close conn %d: %v", key, cerr)
		}
		return
	}

	s.logger.Info().
		Msgf("added player %q (conn %d)", username, key)
	s.broadcast(username, chat.NewConnect(username))

	s.runPlayerLoop(username, reader)
}

// authenticate sends the welcome (roster) and the username prompt,
// then blocks for exactly one inbound chat message whose payload is
// the desired username.
func (s *Server) authenticate(reader framing.Reader, writer framing.Writer) (string, error) {
	roster := "Players currently connected: " + strings.Join(s.playerNames(), ", ")
	if s.motd != "" {
		roster = s.motd + "\n" + roster
	}
	if err := writer.Send(chat.NewWelcome(nowSeconds(), roster)); err != nil {
		return "", fmt.Errorf("could not send welcome: %w", err)
	}
	if err := writer.Send(chat.NewServerChat(nowSeconds(), "server", "Send me your username")); err != nil {
		return "", fmt.Errorf("could not send username prompt: %w", err)
	}

	v, err := reader.Next()
	if err != nil {
		return "", fmt.Errorf("could not read username: %w", err)
	}
	m, ok := v.(*protocol.Message)
	debug.Assert(ok)
	if !m.Is(chat.ClientChat) {
		return "", fmt.Errorf("want %s for the username handshake, got %s", chat.ClientChat.Name(), m.Name())
	}
	return chat.Text(m, "msg"), nil
}

// registerPlayer checks and inserts under one critical section so two
// simultaneous joins with the same name cannot both pass.
func (s *Server) registerPlayer(username string, w framing.Writer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.players[username]; taken {
		return &DuplicateUsernameError{Username: username}
	}
	s.players[username] = w
	return nil
}

func (s *Server) removePlayer(username string) {
	s.mu.Lock()
	delete(s.players, username)
	s.mu.Unlock()
}

func (s *Server) playerNames() []string {
	s.mu.Lock()
	names := make([]string, 0, len(s.players))
	for name := range s.players {
		names = append(names, name)
	}
	s.mu.Unlock()

	sort.Strings(names)
	return names
}

// runPlayerLoop rebroadcasts every inbound message as chat until the
// stream ends, then removes the player and announces the departure
// whatever the cause of the exit.
func (s *Server) runPlayerLoop(username string, reader framing.Reader) {
	defer func() {
		s.removePlayer(username)
		if err := reader.Close(); err != nil {
			s.logger.Error().
				Msgf("could not close connection of %q: %v", username, err)
		}
		s.broadcast(username, chat.NewDisconnect(username))
		s.logger.Info().
			Msgf("removed player %q", username)
	}()

	for {
		v, err := reader.Next()
		if err != nil {
			if err != io.EOF {
				s.logger.Error().
					Msgf("receive loop of %q terminated: %v", username, err)
			}
			return
		}

		m, ok := v.(*protocol.Message)
		debug.Assert(ok)
		s.playerMessage(username, m)
	}
}

func (s *Server) playerMessage(username string, m *protocol.Message) {
	if !m.Is(chat.ClientChat) {
		// log and ignore rather than crash the player loop
		s.logger.Warn().
			Msgf("unexpected message from %q: %s", username, m)
		return
	}

	s.broadcast(username, chat.NewServerChat(nowSeconds(), username, chat.Text(m, "msg")))
}

// broadcast sends m to every registered player except sender. Writers
// emit each frame in a single write, so concurrent player loops
// broadcasting to the same target cannot interleave bytes.
func (s *Server) broadcast(sender string, m *protocol.Message) {
	s.mu.Lock()
	targets := make(map[string]framing.Writer, len(s.players))
	for name, w := range s.players {
		if name != sender {
			targets[name] = w
		}
	}
	s.mu.Unlock()

	var errs error
	for name, w := range targets {
		if err := w.Send(m); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("send to %q: %w", name, err))
		}
	}
	if errs != nil {
		s.logger.Error().
			Msgf("could not broadcast %s from %q: %v", m.Name(), sender, errs)
	}
}

func nowSeconds() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}
