// Package chat defines the message catalogue shared by the reference
// matchmaking server and its clients. Both peers must build their
// framing from this registry; the layouts are not negotiated.
package chat

import (
	"github.com/pydsigner/coregent/internal/debug"
	"github.com/pydsigner/coregent/internal/protocol"
)

var (
	// Connect announces a player joining, Disconnect a player leaving.
	Connect    = protocol.NewType(1, "Connect", protocol.F("user", protocol.Text8))
	Disconnect = protocol.NewType(3, "Disconnect", protocol.F("user", protocol.Text8))

	// Welcome is the server's greeting: current time and the roster.
	Welcome = protocol.NewType(2, "Welcome",
		protocol.F("time", protocol.Fixed(protocol.Float64)),
		protocol.F("msg", protocol.Text32),
	)

	// ClientChat carries one line of chat from a client; ServerChat is
	// its rebroadcast form, tagged with sender and timestamp.
	ClientChat = protocol.NewType(1000, "ClientChat", protocol.F("msg", protocol.Text32))
	ServerChat = protocol.NewType(1001, "ServerChat",
		protocol.F("time", protocol.Fixed(protocol.Float64)),
		protocol.F("source", protocol.Text8),
		protocol.F("msg", protocol.Text32),
	)
)

// Registry compiles the catalogue. Construction cannot fail: the ids
// above are unique and well within a 16-bit header.
func Registry() *protocol.Registry {
	reg, err := protocol.NewRegistry([]*protocol.Type{
		Connect, Welcome, Disconnect, ClientChat, ServerChat,
	})
	debug.Assert(err == nil)
	return reg
}

func NewConnect(user string) *protocol.Message {
	return Connect.MustNew(user)
}

func NewDisconnect(user string) *protocol.Message {
	return Disconnect.MustNew(user)
}

func NewWelcome(time float64, msg string) *protocol.Message {
	return Welcome.MustNew(time, msg)
}

func NewClientChat(msg string) *protocol.Message {
	return ClientChat.MustNew(msg)
}

func NewServerChat(time float64, source, msg string) *protocol.Message {
	return ServerChat.MustNew(time, source, msg)
}

// Text returns the named text field of m.
func Text(m *protocol.Message, field string) string {
	v, ok := m.Get(field)
	debug.Assert(ok)
	s, ok := v.(string)
	debug.Assert(ok)
	return s
}

// Time returns m's "time" field.
func Time(m *protocol.Message) float64 {
	v, ok := m.Get("time")
	debug.Assert(ok)
	t, ok := v.(float64)
	debug.Assert(ok)
	return t
}
