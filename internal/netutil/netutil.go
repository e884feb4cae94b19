// Package netutil resolves connection targets to stream sockets.
package netutil

import (
	"net"
	"strconv"
	"strings"
)

// Target addresses one stream endpoint. Family is "tcp4" or "tcp6";
// left empty it is deduced from Host, a host containing a colon being
// taken for IPv6.
type Target struct {
	Host   string
	Port   int
	Family string
}

func (t Target) Network() string {
	if t.Family != "" {
		return t.Family
	}
	if strings.Contains(t.Host, ":") {
		return "tcp6"
	}
	return "tcp4"
}

func (t Target) Addr() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

func (t Target) String() string {
	return t.Addr()
}

// Dial opens a client connection to t.
func Dial(t Target) (net.Conn, error) {
	return net.Dial(t.Network(), t.Addr())
}

// Listen opens a server socket bound to t.
func Listen(t Target) (net.Listener, error) {
	return net.Listen(t.Network(), t.Addr())
}
