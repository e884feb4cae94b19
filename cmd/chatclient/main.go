// Command chatclient is an interactive console client for the
// reference chat server: lines typed on stdin go out as chat, inbound
// traffic is pretty-printed. Type "bye" to leave.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"

	"github.com/pydsigner/coregent/internal/chat"
	"github.com/pydsigner/coregent/internal/client"
	"github.com/pydsigner/coregent/internal/debug"
	"github.com/pydsigner/coregent/internal/framing"
	"github.com/pydsigner/coregent/internal/netutil"
	"github.com/pydsigner/coregent/internal/protocol"
)

type Config struct {
	Host string `envconfig:"CHAT_HOST" default:"localhost"`
	Port int    `envconfig:"CHAT_PORT" default:"40001"`
}

func displayMessage(v any) {
	m, ok := v.(*protocol.Message)
	debug.Assert(ok)

	switch {
	case m.Is(chat.Welcome):
		fmt.Printf("(%f) MOTD: %s\n", chat.Time(m), chat.Text(m, "msg"))
	case m.Is(chat.Connect):
		fmt.Printf("* %s has joined the chat\n", chat.Text(m, "user"))
	case m.Is(chat.Disconnect):
		fmt.Printf("* %s has left the chat\n", chat.Text(m, "user"))
	case m.Is(chat.ServerChat):
		if chat.Text(m, "source") == "server" {
			fmt.Printf("!! (%f) %s\n", chat.Time(m), chat.Text(m, "msg"))
		} else {
			fmt.Printf("(%f) %s: %s\n", chat.Time(m), chat.Text(m, "source"), chat.Text(m, "msg"))
		}
	default:
		fmt.Printf("Unknown message: %s\n", m)
	}
}

func erringMain() error {
	config := new(Config)
	if err := envconfig.Process("", config); err != nil {
		return fmt.Errorf("could not process config: %w", err)
	}

	reg := chat.Registry()
	c := client.New(
		netutil.Target{Host: config.Host, Port: config.Port},
		framing.StructReaderFactory(reg),
		framing.StructWriterFactory(reg),
		displayMessage,
		nil,
	)
	if err := c.Start(); err != nil {
		return fmt.Errorf("could not connect: %w", err)
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(" -> ")
		if !scanner.Scan() {
			break
		}

		line := scanner.Text()
		if strings.HasPrefix(strings.ToLower(line), "bye") {
			break
		}

		if err := c.Send(chat.NewClientChat(line)); err != nil {
			return fmt.Errorf("could not send chat: %w", err)
		}
	}

	if err := c.Close(); err != nil {
		return fmt.Errorf("could not close connection: %w", err)
	}
	<-c.Done()
	return scanner.Err()
}

func main() {
	if err := erringMain(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
