// Package querytest provides a scripted ServerQuery server for tests.
package querytest

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/sasha-s/go-deadlock"
)

const (
	// Greeting is sent by real servers right after the connection has been accepted.
	Greeting = "TS3\n\rWelcome to the TeamSpeak 3 ServerQuery interface, " +
		`type "help" for a list of commands and "help <command>" for information on a specific command.` + "\n\r"

	// OK is the reply line of a successful command.
	OK = "error id=0 msg=ok\n\r"

	// NotFound is sent for unknown commands.
	NotFound = "error id=256 msg=command\\snot\\sfound\n\r"
)

// Reply builds a successful reply carrying the given data line.
func Reply(data string) string {
	return data + "\n\r" + OK
}

// ErrorReply builds an error reply, msg must already be escaped.
func ErrorReply(id int, msg string) string {
	return fmt.Sprintf("error id=%d msg=%s\n\r", id, msg)
}

// HandlerFunc can take over a command. It returns false to fall back to the scripted replies.
type HandlerFunc func(conn net.Conn, cmd string) bool

// Server answers commands from a table of scripted replies.
type Server struct {
	greeting string
	replies  map[string]string
	listener net.Listener
	handler  HandlerFunc
	mutex    deadlock.Mutex
	commands []string
	conns    []net.Conn
	wg       sync.WaitGroup
}

// NewServer starts a server on a random local port, it is closed when the test ends.
func NewServer(t testing.TB, replies map[string]string) *Server {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to start query test server: %s", err.Error())
	}

	srv := &Server{
		greeting: Greeting,
		replies:  map[string]string{},
		listener: listener,
	}
	for cmd, reply := range replies {
		srv.replies[cmd] = reply
	}

	srv.wg.Add(1)
	go srv.serve()
	t.Cleanup(srv.Close)

	return srv
}

// Host returns the listening ip address.
func (s *Server) Host() string {
	return s.listener.Addr().(*net.TCPAddr).IP.String()
}

// Port returns the listening port.
func (s *Server) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

// SetGreeting replaces the greeting sent to new connections, empty disables the greeting.
func (s *Server) SetGreeting(greeting string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.greeting = greeting
}

// SetReply sets the scripted reply for a command line.
func (s *Server) SetReply(cmd, reply string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.replies[cmd] = reply
}

// SetHandler installs a handler which is asked first for every command.
func (s *Server) SetHandler(handler HandlerFunc) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.handler = handler
}

// Commands returns all received command lines in order.
func (s *Server) Commands() []string {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return append([]string{}, s.commands...)
}

// Close stops the listener and all open connections.
func (s *Server) Close() {
	s.listener.Close()

	s.mutex.Lock()
	for _, conn := range s.conns {
		conn.Close()
	}
	s.mutex.Unlock()

	s.wg.Wait()
}

func (s *Server) serve() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}

		s.mutex.Lock()
		s.conns = append(s.conns, conn)
		s.mutex.Unlock()

		s.wg.Add(1)
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	s.mutex.Lock()
	greeting := s.greeting
	s.mutex.Unlock()

	if greeting != "" {
		if _, err := io.WriteString(conn, greeting); err != nil {
			return
		}
	}

	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.TrimRight(line, "\r\n")

		s.mutex.Lock()
		s.commands = append(s.commands, cmd)
		handler := s.handler
		s.mutex.Unlock()

		if handler != nil && handler(conn, cmd) {
			continue
		}

		if cmd == "quit" {
			io.WriteString(conn, OK) //nolint:errcheck // peer may be gone already

			return
		}

		s.mutex.Lock()
		reply, ok := s.replies[cmd]
		s.mutex.Unlock()
		if !ok {
			reply = NotFound
		}
		if _, err := io.WriteString(conn, reply); err != nil {
			return
		}
	}
}
