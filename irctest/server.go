// Package irctest provides an in-memory IRC server mock for exercising
// clients without a network.
package irctest

import (
	"bufio"
	"net"
	"strings"
	"time"
)

// Server is one end of an in-memory connection. Lines the client writes
// arrive on Lines; WriteString speaks as the server.
type Server struct {
	conn  net.Conn
	Lines chan string
}

// NewServer returns a mock server and the client half of its connection.
func NewServer() (*Server, net.Conn) {
	server, client := net.Pipe()
	s := &Server{
		conn:  server,
		Lines: make(chan string, 64),
	}
	go s.read()
	return s, client
}

func (s *Server) read() {
	defer close(s.Lines)
	scanner := bufio.NewScanner(s.conn)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		s.Lines <- line
	}
}

// WriteString sends one or more CRLF-terminated lines to the client.
func (s *Server) WriteString(str string) error {
	if !strings.HasSuffix(str, "\r\n") {
		str += "\r\n"
	}
	_, err := s.conn.Write([]byte(str))
	return err
}

// Expect waits for the next line from the client and reports whether it
// begins with the given prefix; the line itself is returned for error
// messages.
func (s *Server) Expect(prefix string, timeout time.Duration) (string, bool) {
	select {
	case line, ok := <-s.Lines:
		if !ok {
			return "", false
		}
		return line, strings.HasPrefix(line, prefix)
	case <-time.After(timeout):
		return "", false
	}
}

// Close tears the connection down.
func (s *Server) Close() error {
	return s.conn.Close()
}
