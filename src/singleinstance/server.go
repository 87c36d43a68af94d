package singleinstance

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"
	"time"
)

// ErrAlreadyRunning is returned by Listen when another resident answers PING.
var ErrAlreadyRunning = errors.New("resident already running")

// Server owns the loopback listener of the resident.
type Server struct {
	lis  net.Listener
	port int

	mu     sync.Mutex
	closed bool
}

// Listen claims the first free port in PortRange. It fails with
// ErrAlreadyRunning when a resident is already reachable.
func Listen(ctx context.Context) (*Server, error) {
	if port, ok := DetectResident(ctx); ok {
		return nil, fmt.Errorf("%w on port %d", ErrAlreadyRunning, port)
	}
	start, end := PortRange()
	var lastErr error
	for port := start; port <= end; port++ {
		addr := net.JoinHostPort(residentHost, strconv.Itoa(port))
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			lastErr = err
			continue
		}
		log.Printf("singleinstance: listening on %s", addr)
		return &Server{lis: lis, port: port}, nil
	}
	return nil, fmt.Errorf("singleinstance: no free port in %d-%d: %w", start, end, lastErr)
}

// Port returns the bound TCP port.
func (s *Server) Port() int { return s.port }

// Serve answers PING and dispatches commands to h until ctx is cancelled or
// the server is closed. Each connection carries a single line.
func (s *Server) Serve(ctx context.Context, h Handler) error {
	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	for {
		c, err := s.lis.Accept()
		if err != nil {
			if s.isClosed() {
				return nil
			}
			return err
		}
		go s.handle(c, h)
	}
}

func (s *Server) handle(c net.Conn, h Handler) {
	defer c.Close()
	remote := c.RemoteAddr().String()
	_ = c.SetDeadline(time.Now().Add(3 * time.Second))

	line, err := bufio.NewReader(c).ReadString('\n')
	if err != nil {
		log.Printf("singleinstance: read from %s: %v", remote, err)
		return
	}
	if line == pingRequest {
		_, _ = c.Write([]byte(pongResponse))
		return
	}

	cmd, err := parseCommand(line)
	if err == nil {
		log.Printf("singleinstance: %s from %s", cmd, remote)
		err = h(cmd)
	}
	if err != nil {
		log.Printf("singleinstance: request from %s failed: %v", remote, err)
		_, _ = c.Write([]byte(replyError + err.Error()))
		return
	}
	_, _ = c.Write([]byte(replyOK))
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close stops accepting connections. Safe to call more than once.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.lis.Close()
}
