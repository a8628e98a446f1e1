// Package ipc is the daemon's control socket: one JSON request and one JSON
// reply per connection.
package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	log "log/slog"
	"net"
	"os"
	"sync"
	"time"
)

const DefaultSocketPath = "/tmp/risi.sock"

// requestTimeout bounds how long a client may take to send its message.
const requestTimeout = 10 * time.Second

type ControlMessage struct {
	Cmd  string `json:"cmd"`
	Text string `json:"text,omitempty"`
}

type ControlReply struct {
	OK    bool   `json:"ok"`
	State string `json:"state,omitempty"`
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

type Handler func(ctx context.Context, msg ControlMessage) ControlReply

type Server struct {
	path    string
	handler Handler

	ln     net.Listener
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// Listen removes a stale socket at path and starts accepting connections.
func Listen(path string, handler Handler) (*Server, error) {
	if path == "" {
		path = DefaultSocketPath
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{path: path, handler: handler, ln: ln, ctx: ctx, cancel: cancel}

	s.wg.Add(1)
	go s.accept()

	log.Debug("Control socket listening", "path", path)
	return s, nil
}

func (s *Server) accept() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			log.Warn("Accept failed", "err", err)
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	// Close must not wait on a client that never finishes its request
	finished := make(chan struct{})
	defer close(finished)
	go func() {
		select {
		case <-s.ctx.Done():
			conn.Close()
		case <-finished:
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(requestTimeout))

	var msg ControlMessage
	if err := json.NewDecoder(conn).Decode(&msg); err != nil {
		log.Warn("Bad control message", "err", err)
		_ = json.NewEncoder(conn).Encode(ControlReply{Error: "invalid message"})
		return
	}

	log.Debug("Control message", "cmd", msg.Cmd)
	reply := s.handler(s.ctx, msg)
	if err := json.NewEncoder(conn).Encode(reply); err != nil {
		log.Warn("Failed to write reply", "err", err)
	}
}

// Close stops accepting, cancels in-flight handlers' context and waits for
// them.
func (s *Server) Close() error {
	s.cancel()
	err := s.ln.Close()
	s.wg.Wait()
	_ = os.Remove(s.path)
	return err
}

// Send delivers one command and waits for the reply.
func Send(ctx context.Context, path string, msg ControlMessage) (ControlReply, error) {
	if path == "" {
		path = DefaultSocketPath
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return ControlReply{}, err
	}
	defer conn.Close()

	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	} else {
		_ = conn.SetDeadline(time.Now().Add(5 * time.Minute))
	}

	if err := json.NewEncoder(conn).Encode(msg); err != nil {
		return ControlReply{}, fmt.Errorf("send: %w", err)
	}

	var reply ControlReply
	if err := json.NewDecoder(conn).Decode(&reply); err != nil {
		return ControlReply{}, fmt.Errorf("read reply: %w", err)
	}
	return reply, nil
}
