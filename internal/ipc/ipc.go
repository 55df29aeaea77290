// Package ipc is the local control channel: one JSON request and one JSON
// response per unix socket connection.
package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	log "log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	CmdListen = "listen"
	CmdStop   = "stop"
	CmdSend   = "send"
	CmdFile   = "file"
	CmdExit   = "exit"
	CmdStatus = "status"
)

type Request struct {
	Cmd  string `json:"cmd"`
	Text string `json:"text,omitempty"`
	Path string `json:"path,omitempty"`
}

type Response struct {
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
	Text      string `json:"text,omitempty"`
	Listening bool   `json:"listening,omitempty"`
}

type Handler func(ctx context.Context, req Request) Response

// DefaultSocketPath is $TMPDIR/ladybot.sock.
func DefaultSocketPath() string {
	return filepath.Join(os.TempDir(), "ladybot.sock")
}

type Server struct {
	path    string
	ln      net.Listener
	handler Handler

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Listen replaces any stale socket at path and starts serving.
func Listen(path string, handler Handler) (*Server, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		ln.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{path: path, ln: ln, handler: handler, ctx: ctx, cancel: cancel}

	s.wg.Add(1)
	go s.acceptLoop()
	return s, nil
}

func (s *Server) Path() string { return s.path }

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Warn("Control accept failed", "err", err)
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

	var req Request
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		_ = json.NewEncoder(conn).Encode(Response{Error: "bad request: " + err.Error()})
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	log.Debug("Control command", "cmd", req.Cmd)
	res := s.handler(s.ctx, req)
	if err := json.NewEncoder(conn).Encode(res); err != nil {
		log.Debug("Control reply failed", "err", err)
	}
}

// Close stops accepting, cancels running handlers and removes the socket.
func (s *Server) Close() error {
	err := s.ln.Close()
	s.cancel()
	s.wg.Wait()
	os.Remove(s.path)
	return err
}

// Send issues one command and waits for its response.
func Send(ctx context.Context, path string, req Request) (Response, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return Response{}, fmt.Errorf("ladybot not running: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return Response{}, fmt.Errorf("write request: %w", err)
	}

	var res Response
	if err := json.NewDecoder(conn).Decode(&res); err != nil {
		if ctx.Err() != nil {
			return Response{}, ctx.Err()
		}
		return Response{}, fmt.Errorf("read response: %w", err)
	}
	if !res.OK && res.Error != "" {
		return res, errors.New(res.Error)
	}
	return res, nil
}
