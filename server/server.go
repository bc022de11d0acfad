package server

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net"
	"os"

	"go.uber.org/zap"

	"github.com/martinemde/deskagent/agent"
)

// Server serves the protocol over one or more transports. Every
// transport speaks the same one-JSON-object-per-line envelope; a UI
// written against stdio works unmodified against the socket.
type Server struct {
	hub     *Hub
	handler *Handler
	manager *agent.Manager
	logger  *zap.Logger
}

// New assembles a server.
func New(hub *Hub, handler *Handler, manager *agent.Manager, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{hub: hub, handler: handler, manager: manager, logger: logger}
}

// ServeStdio runs the protocol over stdin/stdout. Returns when stdin
// closes or ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	return s.serveStream(ctx, os.Stdin, os.Stdout)
}

// ServeListener accepts protocol connections (unix or tcp) until ctx is
// cancelled. Each connection gets the bootstrap system_info followed by
// the live event stream.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		s.logger.Info("client connected", zap.String("remote", conn.RemoteAddr().String()))
		go func() {
			defer conn.Close()
			if err := s.serveStream(ctx, conn, conn); err != nil && ctx.Err() == nil {
				s.logger.Warn("client stream ended", zap.Error(err))
			}
			s.logger.Info("client disconnected")
		}()
	}
}

// serveStream runs one full-duplex protocol session over a byte stream.
func (s *Server) serveStream(ctx context.Context, r io.Reader, w io.Writer) error {
	events, unsubscribe := s.hub.Subscribe()
	defer unsubscribe()

	// Bootstrap: the client's first event describes the session.
	info := agent.Event{Type: agent.EventSystemInfo, Fields: s.manager.SystemInfo()}
	if err := writeLine(w, info); err != nil {
		return err
	}

	writeDone := make(chan error, 1)
	go func() {
		for {
			select {
			case <-ctx.Done():
				writeDone <- nil
				return
			case line, ok := <-events:
				if !ok {
					writeDone <- nil
					return
				}
				if _, err := w.Write(append(line, '\n')); err != nil {
					writeDone <- err
					return
				}
			}
		}
	}()

	readDone := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			s.handler.HandleLine(line)
		}
		readDone <- scanner.Err()
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-writeDone:
		return err
	case err := <-readDone:
		return err
	}
}

func writeLine(w io.Writer, ev agent.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = w.Write(append(data, '\n'))
	return err
}
