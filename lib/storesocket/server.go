// Copyright 2026 The Docsync Authors
// SPDX-License-Identifier: Apache-2.0

package storesocket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/jhsmart/docsync/lib/clock"
	"github.com/jhsmart/docsync/lib/codec"
	"github.com/jhsmart/docsync/lib/docstore"
)

// Backend is the store a Server exposes.
type Backend interface {
	docstore.Store
	docstore.Committer
}

// ServerConfig configures a Server. All fields but HeartbeatInterval
// are required.
type ServerConfig struct {
	SocketPath        string
	Store             Backend
	Clock             clock.Clock
	Logger            *slog.Logger
	HeartbeatInterval time.Duration
}

// Server serves a Backend on a Unix socket.
type Server struct {
	socketPath string
	store      Backend
	clock      clock.Clock
	logger     *slog.Logger
	heartbeat  time.Duration

	// active tracks connection handlers so Serve can wait for them.
	active sync.WaitGroup
}

// Read and write deadlines for one request-response cycle.
const (
	readTimeout  = 30 * time.Second
	writeTimeout = 10 * time.Second
)

// NewServer validates cfg and returns a Server ready to Serve.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.SocketPath == "" {
		return nil, errors.New("storesocket: SocketPath is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("storesocket: Store is required")
	}
	if cfg.Clock == nil {
		return nil, errors.New("storesocket: Clock is required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("storesocket: Logger is required")
	}
	heartbeat := cfg.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeatInterval
	}
	return &Server{
		socketPath: cfg.SocketPath,
		store:      cfg.Store,
		clock:      cfg.Clock,
		logger:     cfg.Logger,
		heartbeat:  heartbeat,
	}, nil
}

// Serve accepts connections until ctx is cancelled, then waits for
// in-flight requests and open streams to finish. A stale socket file
// is replaced; the socket file is removed on return.
func (s *Server) Serve(ctx context.Context) error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storesocket: removing stale socket %s: %w", s.socketPath, err)
	}
	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("storesocket: listening on %s: %w", s.socketPath, err)
	}
	defer func() {
		listener.Close()
		os.Remove(s.socketPath)
	}()

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.logger.Info("store socket listening", "path", s.socketPath)
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}
		s.active.Add(1)
		go func() {
			defer s.active.Done()
			s.handleConnection(ctx, conn)
		}()
	}
	s.active.Wait()
	return nil
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	var raw codec.RawMessage
	if err := codec.NewDecoder(io.LimitReader(conn, maxMessageSize)).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return
		}
		s.writeResponse(conn, failure(fmt.Errorf("invalid request: %w", err)))
		return
	}
	conn.SetReadDeadline(time.Time{})

	var header struct {
		Action string `cbor:"action"`
	}
	if err := codec.Unmarshal(raw, &header); err != nil {
		s.writeResponse(conn, failure(fmt.Errorf("invalid request: %w", err)))
		return
	}

	if header.Action == ActionSubscribe {
		s.handleSubscribe(ctx, raw, conn)
		return
	}

	result, err := s.dispatch(ctx, header.Action, raw)
	if err != nil {
		s.logger.Debug("store action failed", "action", header.Action, "error", err)
		s.writeResponse(conn, failure(err))
		return
	}
	response := Response{OK: true}
	if result != nil {
		data, err := codec.Marshal(result)
		if err != nil {
			s.writeResponse(conn, failure(fmt.Errorf("internal: marshaling response: %w", err)))
			return
		}
		response.Data = data
	}
	s.writeResponse(conn, response)
}

func (s *Server) dispatch(ctx context.Context, action string, raw []byte) (any, error) {
	switch action {
	case "":
		return nil, errors.New("missing required field: action")

	case ActionRead:
		var request refRequest
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, fmt.Errorf("invalid read request: %w", err)
		}
		snapshot, err := s.store.ReadDocument(ctx, request.Ref)
		if err != nil {
			return nil, err
		}
		return snapshot, nil

	case ActionWrite:
		var request writeRequest
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, fmt.Errorf("invalid write request: %w", err)
		}
		return nil, s.store.Write(ctx, request.Ref, request.Fields, docstore.WriteOptions{Merge: request.Merge})

	case ActionDelete:
		var request refRequest
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, fmt.Errorf("invalid delete request: %w", err)
		}
		return nil, s.store.Delete(ctx, request.Ref)

	case ActionCommit:
		var request commitRequest
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, fmt.Errorf("invalid commit request: %w", err)
		}
		return nil, s.store.Commit(ctx, request.Preconditions, request.Mutations)
	}
	return nil, fmt.Errorf("unknown action %q", action)
}

func failure(err error) Response {
	message, code, fields := encodeError(err)
	return Response{Error: message, Code: code, Fields: fields}
}

func (s *Server) writeResponse(conn net.Conn, response Response) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := codec.NewEncoder(conn).Encode(response); err != nil {
		s.logger.Debug("failed to write response", "error", err)
	}
}
