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
	"time"

	"github.com/jhsmart/docsync/lib/clock"
	"github.com/jhsmart/docsync/lib/codec"
	"github.com/jhsmart/docsync/lib/docref"
	"github.com/jhsmart/docsync/lib/docstore"
)

// ClientConfig configures a Client. SocketPath, Clock and Logger are
// required.
type ClientConfig struct {
	SocketPath string
	Clock      clock.Clock
	Logger     *slog.Logger

	// DialTimeout bounds connecting. Defaults to 5s.
	DialTimeout time.Duration

	// ResponseTimeout bounds waiting for a reply. Defaults to 45s.
	ResponseTimeout time.Duration

	// HeartbeatInterval must match the server's. Defaults to
	// DefaultHeartbeatInterval.
	HeartbeatInterval time.Duration

	// ReconnectDelay is the first backoff after a subscribe stream
	// drops. It doubles up to MaxReconnectDelay. Defaults to 1s and
	// 30s.
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration

	// MaxTransactionAttempts bounds re-runs of a transaction whose
	// commit lost a race. Defaults to 25.
	MaxTransactionAttempts int
}

// Client is a docstore.Store backed by a Server. It holds no
// connections between calls and is safe for concurrent use.
type Client struct {
	socketPath        string
	clock             clock.Clock
	logger            *slog.Logger
	dialTimeout       time.Duration
	responseTimeout   time.Duration
	heartbeat         time.Duration
	reconnectDelay    time.Duration
	maxReconnectDelay time.Duration
	maxAttempts       int
}

var (
	_ docstore.Store     = (*Client)(nil)
	_ docstore.Committer = (*Client)(nil)
)

// NewClient returns a Client for the server at cfg.SocketPath. It does
// not connect until first used.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.SocketPath == "" {
		return nil, errors.New("storesocket: SocketPath is required")
	}
	if cfg.Clock == nil {
		return nil, errors.New("storesocket: Clock is required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("storesocket: Logger is required")
	}
	c := &Client{
		socketPath:        cfg.SocketPath,
		clock:             cfg.Clock,
		logger:            cfg.Logger,
		dialTimeout:       cfg.DialTimeout,
		responseTimeout:   cfg.ResponseTimeout,
		heartbeat:         cfg.HeartbeatInterval,
		reconnectDelay:    cfg.ReconnectDelay,
		maxReconnectDelay: cfg.MaxReconnectDelay,
		maxAttempts:       cfg.MaxTransactionAttempts,
	}
	if c.dialTimeout <= 0 {
		c.dialTimeout = 5 * time.Second
	}
	if c.responseTimeout <= 0 {
		c.responseTimeout = 45 * time.Second
	}
	if c.heartbeat <= 0 {
		c.heartbeat = DefaultHeartbeatInterval
	}
	if c.reconnectDelay <= 0 {
		c.reconnectDelay = time.Second
	}
	if c.maxReconnectDelay < c.reconnectDelay {
		c.maxReconnectDelay = max(30*time.Second, c.reconnectDelay)
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = 25
	}
	return c, nil
}

// dial connects to the server. Failures wrap docstore.ErrConnectivity.
func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	dialer := net.Dialer{Timeout: c.dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("storesocket: connecting to %s: %w: %v", c.socketPath, docstore.ErrConnectivity, err)
	}
	return conn, nil
}

// call performs one request-response cycle. A nil result discards the
// response data.
func (c *Client) call(ctx context.Context, action string, request, result any) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		return c.transportError(ctx, action, "writing request", err)
	}
	if unixConn, ok := conn.(*net.UnixConn); ok {
		unixConn.CloseWrite()
	}

	conn.SetReadDeadline(time.Now().Add(c.responseTimeout))
	var response Response
	if err := codec.NewDecoder(io.LimitReader(conn, maxMessageSize)).Decode(&response); err != nil {
		return c.transportError(ctx, action, "reading response", err)
	}
	if !response.OK {
		return decodeError(action, response.Error, response.Code, response.Fields)
	}
	if result != nil && len(response.Data) > 0 {
		if err := codec.Unmarshal(response.Data, result); err != nil {
			return fmt.Errorf("storesocket: decoding %s response: %w", action, err)
		}
	}
	return nil
}

func (c *Client) transportError(ctx context.Context, action, stage string, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("storesocket: %s: %w", action, ctx.Err())
	}
	return fmt.Errorf("storesocket: %s: %s: %w: %v", action, stage, docstore.ErrConnectivity, err)
}

// ReadDocument implements docstore.Store.
func (c *Client) ReadDocument(ctx context.Context, ref docref.Ref) (docstore.Snapshot, error) {
	if err := ref.Validate(); err != nil {
		return docstore.Snapshot{}, err
	}
	var snapshot docstore.Snapshot
	if err := c.call(ctx, ActionRead, refRequest{Action: ActionRead, Ref: ref}, &snapshot); err != nil {
		return docstore.Snapshot{}, err
	}
	return snapshot, nil
}

// Write implements docstore.Store.
func (c *Client) Write(ctx context.Context, ref docref.Ref, fields docstore.Fields, options docstore.WriteOptions) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	return c.call(ctx, ActionWrite, writeRequest{Action: ActionWrite, Ref: ref, Fields: fields, Merge: options.Merge}, nil)
}

// Delete implements docstore.Store.
func (c *Client) Delete(ctx context.Context, ref docref.Ref) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	return c.call(ctx, ActionDelete, refRequest{Action: ActionDelete, Ref: ref}, nil)
}

// Commit implements docstore.Committer.
func (c *Client) Commit(ctx context.Context, preconditions []docstore.Precondition, mutations []docstore.Mutation) error {
	return c.call(ctx, ActionCommit, commitRequest{
		Action:        ActionCommit,
		Preconditions: preconditions,
		Mutations:     mutations,
	}, nil)
}
