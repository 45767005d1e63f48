// Copyright 2026 The Docsync Authors
// SPDX-License-Identifier: Apache-2.0

package storesocket

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jhsmart/docsync/lib/codec"
	"github.com/jhsmart/docsync/lib/docref"
	"github.com/jhsmart/docsync/lib/docstore"
)

// Subscribe implements docstore.Store. The subscription runs on its own
// goroutine, reconnecting with exponential backoff whenever the stream
// drops. Reconnects are invisible to the listener apart from a fresh
// snapshot when the state changed while disconnected. Error frames
// other than connectivity and shutdown are delivered and end the
// subscription.
func (c *Client) Subscribe(ref docref.Ref, listener docstore.Listener) (docstore.Handle, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	if listener == nil {
		var problems docref.ValidationError
		problems.Add("listener", "must not be nil")
		return nil, problems.Err()
	}
	ctx, cancel := context.WithCancel(context.Background())
	sub := &subscription{
		client:   c,
		ref:      ref,
		listener: listener,
		ctx:      ctx,
		cancel:   cancel,
	}
	go sub.run()
	return sub, nil
}

type subscription struct {
	client   *Client
	ref      docref.Ref
	listener docstore.Listener
	ctx      context.Context
	cancel   context.CancelFunc

	// signature of the last delivered snapshot. Owned by run.
	signature string
	delivered bool
}

// Close ends the subscription without waiting for its goroutine.
func (s *subscription) Close() {
	s.cancel()
}

func (s *subscription) run() {
	delay := s.client.reconnectDelay
	for {
		received, err := s.stream()
		if s.ctx.Err() != nil {
			return
		}
		if terminal(err) {
			s.client.logger.Warn("subscription ended by server", "ref", s.ref.String(), "error", err)
			s.deliver(docstore.Snapshot{}, err)
			return
		}
		if received {
			delay = s.client.reconnectDelay
		}
		s.client.logger.Warn("subscribe stream disconnected",
			"ref", s.ref.String(),
			"error", err,
			"backoff", delay,
		)
		select {
		case <-s.ctx.Done():
			return
		case <-s.client.clock.After(delay):
		}
		delay = min(delay*2, s.client.maxReconnectDelay)
	}
}

// stream runs one subscribe connection. It reports whether any frame
// arrived and the error that ended the connection.
func (s *subscription) stream() (received bool, err error) {
	conn, err := s.client.dial(s.ctx)
	if err != nil {
		return false, err
	}
	defer conn.Close()
	stop := context.AfterFunc(s.ctx, func() { conn.Close() })
	defer stop()

	// The write side stays open: the server reads EOF as a hang-up.
	if err := codec.NewEncoder(conn).Encode(refRequest{Action: ActionSubscribe, Ref: s.ref}); err != nil {
		return false, fmt.Errorf("sending subscribe request: %w", err)
	}

	decoder := codec.NewDecoder(conn)
	silence := 2 * s.client.heartbeat
	for {
		conn.SetReadDeadline(time.Now().Add(silence))
		var frame Frame
		if err := decoder.Decode(&frame); err != nil {
			return received, fmt.Errorf("reading frame: %w", err)
		}
		received = true

		switch frame.Type {
		case FrameSnapshot:
			if frame.Snapshot == nil {
				continue
			}
			signature := snapshotSignature(*frame.Snapshot)
			if s.delivered && signature == s.signature {
				continue
			}
			s.signature, s.delivered = signature, true
			s.deliver(*frame.Snapshot, nil)
		case FrameHeartbeat:
		case FrameError:
			return received, decodeError(ActionSubscribe, frame.Error, frame.Code, frame.Fields)
		default:
			s.client.logger.Debug("unknown subscribe frame type", "type", frame.Type, "ref", s.ref.String())
		}
	}
}

func (s *subscription) deliver(snapshot docstore.Snapshot, err error) {
	if s.ctx.Err() != nil {
		return
	}
	s.listener(snapshot, err)
}

// terminal reports whether a stream error should end the
// subscription rather than trigger a reconnect.
func terminal(err error) bool {
	if _, ok := asValidation(err); ok {
		return true
	}
	var remote *RemoteError
	if !errors.As(err, &remote) {
		return false
	}
	return remote.Code != docstore.CodeConnectivity && remote.Code != docstore.CodeClosed
}

func snapshotSignature(snapshot docstore.Snapshot) string {
	var builder strings.Builder
	if snapshot.Exists {
		builder.WriteString("+")
	} else {
		builder.WriteString("-")
	}
	for _, document := range snapshot.Documents {
		builder.WriteString(document.ID)
		builder.WriteByte(':')
		builder.WriteString(document.Digest.String())
		builder.WriteByte(';')
	}
	return builder.String()
}
