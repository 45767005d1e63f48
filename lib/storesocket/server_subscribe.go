// Copyright 2026 The Docsync Authors
// SPDX-License-Identifier: Apache-2.0

package storesocket

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/jhsmart/docsync/lib/codec"
	"github.com/jhsmart/docsync/lib/docstore"
)

// outbox holds the next frame of one subscribe stream. Snapshots
// replace each other; an error frame is final and is never replaced.
type outbox struct {
	mu      sync.Mutex
	pending *Frame
	wake    chan struct{}
}

func newOutbox() *outbox {
	return &outbox{wake: make(chan struct{}, 1)}
}

func (o *outbox) listener(snapshot docstore.Snapshot, err error) {
	o.mu.Lock()
	if o.pending != nil && o.pending.Type == FrameError {
		o.mu.Unlock()
		return
	}
	if err != nil {
		frame := errorFrame(err)
		o.pending = &frame
	} else {
		o.pending = &Frame{Type: FrameSnapshot, Snapshot: &snapshot}
	}
	o.mu.Unlock()

	select {
	case o.wake <- struct{}{}:
	default:
	}
}

func (o *outbox) take() *Frame {
	o.mu.Lock()
	defer o.mu.Unlock()
	frame := o.pending
	o.pending = nil
	return frame
}

func errorFrame(err error) Frame {
	message, code, fields := encodeError(err)
	return Frame{Type: FrameError, Error: message, Code: code, Fields: fields}
}

// handleSubscribe streams snapshots of the requested ref until the
// client hangs up, the server shuts down, or the store reports an
// error.
func (s *Server) handleSubscribe(ctx context.Context, raw []byte, conn net.Conn) {
	encoder := codec.NewEncoder(conn)

	var request refRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		s.writeFrame(conn, encoder, errorFrame(fmt.Errorf("invalid subscribe request: %w", err)))
		return
	}

	box := newOutbox()
	handle, err := s.store.Subscribe(request.Ref, box.listener)
	if err != nil {
		s.writeFrame(conn, encoder, errorFrame(err))
		return
	}
	defer handle.Close()

	// The client sends nothing after its request, so a finished read
	// means it hung up.
	hungUp := make(chan struct{})
	go func() {
		io.Copy(io.Discard, conn)
		close(hungUp)
	}()

	heartbeat := s.clock.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	s.logger.Info("subscribe stream started", "ref", request.Ref.String())
	defer s.logger.Info("subscribe stream ended", "ref", request.Ref.String())

	for {
		select {
		case <-ctx.Done():
			return
		case <-hungUp:
			return
		case <-box.wake:
			frame := box.take()
			if frame == nil {
				continue
			}
			if err := s.writeFrame(conn, encoder, *frame); err != nil {
				s.logger.Debug("subscribe stream write error", "ref", request.Ref.String(), "error", err)
				return
			}
			if frame.Type == FrameError {
				return
			}
		case <-heartbeat.C:
			if err := s.writeFrame(conn, encoder, Frame{Type: FrameHeartbeat}); err != nil {
				s.logger.Debug("subscribe stream write error", "ref", request.Ref.String(), "error", err)
				return
			}
		}
	}
}

func (s *Server) writeFrame(conn net.Conn, encoder *codec.Encoder, frame Frame) error {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return encoder.Encode(frame)
}
