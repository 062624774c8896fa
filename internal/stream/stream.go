// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/jeranaias/rigchat/internal/model"
)

// =============================================================================
// STREAM
// =============================================================================

// Stream is a pull-based sequence of normalized events. Recv returns io.EOF
// after the terminal event has been delivered. Close releases the upstream
// connection and is safe to call more than once.
type Stream interface {
	Recv() (Event, error)
	Close() error
}

// Option configures a body stream.
type Option func(*bodyStream)

// WithLogger sets the logger used for skipped frames.
func WithLogger(logger *zap.Logger) Option {
	return func(s *bodyStream) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithCancel registers a function run on Close, normally the cancel of the
// request context.
func WithCancel(cancel context.CancelFunc) Option {
	return func(s *bodyStream) {
		s.cancel = cancel
	}
}

// WithContext makes Recv report ctx.Err() instead of a read error once ctx
// is done.
func WithContext(ctx context.Context) Option {
	return func(s *bodyStream) {
		s.ctx = ctx
	}
}

// WithTrailingUsage holds back a finish event that carries no usage until
// the end of the body, taking usage from a later usage-only chunk. OpenRouter
// sends usage that way when asked to include it.
func WithTrailingUsage() Option {
	return func(s *bodyStream) {
		s.trailingUsage = true
	}
}

// bodyStream decodes an HTTP response body lazily on each Recv.
type bodyStream struct {
	ctx     context.Context
	body    io.ReadCloser
	frames  *FrameReader
	schema  Schema
	logger  *zap.Logger
	cancel  context.CancelFunc
	pending []Event
	done    bool

	trailingUsage bool
	held          *Event

	closeOnce sync.Once
	closeErr  error
}

// New wraps a response body. The body is closed on Close or once a
// terminal event has been returned.
func New(body io.ReadCloser, format Format, schema Schema, opts ...Option) Stream {
	s := &bodyStream{
		ctx:    context.Background(),
		body:   body,
		frames: NewFrameReader(body, format),
		schema: schema,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Recv returns the next event. If the body ends without a terminal event a
// finish with reason unknown is synthesized.
func (s *bodyStream) Recv() (Event, error) {
	if s.done {
		return Event{}, io.EOF
	}

	for len(s.pending) == 0 {
		frame, err := s.frames.Next()
		if err != nil {
			if ctxErr := s.ctx.Err(); ctxErr != nil {
				s.finish()
				return Event{}, ctxErr
			}
			// The finish already arrived; only the usage is lost.
			if s.held != nil {
				s.pending = append(s.pending, *s.held)
				break
			}
			if errors.Is(err, io.EOF) {
				s.pending = append(s.pending, Finish(FinishUnknown, model.Usage{}))
				break
			}
			s.finish()
			return Event{}, fmt.Errorf("read stream: %w", err)
		}

		if s.held != nil {
			if frame.Done {
				s.pending = append(s.pending, *s.held)
				break
			}
			if usage, ok := TrailingUsage(frame.Data); ok {
				s.held.Usage = usage
				s.pending = append(s.pending, *s.held)
				break
			}
			continue
		}

		if frame.Done {
			s.pending = append(s.pending, Finish(FinishStop, model.Usage{}))
			break
		}

		events, perr := Normalize(s.schema, frame.Data)
		if perr != nil {
			s.logger.Debug("FRAME_SKIPPED",
				zap.String("schema", s.schema.String()),
				zap.Error(perr))
			continue
		}
		for i, ev := range events {
			if s.trailingUsage && ev.Type == EventFinish && ev.Usage == (model.Usage{}) {
				held := ev
				s.held = &held
				events = events[:i]
				break
			}
		}
		s.pending = append(s.pending, events...)
	}

	ev := s.pending[0]
	s.pending = s.pending[1:]
	if ev.IsTerminal() {
		s.finish()
	}
	return ev, nil
}

// finish marks the stream done and releases the body.
func (s *bodyStream) finish() {
	s.done = true
	s.pending = nil
	_ = s.Close()
}

// Close implements Stream.
func (s *bodyStream) Close() error {
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}

// =============================================================================
// CHANNEL STREAM
// =============================================================================

type channelStream struct {
	ctx    context.Context
	cancel context.CancelFunc
	events <-chan Event
}

// NewEventStream runs fn in a goroutine and exposes the events it sends as
// a Stream. A non-nil error from fn is delivered as an error event.
func NewEventStream(ctx context.Context, fn func(context.Context, chan<- Event) error) Stream {
	streamCtx, cancel := context.WithCancel(ctx)
	ch := make(chan Event, 16)
	go func() {
		defer close(ch)
		if err := fn(streamCtx, ch); err != nil && streamCtx.Err() == nil {
			select {
			case ch <- Event{Type: EventError, Err: err}:
			case <-streamCtx.Done():
			}
		}
	}()
	return &channelStream{ctx: streamCtx, cancel: cancel, events: ch}
}

// FromEvents returns a Stream that yields the given events in order.
func FromEvents(events ...Event) Stream {
	return NewEventStream(context.Background(), func(ctx context.Context, ch chan<- Event) error {
		for _, ev := range events {
			select {
			case ch <- ev:
			case <-ctx.Done():
				return nil
			}
		}
		return nil
	})
}

func (s *channelStream) Recv() (Event, error) {
	// Drain buffered events before honoring cancellation.
	select {
	case ev, ok := <-s.events:
		if !ok {
			return Event{}, io.EOF
		}
		return ev, nil
	default:
	}

	select {
	case <-s.ctx.Done():
		return Event{}, s.ctx.Err()
	case ev, ok := <-s.events:
		if !ok {
			return Event{}, io.EOF
		}
		return ev, nil
	}
}

func (s *channelStream) Close() error {
	s.cancel()
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// Result is the accumulated outcome of a fully drained stream.
type Result struct {
	Text         string
	FinishReason FinishReason
	Usage        model.Usage
	Err          error
}

// Collect drains s, concatenating text deltas. The stream is closed before
// returning. A transport-level error is returned as err; an error event is
// recorded in Result.Err.
func Collect(s Stream) (Result, error) {
	defer s.Close()

	var res Result
	var sb strings.Builder
	for {
		ev, err := s.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			res.Text = sb.String()
			return res, err
		}
		switch ev.Type {
		case EventTextDelta:
			sb.WriteString(ev.TextDelta)
		case EventFinish:
			res.FinishReason = ev.FinishReason
			res.Usage = ev.Usage
		case EventError:
			res.Err = ev.Err
		}
	}
	res.Text = sb.String()
	return res, nil
}
