// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package client

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/stream"
)

// ============================================================================
// COLLABORATORS
// ============================================================================

// Streamer opens one chat turn. *Client implements it.
type Streamer interface {
	Stream(ctx context.Context, req *model.ChatRequest) (stream.Stream, error)
}

// Store persists sessions and messages. *storage.Store implements it.
type Store interface {
	CreateSession(ctx context.Context, sess *model.Session) error
	TouchSession(ctx context.Context, id string) error
	AddMessage(ctx context.Context, msg *model.Message) error
	DeleteMessages(ctx context.Context, ids ...string) error
	ListMessages(ctx context.Context, sessionID string, limit int) ([]model.Message, error)
}

// Options configures a Conversation.
type Options struct {
	Model    string
	Provider model.Provider
	Search   bool

	// HistoryWindow is how many trailing messages are sent per turn.
	HistoryWindow int

	// KeepPartial persists the partial assistant message when a turn fails.
	KeepPartial bool

	// OnUpdate is called after every applied delta with the message being
	// built. It runs on the caller's goroutine.
	OnUpdate func(*model.Message)

	Logger *zap.Logger
}

// ============================================================================
// CONSUMER
// ============================================================================

// Outcome is how a consumed stream ended.
type Outcome struct {
	FinishReason stream.FinishReason
	Usage        model.Usage
	Deltas       int
}

// Consume drains s into msg. Each text delta is appended to the last text
// part of msg and onUpdate is called. It returns on the terminal event:
// a finish yields its Outcome, an error event yields *stream.UpstreamError.
// A cancelled context surfaces as ctx.Err(). s is always closed.
func Consume(s stream.Stream, msg *model.Message, onUpdate func(*model.Message)) (Outcome, error) {
	defer s.Close()

	var out Outcome
	for {
		ev, err := s.Recv()
		if errors.Is(err, io.EOF) {
			out.FinishReason = stream.FinishUnknown
			return out, nil
		}
		if err != nil {
			return out, err
		}

		switch ev.Type {
		case stream.EventTextDelta:
			msg.AppendDelta(ev.TextDelta)
			out.Deltas++
			if onUpdate != nil {
				onUpdate(msg)
			}
		case stream.EventFinish:
			out.FinishReason = ev.FinishReason
			out.Usage = ev.Usage
			return out, nil
		case stream.EventError:
			var upstream *stream.UpstreamError
			if errors.As(ev.Err, &upstream) {
				return out, upstream
			}
			return out, &stream.UpstreamError{Message: ev.Message()}
		}
	}
}

// ============================================================================
// CONVERSATION
// ============================================================================

// Conversation runs chat turns for one session and keeps the store in step.
// It is not safe for concurrent use; one turn runs at a time.
type Conversation struct {
	streamer Streamer
	store    Store
	opts     Options
	logger   *zap.Logger

	session *model.Session
	history []model.Message
}

// NewConversation starts a conversation. The session row is created with
// the first message.
func NewConversation(streamer Streamer, store Store, opts Options) *Conversation {
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = model.DefaultHistoryWindow
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Conversation{streamer: streamer, store: store, opts: opts, logger: logger}
}

// Resume loads an existing session's recent history.
func Resume(ctx context.Context, streamer Streamer, store Store, sess *model.Session, opts Options) (*Conversation, error) {
	c := NewConversation(streamer, store, opts)
	msgs, err := store.ListMessages(ctx, sess.ID, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", sess.ID, err)
	}
	c.session = sess
	c.history = msgs
	return c, nil
}

// Session returns the session, or nil before the first message.
func (c *Conversation) Session() *model.Session {
	return c.session
}

// History returns the in-memory messages, oldest first.
func (c *Conversation) History() []model.Message {
	return c.history
}

// SetModel switches the model and provider for later turns.
func (c *Conversation) SetModel(id string, p model.Provider) {
	c.opts.Model = id
	c.opts.Provider = p
}

// Send persists a user message and streams the reply. Extra parts such as
// files follow the text part.
func (c *Conversation) Send(ctx context.Context, text string, extra ...model.MessagePart) (*model.Message, error) {
	if c.session == nil {
		sess := model.NewSession(text)
		if err := c.store.CreateSession(ctx, sess); err != nil {
			return nil, fmt.Errorf("failed to create session: %w", err)
		}
		c.session = sess
	}

	user := model.NewUserMessage(c.session.ID, text)
	user.Parts = append(user.Parts, extra...)
	if err := c.store.AddMessage(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to save message: %w", err)
	}
	c.history = append(c.history, *user)

	return c.turn(ctx)
}

// Regenerate drops the assistant replies after the last user message and
// streams a new one. It is also how a turn rejected with a 401 is retried
// once a password has been supplied.
func (c *Conversation) Regenerate(ctx context.Context) (*model.Message, error) {
	kept, dropped, ok := model.TrimForRegenerate(c.history)
	if !ok {
		return nil, errors.New("nothing to regenerate")
	}

	if len(dropped) > 0 {
		ids := make([]string, len(dropped))
		for i, m := range dropped {
			ids[i] = m.ID
		}
		if err := c.store.DeleteMessages(ctx, ids...); err != nil {
			return nil, fmt.Errorf("failed to delete previous reply: %w", err)
		}
	}
	c.history = kept

	return c.turn(ctx)
}

// turn streams one assistant reply for the current history.
func (c *Conversation) turn(ctx context.Context) (*model.Message, error) {
	req := &model.ChatRequest{
		Messages: model.LastN(c.history, c.opts.HistoryWindow),
		Model:    c.opts.Model,
		Provider: c.opts.Provider,
		Search:   c.opts.Search,
	}

	s, err := c.streamer.Stream(ctx, req)
	if err != nil {
		if IsUnauthorized(err) {
			return nil, fmt.Errorf("%w: endpoint rejected the password", ErrUnauthorized)
		}
		return nil, err
	}

	reply := model.NewAssistantMessage(c.session.ID)
	out, err := Consume(s, reply, c.opts.OnUpdate)
	if err != nil {
		c.logger.Debug("TURN_FAILED",
			zap.String("session", c.session.ID),
			zap.Int("deltas", out.Deltas),
			zap.Error(err))
		if c.opts.KeepPartial && reply.Text() != "" {
			if perr := c.commit(ctx, reply); perr != nil {
				c.logger.Warn("PARTIAL_SAVE_FAILED", zap.Error(perr))
			}
		}
		return reply, err
	}

	reply.Metadata = &model.Metadata{
		Model:        c.opts.Model,
		Provider:     string(req.Provider),
		FinishReason: string(out.FinishReason),
		Usage:        &out.Usage,
	}
	if err := c.commit(ctx, reply); err != nil {
		return reply, err
	}
	if err := c.store.TouchSession(ctx, c.session.ID); err != nil {
		c.logger.Warn("SESSION_TOUCH_FAILED", zap.Error(err))
	}
	c.session.Touch()
	return reply, nil
}

// commit persists reply and appends it to history. A context cancelled
// mid-turn must not prevent saving what was kept.
func (c *Conversation) commit(ctx context.Context, reply *model.Message) error {
	if err := c.store.AddMessage(context.WithoutCancel(ctx), reply); err != nil {
		return fmt.Errorf("failed to save reply: %w", err)
	}
	c.history = append(c.history, *reply)
	return nil
}
