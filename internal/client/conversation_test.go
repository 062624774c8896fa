// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package client

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/stream"
)

// =============================================================================
// FAKES
// =============================================================================

type memStore struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
	messages []model.Message
	touched  int
}

func newMemStore() *memStore {
	return &memStore{sessions: make(map[string]*model.Session)}
}

func (m *memStore) CreateSession(_ context.Context, s *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return nil
}

func (m *memStore) TouchSession(context.Context, string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touched++
	return nil
}

func (m *memStore) AddMessage(_ context.Context, msg *model.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, *msg.Clone())
	return nil
}

func (m *memStore) DeleteMessages(_ context.Context, ids ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := m.messages[:0]
	for _, msg := range m.messages {
		if !drop[msg.ID] {
			kept = append(kept, msg)
		}
	}
	m.messages = kept
	return nil
}

func (m *memStore) ListMessages(_ context.Context, sessionID string, limit int) ([]model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Message
	for _, msg := range m.messages {
		if msg.SessionID == sessionID {
			out = append(out, msg)
		}
	}
	return model.LastN(out, limit), nil
}

// scriptedStreamer returns one scripted stream per call and records the
// requests it saw.
type scriptedStreamer struct {
	turns    [][]stream.Event
	err      error
	requests []*model.ChatRequest
}

func (s *scriptedStreamer) Stream(_ context.Context, req *model.ChatRequest) (stream.Stream, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	events := s.turns[0]
	s.turns = s.turns[1:]
	return stream.FromEvents(events...), nil
}

func hello() []stream.Event {
	return []stream.Event{
		stream.TextDelta("Hel"),
		stream.TextDelta("lo"),
		stream.Finish(stream.FinishStop, model.Usage{PromptTokens: 4, CompletionTokens: 2, TotalTokens: 6}),
	}
}

// =============================================================================
// CONSUME TESTS
// =============================================================================

func TestConsume_AppendsDeltas(t *testing.T) {
	msg := model.NewAssistantMessage("s")
	var snapshots []string

	out, err := Consume(stream.FromEvents(hello()...), msg, func(m *model.Message) {
		snapshots = append(snapshots, m.Text())
	})
	require.NoError(t, err)

	assert.Equal(t, "Hello", msg.Text())
	assert.Len(t, msg.Parts, 1, "deltas extend the single text part")
	assert.Equal(t, []string{"Hel", "Hello"}, snapshots)
	assert.Equal(t, stream.FinishStop, out.FinishReason)
	assert.Equal(t, 6, out.Usage.TotalTokens)
	assert.Equal(t, 2, out.Deltas)
}

func TestConsume_ErrorBeforeAnyDelta(t *testing.T) {
	msg := model.NewAssistantMessage("s")

	_, err := Consume(stream.FromEvents(stream.ErrorEvent("rate limited")), msg, nil)

	var upstream *stream.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, "rate limited", upstream.Message)
	assert.Equal(t, "", msg.Text())
}

func TestConsume_CreatesTextPartWhenMissing(t *testing.T) {
	msg := model.NewMessage(model.RoleAssistant, "s", model.ReasoningPart("x", model.StateDone))

	_, err := Consume(stream.FromEvents(stream.TextDelta("a"), stream.Finish(stream.FinishStop, model.Usage{})), msg, nil)
	require.NoError(t, err)

	require.Len(t, msg.Parts, 2)
	assert.Equal(t, model.PartText, msg.Parts[1].Type)
	assert.Equal(t, "a", msg.Parts[1].Text)
}

func TestConsume_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	defer close(release)
	s := stream.NewEventStream(ctx, func(ctx context.Context, ch chan<- stream.Event) error {
		ch <- stream.TextDelta("par")
		<-release
		return nil
	})

	msg := model.NewAssistantMessage("s")
	_, err := Consume(s, msg, func(*model.Message) { cancel() })

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "par", msg.Text())
}

// =============================================================================
// CONVERSATION TESTS
// =============================================================================

func TestConversation_Send(t *testing.T) {
	store := newMemStore()
	streamer := &scriptedStreamer{turns: [][]stream.Event{hello()}}
	var updates int
	conv := NewConversation(streamer, store, Options{
		Model:    "gpt-4o-mini",
		Provider: model.ProviderOpenAI,
		OnUpdate: func(*model.Message) { updates++ },
	})

	reply, err := conv.Send(context.Background(), "Say hello please, it would be nice")
	require.NoError(t, err)

	assert.Equal(t, "Hello", reply.Text())
	assert.Equal(t, 2, updates)
	require.NotNil(t, conv.Session())
	assert.Equal(t, "Say hello please, it", conv.Session().Name)
	assert.Equal(t, 1, store.touched)

	require.Len(t, store.messages, 2)
	assert.Equal(t, model.RoleUser, store.messages[0].Role)
	assert.Equal(t, model.RoleAssistant, store.messages[1].Role)
	require.NotNil(t, store.messages[1].Metadata)
	assert.Equal(t, "gpt-4o-mini", store.messages[1].Metadata.Model)
	assert.Equal(t, "openai", store.messages[1].Metadata.Provider)
	assert.Equal(t, "stop", store.messages[1].Metadata.FinishReason)
	assert.Equal(t, 6, store.messages[1].Metadata.Usage.TotalTokens)

	require.Len(t, streamer.requests, 1)
	assert.Equal(t, "gpt-4o-mini", streamer.requests[0].Model)
	assert.Len(t, streamer.requests[0].Messages, 1)
}

func TestConversation_HistoryWindow(t *testing.T) {
	store := newMemStore()
	var turns [][]stream.Event
	for i := 0; i < 7; i++ {
		turns = append(turns, hello())
	}
	streamer := &scriptedStreamer{turns: turns}
	conv := NewConversation(streamer, store, Options{Model: "m"})

	for i := 0; i < 7; i++ {
		_, err := conv.Send(context.Background(), "q")
		require.NoError(t, err)
	}

	last := streamer.requests[len(streamer.requests)-1]
	assert.Len(t, last.Messages, model.DefaultHistoryWindow)
	assert.Equal(t, model.RoleUser, last.Messages[len(last.Messages)-1].Role)
	assert.Len(t, conv.History(), 14)
}

func TestConversation_UpstreamErrorDiscardsPartial(t *testing.T) {
	store := newMemStore()
	streamer := &scriptedStreamer{turns: [][]stream.Event{{
		stream.TextDelta("partial"),
		stream.ErrorEvent("upstream overloaded"),
	}}}
	conv := NewConversation(streamer, store, Options{Model: "m"})

	reply, err := conv.Send(context.Background(), "hi")
	var upstream *stream.UpstreamError
	require.ErrorAs(t, err, &upstream)

	assert.Equal(t, "partial", reply.Text(), "partial text stays visible")
	assert.Len(t, store.messages, 1, "only the user message is stored")
	assert.Equal(t, 0, store.touched)
}

func TestConversation_KeepPartial(t *testing.T) {
	store := newMemStore()
	streamer := &scriptedStreamer{turns: [][]stream.Event{{
		stream.TextDelta("partial"),
		stream.ErrorEvent("upstream overloaded"),
	}}}
	conv := NewConversation(streamer, store, Options{Model: "m", KeepPartial: true})

	_, err := conv.Send(context.Background(), "hi")
	require.Error(t, err)

	require.Len(t, store.messages, 2)
	assert.Equal(t, "partial", store.messages[1].Text())
	assert.Nil(t, store.messages[1].Metadata)
}

func TestConversation_UnauthorizedCreatesNoReply(t *testing.T) {
	store := newMemStore()
	streamer := &scriptedStreamer{err: stream.NewTransportError(401, nil)}
	conv := NewConversation(streamer, store, Options{Model: "m"})

	reply, err := conv.Send(context.Background(), "hi")
	assert.Nil(t, reply)
	assert.True(t, IsUnauthorized(err))
	assert.Len(t, store.messages, 1)
	assert.Len(t, streamer.requests, 1, "never retried")
}

func TestConversation_Regenerate(t *testing.T) {
	store := newMemStore()
	streamer := &scriptedStreamer{turns: [][]stream.Event{
		hello(),
		{stream.TextDelta("Hi again"), stream.Finish(stream.FinishStop, model.Usage{})},
	}}
	conv := NewConversation(streamer, store, Options{Model: "m"})

	first, err := conv.Send(context.Background(), "hi")
	require.NoError(t, err)

	second, err := conv.Regenerate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Hi again", second.Text())

	require.Len(t, store.messages, 2)
	assert.NotEqual(t, first.ID, store.messages[1].ID)
	assert.Equal(t, "Hi again", store.messages[1].Text())

	require.Len(t, streamer.requests, 2)
	assert.Len(t, streamer.requests[1].Messages, 1, "old reply is not resent")
}

func TestConversation_RegenerateWithoutUserMessage(t *testing.T) {
	conv := NewConversation(&scriptedStreamer{}, newMemStore(), Options{Model: "m"})
	_, err := conv.Regenerate(context.Background())
	assert.Error(t, err)
}

func TestResume(t *testing.T) {
	store := newMemStore()
	sess := model.NewSession("earlier")
	require.NoError(t, store.CreateSession(context.Background(), sess))
	require.NoError(t, store.AddMessage(context.Background(), model.NewUserMessage(sess.ID, "earlier")))
	prior := model.NewAssistantMessage(sess.ID)
	prior.AppendDelta("answer")
	require.NoError(t, store.AddMessage(context.Background(), prior))

	streamer := &scriptedStreamer{turns: [][]stream.Event{hello()}}
	conv, err := Resume(context.Background(), streamer, store, sess, Options{Model: "m"})
	require.NoError(t, err)
	assert.Len(t, conv.History(), 2)

	_, err = conv.Send(context.Background(), "next")
	require.NoError(t, err)
	assert.Len(t, streamer.requests[0].Messages, 3)
	assert.Equal(t, sess.ID, conv.Session().ID)
}

func TestResume_StoreError(t *testing.T) {
	_, err := Resume(context.Background(), &scriptedStreamer{}, failingStore{newMemStore()}, model.NewSession("x"), Options{})
	assert.Error(t, err)
}

type failingStore struct{ *memStore }

func (failingStore) ListMessages(context.Context, string, int) ([]model.Message, error) {
	return nil, errors.New("disk full")
}
