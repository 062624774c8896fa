// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jeranaias/rigchat/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func createSession(t *testing.T, store *Store, text string) *model.Session {
	t.Helper()
	sess := model.NewSession(text)
	if err := store.CreateSession(context.Background(), sess); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	return sess
}

// =============================================================================
// SESSION TESTS
// =============================================================================

func TestStore_CreateAndGetSession(t *testing.T) {
	store := openTestStore(t)
	sess := createSession(t, store, "How do I write a Go HTTP server?")

	got, err := store.GetSession(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.Name != "How do I write a Go " {
		t.Errorf("Name = %q, want first 20 runes", got.Name)
	}
	if !got.UpdatedAt.Equal(sess.UpdatedAt) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, sess.UpdatedAt)
	}
}

func TestStore_GetSessionNotFound(t *testing.T) {
	store := openTestStore(t)

	_, err := store.GetSession(context.Background(), "missing")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestStore_ListSessionsOrderedByUpdate(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first := createSession(t, store, "first")
	second := createSession(t, store, "second")

	time.Sleep(2 * time.Millisecond)
	if err := store.TouchSession(ctx, first.ID); err != nil {
		t.Fatalf("TouchSession failed: %v", err)
	}
	if err := store.AddMessage(ctx, model.NewUserMessage(first.ID, "hi")); err != nil {
		t.Fatalf("AddMessage failed: %v", err)
	}

	list, err := store.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len(list) = %d, want 2", len(list))
	}
	if list[0].ID != first.ID || list[1].ID != second.ID {
		t.Errorf("order = [%s %s], want touched session first", list[0].Name, list[1].Name)
	}
	if list[0].MessageCount != 1 || list[1].MessageCount != 0 {
		t.Errorf("counts = %d,%d, want 1,0", list[0].MessageCount, list[1].MessageCount)
	}
}

func TestStore_RenameAndDeleteSession(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	sess := createSession(t, store, "hello")

	if err := store.AddMessage(ctx, model.NewUserMessage(sess.ID, "hello")); err != nil {
		t.Fatalf("AddMessage failed: %v", err)
	}
	if err := store.RenameSession(ctx, sess.ID, "renamed"); err != nil {
		t.Fatalf("RenameSession failed: %v", err)
	}
	got, _ := store.GetSession(ctx, sess.ID)
	if got.Name != "renamed" {
		t.Errorf("Name = %q, want renamed", got.Name)
	}

	if err := store.DeleteSession(ctx, sess.ID); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
	msgs, err := store.ListMessages(ctx, sess.ID, 0)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("messages survived session delete: %d", len(msgs))
	}
	if err := store.DeleteSession(ctx, sess.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("second delete err = %v, want ErrSessionNotFound", err)
	}
}

func TestStore_SearchSessions(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	a := createSession(t, store, "golang channels")
	b := createSession(t, store, "recipes")
	if err := store.AddMessage(ctx, model.NewUserMessage(b.ID, "how long to boil 100% of eggs")); err != nil {
		t.Fatalf("AddMessage failed: %v", err)
	}

	got, err := store.SearchSessions(ctx, "GOLANG")
	if err != nil {
		t.Fatalf("SearchSessions failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != a.ID {
		t.Errorf("name search = %+v, want session a", got)
	}

	got, _ = store.SearchSessions(ctx, "100%")
	if len(got) != 1 || got[0].ID != b.ID {
		t.Errorf("content search = %+v, want session b", got)
	}

	got, _ = store.SearchSessions(ctx, "_")
	if len(got) != 0 {
		t.Errorf("underscore should match literally, got %d results", len(got))
	}
}

// =============================================================================
// MESSAGE TESTS
// =============================================================================

func TestStore_MessageRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	sess := createSession(t, store, "pictures")

	user := model.NewMessage(model.RoleUser, sess.ID,
		model.TextPart("what is this?"),
		model.FilePart("image/png", "cat.png", "data:image/png;base64,AAAA"))
	if err := store.AddMessage(ctx, user); err != nil {
		t.Fatalf("AddMessage failed: %v", err)
	}

	asst := model.NewAssistantMessage(sess.ID)
	asst.CreatedAt = user.CreatedAt.Add(time.Millisecond)
	asst.AppendDelta("a cat")
	asst.Metadata = &model.Metadata{
		Model:        "gpt-4o",
		Provider:     string(model.ProviderOpenAI),
		FinishReason: "stop",
		Usage:        &model.Usage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5},
	}
	if err := store.AddMessage(ctx, asst); err != nil {
		t.Fatalf("AddMessage failed: %v", err)
	}

	msgs, err := store.ListMessages(ctx, sess.ID, DefaultMessageLimit)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("len(msgs) = %d, want 2", len(msgs))
	}
	if msgs[0].ID != user.ID || len(msgs[0].Parts) != 2 {
		t.Errorf("user message = %+v", msgs[0])
	}
	if f := msgs[0].Files(); len(f) != 1 || f[0].Filename != "cat.png" {
		t.Errorf("file part lost: %+v", msgs[0].Parts)
	}
	if msgs[1].Text() != "a cat" {
		t.Errorf("assistant text = %q", msgs[1].Text())
	}
	if msgs[1].Metadata == nil || msgs[1].Metadata.Usage == nil || msgs[1].Metadata.Usage.TotalTokens != 5 {
		t.Errorf("metadata = %+v", msgs[1].Metadata)
	}
	if msgs[0].Metadata != nil {
		t.Errorf("user metadata = %+v, want nil", msgs[0].Metadata)
	}
}

func TestStore_AddMessageRejectsEmptyParts(t *testing.T) {
	store := openTestStore(t)
	sess := createSession(t, store, "x")

	msg := model.NewMessage(model.RoleUser, sess.ID)
	if err := store.AddMessage(context.Background(), msg); !errors.Is(err, model.ErrEmptyParts) {
		t.Errorf("err = %v, want ErrEmptyParts", err)
	}
}

func TestStore_AddMessageUnknownSession(t *testing.T) {
	store := openTestStore(t)

	err := store.AddMessage(context.Background(), model.NewUserMessage("nope", "hi"))
	if err == nil {
		t.Error("expected foreign key error for unknown session")
	}
}

func TestStore_ListMessagesLimitKeepsNewest(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	sess := createSession(t, store, "x")

	base := time.Now()
	var ids []string
	for i := 0; i < 5; i++ {
		msg := model.NewUserMessage(sess.ID, string(rune('a'+i)))
		msg.CreatedAt = base.Add(time.Duration(i) * time.Second)
		if err := store.AddMessage(ctx, msg); err != nil {
			t.Fatalf("AddMessage failed: %v", err)
		}
		ids = append(ids, msg.ID)
	}

	msgs, err := store.ListMessages(ctx, sess.ID, 3)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("len(msgs) = %d, want 3", len(msgs))
	}
	for i, m := range msgs {
		if m.ID != ids[i+2] {
			t.Errorf("msgs[%d] = %s, want %s", i, m.Text(), string(rune('a'+i+2)))
		}
	}
}

func TestStore_DeleteMessages(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	sess := createSession(t, store, "x")

	keep := model.NewUserMessage(sess.ID, "keep")
	drop := model.NewAssistantMessage(sess.ID)
	drop.AppendDelta("drop")
	drop.CreatedAt = keep.CreatedAt.Add(time.Millisecond)
	for _, m := range []*model.Message{keep, drop} {
		if err := store.AddMessage(ctx, m); err != nil {
			t.Fatalf("AddMessage failed: %v", err)
		}
	}

	if err := store.DeleteMessages(ctx, drop.ID, "unknown"); err != nil {
		t.Fatalf("DeleteMessages failed: %v", err)
	}
	if err := store.DeleteMessages(ctx); err != nil {
		t.Fatalf("DeleteMessages with no ids failed: %v", err)
	}

	msgs, _ := store.ListMessages(ctx, sess.ID, 0)
	if len(msgs) != 1 || msgs[0].ID != keep.ID {
		t.Errorf("msgs = %+v, want only keep", msgs)
	}
}
