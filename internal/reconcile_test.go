package internal

import (
	"context"
	"testing"
	"time"

	"roomtalk/internal/storage"
)

func TestOpenLoadsHistoryInOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	for _, msg := range []storage.Message{
		{Identity: "id-2", Author: "bob", Body: "second", Room: "general", SentAt: 2000},
		{Identity: "id-1", Author: "alice", Body: "first", Room: "general", SentAt: 1000},
	} {
		if err := store.AppendMessage(ctx, msg); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}

	rec := NewReconciler(store, 0)
	if err := rec.Open(ctx, "general"); err != nil {
		t.Fatalf("Open: %v", err)
	}

	messages := rec.Messages()
	if len(messages) != 2 || messages[0].Body != "first" || messages[1].Body != "second" {
		t.Fatalf("unexpected history: %+v", messages)
	}
}

func TestLocalSendShowsImmediatelyAndPersists(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	rec := NewReconciler(store, 0)
	if err := rec.Open(ctx, "general"); err != nil {
		t.Fatalf("Open: %v", err)
	}

	msg, err := rec.LocalSend(ctx, ChatMessage{Author: "alice", Body: "hello", Room: "general", SentAt: 1000})
	if err != nil {
		t.Fatalf("LocalSend: %v", err)
	}
	if msg.Identity == "" {
		t.Fatalf("expected a minted identity")
	}

	messages := rec.Messages()
	if len(messages) != 1 || messages[0].Identity != msg.Identity {
		t.Fatalf("optimistic copy missing: %+v", messages)
	}

	stored, err := store.LoadMessages(ctx, "general")
	if err != nil {
		t.Fatalf("LoadMessages: %v", err)
	}
	if len(stored) != 1 || stored[0].Identity != msg.Identity {
		t.Fatalf("durable copy missing: %+v", stored)
	}
}

func TestServerEchoReplacesOptimisticCopy(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	rec := NewReconciler(store, 0)
	if err := rec.Open(ctx, "general"); err != nil {
		t.Fatalf("Open: %v", err)
	}

	msg, err := rec.LocalSend(ctx, ChatMessage{Author: "alice", Body: "hello", Room: "general", SentAt: 1000})
	if err != nil {
		t.Fatalf("LocalSend: %v", err)
	}

	echo := msg
	echo.SentAt = 1300 // server-assigned timestamp wins
	if err := rec.Apply(ctx, echo); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	messages := rec.Messages()
	if len(messages) != 1 {
		t.Fatalf("echo must replace, not duplicate: %+v", messages)
	}
	if messages[0].SentAt != 1300 {
		t.Fatalf("server copy should win: %+v", messages[0])
	}

	stored, err := store.LoadMessages(ctx, "general")
	if err != nil {
		t.Fatalf("LoadMessages: %v", err)
	}
	if len(stored) != 1 || stored[0].SentAt != 1300 {
		t.Fatalf("store should hold server copy: %+v", stored)
	}
}

func TestFuzzyDuplicateIsDropped(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	rec := NewReconciler(store, time.Second)
	if err := rec.Open(ctx, "general"); err != nil {
		t.Fatalf("Open: %v", err)
	}

	if _, err := rec.LocalSend(ctx, ChatMessage{Author: "alice", Body: "hello", Room: "general", SentAt: 1000}); err != nil {
		t.Fatalf("LocalSend: %v", err)
	}

	// echo from a peer that strips identities, 400ms later
	if err := rec.Apply(ctx, ChatMessage{Author: "alice", Body: "hello", Room: "general", SentAt: 1400}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	messages := rec.Messages()
	if len(messages) != 1 {
		t.Fatalf("fuzzy duplicate must be dropped: %+v", messages)
	}
}

func TestFuzzyDedupAcrossInboundPair(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	rec := NewReconciler(store, time.Second)
	if err := rec.Open(ctx, "general"); err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := rec.Apply(ctx, ChatMessage{Author: "bob", Body: "yo", Room: "general", SentAt: 1000}); err != nil {
		t.Fatalf("Apply first: %v", err)
	}
	if err := rec.Apply(ctx, ChatMessage{Author: "bob", Body: "yo", Room: "general", SentAt: 1400}); err != nil {
		t.Fatalf("Apply second: %v", err)
	}

	messages := rec.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected one kept of the pair: %+v", messages)
	}
}

func TestFuzzyWindowExceededAppends(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	rec := NewReconciler(store, time.Second)
	if err := rec.Open(ctx, "general"); err != nil {
		t.Fatalf("Open: %v", err)
	}

	if _, err := rec.LocalSend(ctx, ChatMessage{Author: "alice", Body: "hello", Room: "general", SentAt: 1000}); err != nil {
		t.Fatalf("LocalSend: %v", err)
	}

	// same words two seconds later is a new message, not an echo
	if err := rec.Apply(ctx, ChatMessage{Author: "alice", Body: "hello", Room: "general", SentAt: 3000}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	messages := rec.Messages()
	if len(messages) != 2 {
		t.Fatalf("expected both messages kept: %+v", messages)
	}
	if messages[1].Identity == "" {
		t.Fatalf("appended message needs a minted identity")
	}
}

func TestApplySortsOutOfOrderArrivals(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	rec := NewReconciler(store, 0)
	if err := rec.Open(ctx, "general"); err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := rec.Apply(ctx, ChatMessage{Identity: "id-2", Author: "bob", Body: "late", Room: "general", SentAt: 5000}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := rec.Apply(ctx, ChatMessage{Identity: "id-1", Author: "bob", Body: "early", Room: "general", SentAt: 1000}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	messages := rec.Messages()
	if len(messages) != 2 || messages[0].Body != "early" || messages[1].Body != "late" {
		t.Fatalf("expected sentAt ordering: %+v", messages)
	}
}

func TestApplyForOtherRoomPersistsWithoutTouchingTimeline(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	rec := NewReconciler(store, 0)
	if err := rec.Open(ctx, "general"); err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := rec.Apply(ctx, ChatMessage{Identity: "id-1", Author: "bob", Body: "background", Room: "alerts", SentAt: 1000}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if len(rec.Messages()) != 0 {
		t.Fatalf("open timeline must not show other rooms")
	}
	stored, err := store.LoadMessages(ctx, "alerts")
	if err != nil {
		t.Fatalf("LoadMessages: %v", err)
	}
	if len(stored) != 1 || stored[0].Body != "background" {
		t.Fatalf("background message not persisted: %+v", stored)
	}
}

func TestBackgroundRepushPersistsOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	rec := NewReconciler(store, time.Second)
	if err := rec.Open(ctx, "general"); err != nil {
		t.Fatalf("Open: %v", err)
	}

	// a legacy peer re-pushes the same identity-less message on reconnect
	push := ChatMessage{Author: "ops", Body: "disk full", Room: "alerts", SentAt: 1000}
	if err := rec.Apply(ctx, push); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	push.SentAt = 1400
	if err := rec.Apply(ctx, push); err != nil {
		t.Fatalf("Apply replay: %v", err)
	}

	stored, err := store.LoadMessages(ctx, "alerts")
	if err != nil {
		t.Fatalf("LoadMessages: %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("expected one stored copy, got %+v", stored)
	}
}

func TestBackgroundRepushOutsideWindowAppends(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	rec := NewReconciler(store, time.Second)
	if err := rec.Open(ctx, "general"); err != nil {
		t.Fatalf("Open: %v", err)
	}

	push := ChatMessage{Author: "ops", Body: "disk full", Room: "alerts", SentAt: 1000}
	if err := rec.Apply(ctx, push); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	push.SentAt = 5000 // a genuine repeat, not an echo
	if err := rec.Apply(ctx, push); err != nil {
		t.Fatalf("Apply second: %v", err)
	}

	stored, err := store.LoadMessages(ctx, "alerts")
	if err != nil {
		t.Fatalf("LoadMessages: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("expected both copies stored, got %+v", stored)
	}
}

func TestApplyInfoIsSessionOnly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	rec := NewReconciler(store, 0)
	if err := rec.Open(ctx, "general"); err != nil {
		t.Fatalf("Open: %v", err)
	}

	rec.ApplyInfo("room is read only")

	messages := rec.Messages()
	if len(messages) != 1 || !messages[0].IsInfo() {
		t.Fatalf("expected one info entry: %+v", messages)
	}

	stored, err := store.LoadMessages(ctx, "general")
	if err != nil {
		t.Fatalf("LoadMessages: %v", err)
	}
	if len(stored) != 0 {
		t.Fatalf("info entries must not be persisted: %+v", stored)
	}
}

func TestReopenDiscardsInfoButKeepsMessages(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	rec := NewReconciler(store, 0)
	if err := rec.Open(ctx, "general"); err != nil {
		t.Fatalf("Open: %v", err)
	}

	if _, err := rec.LocalSend(ctx, ChatMessage{Author: "alice", Body: "hello", Room: "general", SentAt: 1000}); err != nil {
		t.Fatalf("LocalSend: %v", err)
	}
	rec.ApplyInfo("notice")

	if err := rec.Open(ctx, "general"); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	messages := rec.Messages()
	if len(messages) != 1 || messages[0].Body != "hello" {
		t.Fatalf("expected only the durable message after reopen: %+v", messages)
	}
}
