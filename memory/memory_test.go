package memory

import (
	"context"
	"fmt"
	"testing"
)

func TestInMemoryStoreGetOrCreate(t *testing.T) {
	store := NewInMemoryStore(4)

	history, err := store.GetOrCreate(context.Background(), "c1")
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("new conversation has %d messages", len(history))
	}
}

func TestInMemoryStoreAppendAndWindow(t *testing.T) {
	store := NewInMemoryStore(4)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := store.Append(ctx, "c1",
			Message{Role: "user", Content: fmt.Sprintf("q%d", i)},
			Message{Role: "assistant", Content: fmt.Sprintf("a%d", i)},
		)
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	history, err := store.GetOrCreate(ctx, "c1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(history) != 4 {
		t.Fatalf("history length = %d, want window of 4", len(history))
	}
	// Oldest turns are evicted first.
	if history[0].Content != "q1" || history[3].Content != "a2" {
		t.Errorf("window = %+v, want q1..a2", history)
	}
}

func TestInMemoryStoreIsolation(t *testing.T) {
	store := NewInMemoryStore(0)
	ctx := context.Background()

	if err := store.Append(ctx, "c1", Message{Role: "user", Content: "hello"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	other, err := store.GetOrCreate(ctx, "c2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("conversation c2 sees c1 messages: %+v", other)
	}
}

func TestInMemoryStoreClear(t *testing.T) {
	store := NewInMemoryStore(0)
	ctx := context.Background()

	if err := store.Append(ctx, "c1", Message{Role: "user", Content: "hello"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.Clear(ctx, "c1"); err != nil {
		t.Fatalf("clear: %v", err)
	}

	history, err := store.GetOrCreate(ctx, "c1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("cleared conversation still has %d messages", len(history))
	}
}

func TestInMemoryStoreReturnsCopy(t *testing.T) {
	store := NewInMemoryStore(0)
	ctx := context.Background()

	if err := store.Append(ctx, "c1", Message{Role: "user", Content: "hello"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	history, _ := store.GetOrCreate(ctx, "c1")
	history[0].Content = "mutated"

	again, _ := store.GetOrCreate(ctx, "c1")
	if again[0].Content != "hello" {
		t.Fatal("caller mutation leaked into the store")
	}
}
