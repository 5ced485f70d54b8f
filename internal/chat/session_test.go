package chat

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/suPer8Hu/helpdesk-relay/internal/ai"
)

func TestMemoryStore_GetOrCreateIsIdempotent(t *testing.T) {
	store := NewMemoryStore("sys", 0)
	ctx := context.Background()

	var wg sync.WaitGroup
	got := make([]*Session, 10)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i] = store.GetOrCreate(ctx, "new")
		}(i)
	}
	wg.Wait()

	for i := range got {
		if got[i] != got[0] {
			t.Fatalf("call %d returned a different session", i)
		}
	}
	if store.Len() != 1 {
		t.Fatalf("expected exactly one session, got %d", store.Len())
	}
	tr := got[0].Transcript()
	if len(tr) != 1 || tr[0].Role != ai.RoleSystem || tr[0].Content != "sys" {
		t.Fatalf("expected single system seed, got %#v", tr)
	}
}

func TestMemoryStore_TranscriptIsACopy(t *testing.T) {
	store := NewMemoryStore("sys", 0)
	s := store.GetOrCreate(context.Background(), "a")

	tr := s.Transcript()
	tr[0].Content = "changed"

	if s.Transcript()[0].Content != "sys" {
		t.Fatalf("transcript mutated through returned slice")
	}
}

func TestMemoryStore_CapKeepsSystemEntry(t *testing.T) {
	store := NewMemoryStore("sys", 5)
	s := store.GetOrCreate(context.Background(), "a")

	for i := 0; i < 10; i++ {
		store.Append(s, ai.Message{Role: ai.RoleUser, Content: fmt.Sprintf("m%d", i)})
	}

	tr := s.Transcript()
	if len(tr) != 5 {
		t.Fatalf("expected cap of 5, got %d", len(tr))
	}
	if tr[0].Role != ai.RoleSystem {
		t.Fatalf("system entry was dropped: %#v", tr[0])
	}
	if tr[1].Content != "m6" || tr[4].Content != "m9" {
		t.Fatalf("expected the newest entries to survive, got %#v", tr)
	}
}

func TestStatelessStore_NeverShares(t *testing.T) {
	store := NewStatelessStore("sys")
	ctx := context.Background()

	a := store.GetOrCreate(ctx, "s1")
	store.Append(a, ai.Message{Role: ai.RoleUser, Content: "hi"})

	b := store.GetOrCreate(ctx, "s1")
	if a == b {
		t.Fatalf("stateless store must return a fresh session")
	}
	if b.Len() != 1 {
		t.Fatalf("expected only the system seed, got %d entries", b.Len())
	}
}
