package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/suPer8Hu/helpdesk-relay/internal/ai"
	"github.com/suPer8Hu/helpdesk-relay/internal/config"
)

func newChatbaseServer(t *testing.T, status int, body string, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		if r.URL.Path != "/api/v1/chat" {
			t.Errorf("unexpected chatbase path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer k" {
			t.Errorf("unexpected chatbase auth header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestScenario_ChatbaseFailsWithoutOpenAIKey(t *testing.T) {
	var hits int32
	cb := newChatbaseServer(t, http.StatusInternalServerError, `{"message":"internal"}`, &hits)

	reg := ai.NewRegistry()
	ai.RegisterDefaults(reg, config.ProviderConfig{
		ChatbaseAPIKey:    "k",
		ChatbaseChatbotID: "b",
		ChatbaseBaseURL:   cb.URL + "/",
	}, cb.Client())

	store := NewMemoryStore("sys", 0)
	svc := NewService(store, reg, "chatbase")

	out := svc.Handle(context.Background(), Request{SessionID: "s1", Message: "hello"})
	if out.Status != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d body=%#v", out.Status, out.Body)
	}
	body := out.Body.(ErrorBody)
	if body.Error != "documented chatbase failed" {
		t.Fatalf("unexpected error text %q", body.Error)
	}
	details, ok := body.Details.(map[string]any)
	if !ok || details["message"] != "internal" {
		t.Fatalf("expected parsed upstream details, got %#v", body.Details)
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("expected exactly one chatbase call, got %d", hits)
	}

	tr := store.GetOrCreate(context.Background(), "s1").Transcript()
	if len(tr) != 2 || tr[1] != (ai.Message{Role: ai.RoleUser, Content: "hello"}) {
		t.Fatalf("expected only the new user entry, got %#v", tr)
	}
}

func TestScenario_ChatbaseFailsOpenAIFallbackSucceeds(t *testing.T) {
	var cbHits int32
	cb := newChatbaseServer(t, http.StatusInternalServerError, "gateway exploded", &cbHits)

	var seen struct {
		Model       string       `json:"model"`
		Messages    []ai.Message `json:"messages"`
		MaxTokens   int          `json:"max_tokens"`
		Temperature float64      `json:"temperature"`
	}
	oa := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected openai path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer ok" {
			t.Errorf("unexpected openai auth header %q", got)
		}
		_ = json.NewDecoder(r.Body).Decode(&seen)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"hi there"}}]}`))
	}))
	defer oa.Close()

	reg := ai.NewRegistry()
	ai.RegisterDefaults(reg, config.ProviderConfig{
		ChatbaseAPIKey:    "k",
		ChatbaseChatbotID: "b",
		ChatbaseBaseURL:   cb.URL,
		OpenAIAPIKey:      "ok",
		OpenAIBaseURL:     oa.URL + "/v1",
		OpenAIModel:       "gpt-3.5-turbo",
		OpenAITemperature: 0.2,
		OpenAIMaxTokens:   512,
	}, nil)

	store := NewMemoryStore("sys", 0)
	svc := NewService(store, reg, "chatbase")

	out := svc.Handle(context.Background(), Request{SessionID: "s1", Message: "hello"})
	if out.Status != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%#v", out.Status, out.Body)
	}
	body := out.Body.(ReplyBody)
	if body.Reply == nil || *body.Reply != "hi there" || !body.UsedFallback {
		t.Fatalf("unexpected body %#v", body)
	}
	if body.Diagnostics[0].Body != "gateway exploded" {
		t.Fatalf("expected raw primary body in diagnostics, got %#v", body.Diagnostics[0])
	}

	if seen.Model != "gpt-3.5-turbo" || seen.MaxTokens != 512 || seen.Temperature != 0.2 {
		t.Fatalf("unexpected openai request knobs: %+v", seen)
	}
	if len(seen.Messages) != 2 || seen.Messages[0].Role != ai.RoleSystem {
		t.Fatalf("expected full transcript upstream, got %#v", seen.Messages)
	}

	tr := store.GetOrCreate(context.Background(), "s1").Transcript()
	if last := tr[len(tr)-1]; last.Role != ai.RoleAssistant || last.Content != "hi there" {
		t.Fatalf("unexpected assistant entry %#v", last)
	}
}

func TestScenario_StatelessChatbaseFailureLabel(t *testing.T) {
	var hits int32
	cb := newChatbaseServer(t, http.StatusServiceUnavailable, `{"message":"busy"}`, &hits)

	reg := ai.NewRegistry()
	ai.RegisterDefaults(reg, config.ProviderConfig{
		ChatbaseAPIKey:    "k",
		ChatbaseChatbotID: "b",
		ChatbaseBaseURL:   cb.URL,
		ChatbaseLabel:     "chatbase",
	}, cb.Client())

	svc := NewService(NewStatelessStore("sys"), reg, "chatbase")
	out := svc.Handle(context.Background(), Request{Message: "hello"})
	if out.Status != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", out.Status)
	}
	if body := out.Body.(ErrorBody); body.Error != "chatbase failed" {
		t.Fatalf("unexpected error text %q", body.Error)
	}
}
