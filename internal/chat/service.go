package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/suPer8Hu/helpdesk-relay/internal/ai"
)

const DefaultSessionID = "default"

var ErrMessageRequired = errors.New("message required")

// Request is one inbound chat call. Message is the decoded JSON value as sent
// by the client and must be a non-empty string.
type Request struct {
	SessionID string
	Message   any
}

// Outcome is the HTTP status and JSON body to hand back to the client.
type Outcome struct {
	Status int
	Body   any
}

type ReplyBody struct {
	Reply        *string         `json:"reply"`
	ProviderUsed string          `json:"providerUsed,omitempty"`
	UsedFallback bool            `json:"usedFallback,omitempty"`
	Fallback     string          `json:"fallback,omitempty"`
	Diagnostics  []ai.CallRecord `json:"diagnostics,omitempty"`
}

type ErrorBody struct {
	Error    string    `json:"error"`
	Details  any       `json:"details,omitempty"`
	Failures []Failure `json:"failures,omitempty"`
}

type Failure struct {
	Provider string `json:"provider"`
	Kind     string `json:"kind"`
	Status   int    `json:"status,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
	Details  any    `json:"details,omitempty"`
}

type Service struct {
	store    Store
	registry *ai.Registry
	primary  string
}

func NewService(store Store, registry *ai.Registry, primary string) *Service {
	return &Service{store: store, registry: registry, primary: primary}
}

// Handle runs one chat turn: validate, record the user entry, call the primary
// provider and its fallbacks, record the assistant entry on success.
// It never panics; unexpected faults become a 500 outcome.
func (s *Service) Handle(ctx context.Context, req Request) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[chat] panic session=%s err=%v", req.SessionID, r)
			out = serverError(fmt.Sprint(r))
		}
	}()

	message, err := MessageText(req.Message)
	if err != nil {
		return Outcome{Status: http.StatusBadRequest, Body: ErrorBody{Error: ErrMessageRequired.Error()}}
	}

	sid := strings.TrimSpace(req.SessionID)
	if sid == "" {
		sid = DefaultSessionID
	}

	sess := s.store.GetOrCreate(ctx, sid)
	unlock := sess.lockTurn()
	defer unlock()

	s.store.Append(sess, ai.Message{Role: ai.RoleUser, Content: message})

	chain, err := s.registry.Chain(ctx, s.primary)
	if err != nil {
		var mc *ai.MissingCredentialError
		switch {
		case errors.As(err, &mc):
			return Outcome{Status: http.StatusInternalServerError, Body: ErrorBody{Error: mc.Error()}}
		case errors.Is(err, ai.ErrUnknownProvider):
			return Outcome{Status: http.StatusInternalServerError, Body: ErrorBody{Error: ai.ErrUnknownProvider.Error(), Details: s.primary}}
		default:
			return serverError(err.Error())
		}
	}

	start := time.Now()
	res, err := chain.Run(ctx, ai.Conversation{SessionID: sid, Messages: sess.Transcript()})
	if err != nil {
		var ce *ai.ChainError
		if errors.As(err, &ce) {
			log.Printf("[chat] upstream exhausted session=%s cost=%s err=%v", sid, time.Since(start), err)
			return upstreamFailure(ce)
		}
		log.Printf("[chat] internal error session=%s err=%v", sid, err)
		return serverError(err.Error())
	}

	content := ""
	if res.Reply.Text != nil {
		content = *res.Reply.Text
	}
	s.store.Append(sess, ai.Message{Role: ai.RoleAssistant, Content: content})

	body := ReplyBody{
		Reply:        res.Reply.Text,
		ProviderUsed: res.Provider,
		Diagnostics:  res.Calls(),
	}
	if res.UsedFallback() {
		body.UsedFallback = true
		body.Fallback = res.Provider
		log.Printf("[chat] fallback used session=%s provider=%s primary_err=%v", sid, res.Provider, res.Failures[0])
	}
	return Outcome{Status: http.StatusOK, Body: body}
}

// MessageText returns v as a chat message, or ErrMessageRequired unless v is
// a non-empty string.
func MessageText(v any) (string, error) {
	s, ok := v.(string)
	if !ok || s == "" {
		return "", ErrMessageRequired
	}
	return s, nil
}

func serverError(details string) Outcome {
	return Outcome{Status: http.StatusInternalServerError, Body: ErrorBody{Error: "server error", Details: details}}
}

func upstreamFailure(ce *ai.ChainError) Outcome {
	body := ErrorBody{Error: ce.Summary()}
	for _, f := range ce.Failures {
		body.Failures = append(body.Failures, Failure{
			Provider: f.Provider,
			Kind:     string(f.Kind),
			Status:   f.StatusCode,
			Endpoint: f.Call.Endpoint,
			Details:  f.Details,
		})
	}
	if len(ce.Failures) > 0 {
		body.Details = ce.Failures[0].Details
	}
	return Outcome{Status: http.StatusBadGateway, Body: body}
}
