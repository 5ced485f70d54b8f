package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one transcript entry.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Conversation is what an adapter sends upstream: the full ordered transcript
// plus the session it belongs to.
type Conversation struct {
	SessionID string
	Messages  []Message
}

// Reply is a successful upstream answer. Text is nil when the provider
// answered 2xx but the reply field was missing.
type Reply struct {
	Text *string
	Call CallRecord
}

// CallRecord describes a single upstream call for diagnostics.
type CallRecord struct {
	Provider string `json:"provider"`
	Endpoint string `json:"endpoint"`
	Status   int    `json:"status,omitempty"`
	Body     string `json:"body,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Provider sends a conversation to one upstream chat API.
type Provider interface {
	Name() string
	SendConversation(ctx context.Context, conv Conversation) (Reply, error)
}

type ErrorKind string

const (
	KindTransport ErrorKind = "transport"
	KindStatus    ErrorKind = "upstream_status"
)

// UpstreamError is returned by adapters when the call failed at the network
// level or the provider answered with a non-2xx status.
type UpstreamError struct {
	Provider   string
	Label      string
	Kind       ErrorKind
	StatusCode int
	// Details is the decoded JSON error body, the raw text when it was not
	// JSON, or the transport error string.
	Details any
	Call    CallRecord
	Err     error
}

func (e *UpstreamError) Error() string {
	if e.Kind == KindTransport {
		return fmt.Sprintf("%s: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s: status %d", e.Provider, e.StatusCode)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Summary is the short client-facing description of the failure.
func (e *UpstreamError) Summary() string {
	label := e.Label
	if label == "" {
		label = e.Provider
	}
	if e.Kind == KindTransport {
		return label + " request error"
	}
	return label + " failed"
}

// MissingCredentialError means a provider cannot be built because its secret
// is not configured.
type MissingCredentialError struct {
	Provider string
	Key      string
}

func (e *MissingCredentialError) Error() string {
	return "server missing " + e.Key
}

var ErrUnknownProvider = errors.New("unsupported AI_PROVIDER")

const maxRecordedBody = 2000

func truncate(s string) string {
	if len(s) <= maxRecordedBody {
		return s
	}
	return s[:maxRecordedBody]
}

// decodeDetails returns the body as decoded JSON when possible, else raw text.
func decodeDetails(raw []byte) any {
	var v any
	if err := json.Unmarshal(raw, &v); err == nil {
		return v
	}
	return string(raw)
}

func toWire(messages []Message) []Message {
	out := make([]Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, Message{Role: m.Role, Content: m.Content})
	}
	return out
}

// postJSON issues a single bearer-authenticated JSON POST and classifies the
// outcome. On 2xx it returns the raw body for the caller to decode.
func postJSON(ctx context.Context, client *http.Client, provider, label, url, apiKey string, payload any) ([]byte, CallRecord, error) {
	call := CallRecord{Provider: provider, Endpoint: url}

	b, err := json.Marshal(payload)
	if err != nil {
		return nil, call, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, call, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		call.Error = err.Error()
		return nil, call, &UpstreamError{
			Provider: provider,
			Label:    label,
			Kind:     KindTransport,
			Details:  err.Error(),
			Call:     call,
			Err:      err,
		}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	call.Status = resp.StatusCode
	if err != nil {
		call.Error = err.Error()
		return nil, call, &UpstreamError{
			Provider:   provider,
			Label:      label,
			Kind:       KindTransport,
			StatusCode: resp.StatusCode,
			Details:    err.Error(),
			Call:       call,
			Err:        err,
		}
	}
	call.Body = truncate(string(raw))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, call, &UpstreamError{
			Provider:   provider,
			Label:      label,
			Kind:       KindStatus,
			StatusCode: resp.StatusCode,
			Details:    decodeDetails(raw),
			Call:       call,
		}
	}
	return raw, call, nil
}

func newHTTPClient(client *http.Client) *http.Client {
	if client != nil {
		return client
	}
	return &http.Client{}
}
