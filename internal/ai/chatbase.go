package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

const (
	DefaultChatbaseBaseURL     = "https://www.chatbase.co"
	DefaultChatbaseModel       = "gpt-4o"
	DefaultChatbaseTemperature = 0.7
	DefaultChatbaseLabel       = "documented chatbase"
)

// ChatbaseProvider talks to the documented Chatbase chat endpoint.
type ChatbaseProvider struct {
	BaseURL     string
	APIKey      string
	ChatbotID   string
	Model       string
	Temperature float64
	// Label prefixes error summaries, e.g. "documented chatbase failed".
	Label  string
	Client *http.Client
}

type chatbaseChatReq struct {
	ChatbotID      string    `json:"chatbotId"`
	Messages       []Message `json:"messages"`
	ConversationID string    `json:"conversationId"`
	ContactID      string    `json:"contactId"`
	Model          string    `json:"model"`
	Temperature    float64   `json:"temperature"`
	Stream         bool      `json:"stream"`
}

type chatbaseChatResp struct {
	Text *string `json:"text"`
}

func NewChatbaseProvider(baseURL, apiKey, chatbotID, model string, temperature float64, client *http.Client) *ChatbaseProvider {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		baseURL = DefaultChatbaseBaseURL
	}
	if model == "" {
		model = DefaultChatbaseModel
	}
	return &ChatbaseProvider{
		BaseURL:     baseURL,
		APIKey:      apiKey,
		ChatbotID:   chatbotID,
		Model:       model,
		Temperature: temperature,
		Label:       DefaultChatbaseLabel,
		Client:      newHTTPClient(client),
	}
}

func (p *ChatbaseProvider) Name() string { return "chatbase" }

// Endpoint is the full URL of the chat call.
func (p *ChatbaseProvider) Endpoint() string {
	return p.BaseURL + "/api/v1/chat"
}

func (p *ChatbaseProvider) SendConversation(ctx context.Context, conv Conversation) (Reply, error) {
	if p.Client == nil {
		return Reply{}, errors.New("chatbase: http client is nil")
	}

	// the session id doubles as conversation and contact id
	reqBody := chatbaseChatReq{
		ChatbotID:      p.ChatbotID,
		Messages:       toWire(conv.Messages),
		ConversationID: conv.SessionID,
		ContactID:      conv.SessionID,
		Model:          p.Model,
		Temperature:    p.Temperature,
		Stream:         false,
	}

	label := p.Label
	if label == "" {
		label = DefaultChatbaseLabel
	}
	raw, call, err := postJSON(ctx, p.Client, p.Name(), label, p.Endpoint(), p.APIKey, reqBody)
	if err != nil {
		return Reply{Call: call}, err
	}

	var decoded chatbaseChatResp
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return Reply{Call: call}, nil
	}
	return Reply{Text: decoded.Text, Call: call}, nil
}
