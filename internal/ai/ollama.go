package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// OllamaProvider targets a local Ollama daemon. It needs no credential.
type OllamaProvider struct {
	BaseURL string
	Model   string
	Client  *http.Client
}

func NewOllamaProvider(baseURL, model string, client *http.Client) *OllamaProvider {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3:latest"
	}
	return &OllamaProvider{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Model:   model,
		Client:  newHTTPClient(client),
	}
}

type ollamaChatReq struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type ollamaChatResp struct {
	Message *struct {
		Content *string `json:"content"`
	} `json:"message"`
}

func (p *OllamaProvider) Name() string { return "ollama" }

func (p *OllamaProvider) SendConversation(ctx context.Context, conv Conversation) (Reply, error) {
	if p.Client == nil {
		return Reply{}, errors.New("ollama: http client is nil")
	}

	reqBody := ollamaChatReq{
		Model:    p.Model,
		Stream:   false,
		Messages: toWire(conv.Messages),
	}

	url := fmt.Sprintf("%s/api/chat", p.BaseURL)
	raw, call, err := postJSON(ctx, p.Client, p.Name(), "ollama", url, "", reqBody)
	if err != nil {
		return Reply{Call: call}, err
	}

	var decoded ollamaChatResp
	if err := json.Unmarshal(raw, &decoded); err != nil || decoded.Message == nil {
		return Reply{Call: call}, nil
	}
	return Reply{Text: decoded.Message.Content, Call: call}, nil
}
