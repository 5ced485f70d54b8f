package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const (
	DefaultOpenAIBaseURL     = "https://api.openai.com/v1"
	DefaultOpenAIModel       = "gpt-3.5-turbo"
	DefaultOpenAITemperature = 0.2
	DefaultOpenAIMaxTokens   = 512
)

type OpenAIProvider struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Client      *http.Client
}

type openAIChatReq struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature"`
}

type openAIChatResp struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func NewOpenAIProvider(baseURL, apiKey, model string, temperature float64, maxTokens int, client *http.Client) *OpenAIProvider {
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIProvider{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		APIKey:      apiKey,
		Model:       model,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Client:      newHTTPClient(client),
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) SendConversation(ctx context.Context, conv Conversation) (Reply, error) {
	if p.Client == nil {
		return Reply{}, errors.New("openai: http client is nil")
	}

	reqBody := openAIChatReq{
		Model:       p.Model,
		Messages:    toWire(conv.Messages),
		MaxTokens:   p.MaxTokens,
		Temperature: p.Temperature,
	}

	url := fmt.Sprintf("%s/chat/completions", p.BaseURL)
	raw, call, err := postJSON(ctx, p.Client, p.Name(), "openai", url, p.APIKey, reqBody)
	if err != nil {
		return Reply{Call: call}, err
	}

	return Reply{Text: openAIReplyText(raw), Call: call}, nil
}

// openAIReplyText extracts choices[0].message.content, or nil when absent.
func openAIReplyText(raw []byte) *string {
	var decoded openAIChatResp
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil
	}
	if len(decoded.Choices) == 0 {
		return nil
	}
	return decoded.Choices[0].Message.Content
}
