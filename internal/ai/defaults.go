package ai

import (
	"context"
	"net/http"
	"strings"

	"github.com/suPer8Hu/helpdesk-relay/internal/config"
)

// RegisterDefaults registers the openai, chatbase and ollama adapters and the
// fallback table: non-openai primaries fall back to openai.
func RegisterDefaults(reg *Registry, cfg config.ProviderConfig, client *http.Client) {
	reg.Register("openai", func(_ context.Context) (Provider, error) {
		if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
			return nil, &MissingCredentialError{Provider: "openai", Key: "OPENAI_API_KEY"}
		}
		return NewOpenAIProvider(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel,
			cfg.OpenAITemperature, cfg.OpenAIMaxTokens, client), nil
	})

	reg.Register("chatbase", func(_ context.Context) (Provider, error) {
		if strings.TrimSpace(cfg.ChatbaseAPIKey) == "" {
			return nil, &MissingCredentialError{Provider: "chatbase", Key: "CHATBASE_API_KEY"}
		}
		if strings.TrimSpace(cfg.ChatbaseChatbotID) == "" {
			return nil, &MissingCredentialError{Provider: "chatbase", Key: "CHATBASE_CHATBOT_ID"}
		}
		p := NewChatbaseProvider(cfg.ChatbaseBaseURL, cfg.ChatbaseAPIKey, cfg.ChatbaseChatbotID,
			cfg.ChatbaseModel, cfg.ChatbaseTemperature, client)
		if cfg.ChatbaseLabel != "" {
			p.Label = cfg.ChatbaseLabel
		}
		return p, nil
	})

	reg.Register("ollama", func(_ context.Context) (Provider, error) {
		return NewOllamaProvider(cfg.OllamaBaseURL, cfg.OllamaModel, client), nil
	})

	reg.SetFallbacks("openai")
	reg.SetFallbacks("chatbase", "openai")
	reg.SetFallbacks("ollama", "openai")
}
