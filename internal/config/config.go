package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ModeServer    = "server"
	ModeStateless = "stateless"
)

const DefaultSystemPrompt = "You are an AI Help Desk assistant. Your goal is to help users with their technical issues. Be concise, helpful, and polite. Provide clear, step-by-step instructions and include links to resources when appropriate."

type Config struct {
	Port       string
	DeployMode string

	SystemPrompt      string
	SessionMaxEntries int
	UpstreamTimeout   time.Duration

	// AI provider
	AIProvider string
	Providers  ProviderConfig

	// async chat jobs
	AsyncEnabled      bool
	DBDSN             string
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	IdempotencyTTL    time.Duration
	RabbitURL         string
	RabbitQueue       string
	WorkerConcurrency int
}

type ProviderConfig struct {
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	OpenAIModel       string
	OpenAITemperature float64
	OpenAIMaxTokens   int

	ChatbaseAPIKey      string
	ChatbaseChatbotID   string
	ChatbaseBaseURL     string
	ChatbaseModel       string
	ChatbaseTemperature float64
	// ChatbaseLabel prefixes chatbase failure messages; the stateless
	// handler has always reported plain "chatbase".
	ChatbaseLabel string

	OllamaBaseURL string
	OllamaModel   string
}

// Stateless reports whether transcripts are rebuilt per request.
func (c Config) Stateless() bool {
	return c.DeployMode == ModeStateless
}

// LoadEnvFile loads a .env file from the working directory or the nearest
// parent that has one. Variables already set in the environment win.
func LoadEnvFile() {
	if err := godotenv.Load(); err == nil {
		log.Println("loaded environment from .env")
		return
	}

	workDir, err := os.Getwd()
	if err != nil {
		return
	}
	for dir := workDir; ; dir = filepath.Dir(dir) {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			if err := godotenv.Load(envPath); err == nil {
				log.Printf("loaded environment from %s", envPath)
			}
			return
		}
		if parent := filepath.Dir(dir); parent == dir {
			return
		}
	}
}

func Load() Config {
	mode := strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_MODE")))
	switch mode {
	case "stateless", "serverless":
		mode = ModeStateless
	default:
		mode = ModeServer
	}

	// the one-shot deployment defaults to chatbase, the long-running server to openai
	aiProvider := strings.ToLower(strings.TrimSpace(os.Getenv("AI_PROVIDER")))
	if aiProvider == "" {
		if mode == ModeStateless {
			aiProvider = "chatbase"
		} else {
			aiProvider = "openai"
		}
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "3000"
	}

	systemPrompt := os.Getenv("SYSTEM_PROMPT")
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}

	rabbitQueue := os.Getenv("RABBIT_QUEUE")
	if rabbitQueue == "" {
		rabbitQueue = "chat_jobs"
	}

	return Config{
		Port:       port,
		DeployMode: mode,

		SystemPrompt:      systemPrompt,
		SessionMaxEntries: envInt("SESSION_MAX_ENTRIES", 0),
		UpstreamTimeout:   envDuration("UPSTREAM_TIMEOUT", 90*time.Second),

		AIProvider: aiProvider,
		Providers: ProviderConfig{
			OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
			OpenAIBaseURL:     envString("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			OpenAIModel:       envString("OPENAI_MODEL", "gpt-3.5-turbo"),
			OpenAITemperature: envFloat("OPENAI_TEMPERATURE", 0.2),
			OpenAIMaxTokens:   envInt("OPENAI_MAX_TOKENS", 512),

			ChatbaseAPIKey:      os.Getenv("CHATBASE_API_KEY"),
			ChatbaseChatbotID:   os.Getenv("CHATBASE_CHATBOT_ID"),
			ChatbaseBaseURL:     strings.TrimRight(envString("CHATBASE_BASE_URL", "https://www.chatbase.co"), "/"),
			ChatbaseModel:       envString("CHATBASE_MODEL", "gpt-4o"),
			ChatbaseTemperature: envFloat("CHATBASE_TEMPERATURE", 0.7),
			ChatbaseLabel:       chatbaseLabel(mode),

			OllamaBaseURL: envString("OLLAMA_BASE_URL", "http://localhost:11434"),
			OllamaModel:   envString("OLLAMA_MODEL", "llama3:latest"),
		},

		AsyncEnabled:      envBool("ASYNC_ENABLED"),
		DBDSN:             os.Getenv("DB_DSN"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		RedisDB:           envInt("REDIS_DB", 0),
		IdempotencyTTL:    envDuration("IDEMPOTENCY_TTL", 24*time.Hour),
		RabbitURL:         os.Getenv("RABBIT_URL"),
		RabbitQueue:       rabbitQueue,
		WorkerConcurrency: workerConcurrency(),
	}
}

func workerConcurrency() int {
	n := envInt("WORKER_CONCURRENCY", 2)
	if n <= 0 {
		return 2
	}
	if n > 50 {
		return 50
	}
	return n
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return def
}

func envBool(key string) bool {
	b, _ := strconv.ParseBool(os.Getenv(key))
	return b
}

// envDuration accepts Go durations ("30s") or plain seconds ("30").
func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return def
}

// MaskKey shows only the first and last four characters of a secret.
func MaskKey(k string) string {
	if k == "" {
		return "(missing)"
	}
	if len(k) <= 8 {
		return "(set)"
	}
	return k[:4] + "..." + k[len(k)-4:]
}

// ActiveKeyName is the env var holding the primary provider's credential.
func (c Config) ActiveKeyName() string {
	switch c.AIProvider {
	case "openai":
		return "OPENAI_API_KEY"
	case "chatbase":
		return "CHATBASE_API_KEY"
	default:
		return ""
	}
}

func (c Config) ActiveKey() string {
	switch c.AIProvider {
	case "openai":
		return c.Providers.OpenAIAPIKey
	case "chatbase":
		return c.Providers.ChatbaseAPIKey
	default:
		return ""
	}
}

func chatbaseLabel(mode string) string {
	if mode == ModeStateless {
		return "chatbase"
	}
	return "documented chatbase"
}
