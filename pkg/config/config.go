package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port           string
	DatabaseDriver string
	DatabaseURL    string

	JWTSecret       string
	JWTAccessExpiry time.Duration
	WebhookSecret   string

	// Engine
	ScanInterval       time.Duration
	ScanUserTimeout    time.Duration
	ProcessorCount     int
	QueueCapacity      int
	ChunkSize          int
	ChunkOverlap       int
	PollTimeout        time.Duration
	ContentTimeout     time.Duration
	EmbedTimeout       time.Duration
	VectorStoreTimeout time.Duration
	RetryBaseDelay     time.Duration
	RetryMaxAttempts   int
	MaxDocumentChars   int

	// Content service
	NextcloudURL      string
	NotesFolder       string
	OAuthClientID     string
	OAuthClientSecret string
	OAuthAuthURL      string
	OAuthTokenURL     string
	TokenCacheTTL     time.Duration

	// Vector store
	VectorStore      string
	ChromaURL        string
	ChromaAPIKey     string
	ChromaTenant     string
	ChromaDatabase   string
	ChromaCollection string

	// Embeddings
	EmbeddingProvider string
	GeminiAPIKey      string
	OllamaBaseURL     string
	OllamaModel       string

	// Google Pub/Sub
	GoogleProjectID          string
	GooglePubSubTopic        string
	GooglePubSubSubscription string
	GoogleCredentials        string

	LogLevel  string
	LogFormat string
	LogFile   string
}

var defaults = map[string]interface{}{
	"PORT":                 "8080",
	"DATABASE_DRIVER":      "postgres",
	"JWT_SECRET":           "your-secret-key-change-in-production",
	"JWT_ACCESS_EXPIRY":    "15m",
	"SCAN_INTERVAL":        "1h",
	"SCAN_USER_TIMEOUT":    "5m",
	"PROCESSOR_COUNT":      3,
	"QUEUE_CAPACITY":       10000,
	"CHUNK_SIZE":           2048,
	"CHUNK_OVERLAP":        200,
	"POLL_TIMEOUT":         "1s",
	"CONTENT_TIMEOUT":      "30s",
	"EMBED_TIMEOUT":        "60s",
	"VECTOR_STORE_TIMEOUT": "30s",
	"RETRY_BASE_DELAY":     "1s",
	"RETRY_MAX_ATTEMPTS":   3,
	"MAX_DOCUMENT_CHARS":   0,
	"NOTES_FOLDER":         "Notes",
	"TOKEN_CACHE_TTL":      "5m",
	"VECTOR_STORE":         "chroma",
	"CHROMA_COLLECTION":    "documents",
	"EMBEDDING_PROVIDER":   "gemini",
	"OLLAMA_BASE_URL":      "http://localhost:11434",
	"OLLAMA_MODEL":         "nomic-embed-text",
	"LOG_LEVEL":            "info",
	"LOG_FORMAT":           "json",
}

// Load reads .env, then an optional config file, then the environment. Environment
// variables win over the file; the file wins over defaults.
func Load(configFile string) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		Port:           v.GetString("PORT"),
		DatabaseDriver: strings.ToLower(v.GetString("DATABASE_DRIVER")),
		DatabaseURL:    v.GetString("DATABASE_URL"),

		JWTSecret:     v.GetString("JWT_SECRET"),
		WebhookSecret: v.GetString("WEBHOOK_SECRET"),

		ProcessorCount:   v.GetInt("PROCESSOR_COUNT"),
		QueueCapacity:    v.GetInt("QUEUE_CAPACITY"),
		ChunkSize:        v.GetInt("CHUNK_SIZE"),
		ChunkOverlap:     v.GetInt("CHUNK_OVERLAP"),
		RetryMaxAttempts: v.GetInt("RETRY_MAX_ATTEMPTS"),
		MaxDocumentChars: v.GetInt("MAX_DOCUMENT_CHARS"),

		NextcloudURL:      v.GetString("NEXTCLOUD_URL"),
		NotesFolder:       v.GetString("NOTES_FOLDER"),
		OAuthClientID:     v.GetString("OAUTH_CLIENT_ID"),
		OAuthClientSecret: v.GetString("OAUTH_CLIENT_SECRET"),
		OAuthAuthURL:      v.GetString("OAUTH_AUTH_URL"),
		OAuthTokenURL:     v.GetString("OAUTH_TOKEN_URL"),

		VectorStore:      strings.ToLower(v.GetString("VECTOR_STORE")),
		ChromaURL:        v.GetString("CHROMA_URL"),
		ChromaAPIKey:     v.GetString("CHROMA_API_KEY"),
		ChromaTenant:     v.GetString("CHROMA_TENANT"),
		ChromaDatabase:   v.GetString("CHROMA_DATABASE"),
		ChromaCollection: v.GetString("CHROMA_COLLECTION"),

		EmbeddingProvider: strings.ToLower(v.GetString("EMBEDDING_PROVIDER")),
		GeminiAPIKey:      v.GetString("GEMINI_API_KEY"),
		OllamaBaseURL:     v.GetString("OLLAMA_BASE_URL"),
		OllamaModel:       v.GetString("OLLAMA_MODEL"),

		GoogleProjectID:          v.GetString("GOOGLE_PROJECT_ID"),
		GooglePubSubTopic:        v.GetString("GOOGLE_PUBSUB_TOPIC"),
		GooglePubSubSubscription: v.GetString("GOOGLE_PUBSUB_SUBSCRIPTION"),
		GoogleCredentials:        v.GetString("GOOGLE_CREDENTIALS"),

		LogLevel:  v.GetString("LOG_LEVEL"),
		LogFormat: v.GetString("LOG_FORMAT"),
		LogFile:   v.GetString("LOG_FILE"),
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"JWT_ACCESS_EXPIRY", &cfg.JWTAccessExpiry},
		{"SCAN_INTERVAL", &cfg.ScanInterval},
		{"SCAN_USER_TIMEOUT", &cfg.ScanUserTimeout},
		{"POLL_TIMEOUT", &cfg.PollTimeout},
		{"CONTENT_TIMEOUT", &cfg.ContentTimeout},
		{"EMBED_TIMEOUT", &cfg.EmbedTimeout},
		{"VECTOR_STORE_TIMEOUT", &cfg.VectorStoreTimeout},
		{"RETRY_BASE_DELAY", &cfg.RetryBaseDelay},
		{"TOKEN_CACHE_TTL", &cfg.TokenCacheTTL},
	}
	for _, d := range durations {
		parsed, err := parseDuration(v.GetString(d.key))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		*d.dst = parsed
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseDuration accepts Go durations ("90s", "1h") or a bare number of seconds
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(s)
}

// Validate rejects settings the engine cannot run with
func (c *Config) Validate() error {
	if c.ChunkSize <= 0 || c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("invalid chunk settings: size=%d overlap=%d", c.ChunkSize, c.ChunkOverlap)
	}
	if c.ProcessorCount <= 0 {
		return fmt.Errorf("PROCESSOR_COUNT must be positive")
	}
	if c.QueueCapacity <= 0 {
		return fmt.Errorf("QUEUE_CAPACITY must be positive")
	}
	if c.RetryMaxAttempts < 0 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must not be negative")
	}
	switch c.DatabaseDriver {
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	case "sqlite":
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q", c.DatabaseDriver)
	}
	switch c.VectorStore {
	case "chroma", "memory":
	default:
		return fmt.Errorf("unsupported VECTOR_STORE %q", c.VectorStore)
	}
	return nil
}
