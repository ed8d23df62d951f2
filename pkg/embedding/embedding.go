// Package embedding turns text fragments into vectors through a chroma-go embedding function.
package embedding

import (
	"context"
	"fmt"
	"os"

	"github.com/amikos-tech/chroma-go/pkg/embeddings"
	"github.com/amikos-tech/chroma-go/pkg/embeddings/gemini"
	"github.com/amikos-tech/chroma-go/pkg/embeddings/ollama"
)

// ProviderType represents the embedding provider type
type ProviderType string

const (
	ProviderGemini ProviderType = "gemini"
	ProviderOllama ProviderType = "ollama"
)

const (
	DefaultGeminiModel   = "text-embedding-004"
	DefaultOllamaBaseURL = "http://localhost:11434"
	DefaultOllamaModel   = "nomic-embed-text"
)

// Config holds embedding provider configuration
type Config struct {
	Provider ProviderType // "gemini" or "ollama"

	GeminiAPIKey string

	OllamaBaseURL string // e.g., "http://localhost:11434"
	OllamaModel   string // e.g., "nomic-embed-text"
}

// Service embeds documents with one provider
type Service struct {
	provider ProviderType
	ef       embeddings.EmbeddingFunction
}

// New creates a Service based on the config.
// Without an explicit provider, Gemini is used when an API key is set, Ollama otherwise.
func New(cfg Config) (*Service, error) {
	provider := cfg.Provider
	if provider == "" {
		provider = ProviderOllama
		if cfg.GeminiAPIKey != "" {
			provider = ProviderGemini
		}
	}

	switch provider {
	case ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is required for Gemini provider")
		}
		// The Gemini embedding function reads its key from the environment
		if err := os.Setenv("GEMINI_API_KEY", cfg.GeminiAPIKey); err != nil {
			return nil, fmt.Errorf("failed to set GEMINI_API_KEY: %w", err)
		}
		ef, err := gemini.NewGeminiEmbeddingFunction(
			gemini.WithEnvAPIKey(),
			gemini.WithDefaultModel(DefaultGeminiModel),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini embedding function: %w", err)
		}
		return &Service{provider: ProviderGemini, ef: ef}, nil

	case ProviderOllama:
		baseURL := cfg.OllamaBaseURL
		if baseURL == "" {
			baseURL = DefaultOllamaBaseURL
		}
		model := cfg.OllamaModel
		if model == "" {
			model = DefaultOllamaModel
		}
		ef, err := ollama.NewOllamaEmbeddingFunction(
			ollama.WithBaseURL(baseURL),
			ollama.WithModel(embeddings.EmbeddingModel(model)),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create Ollama embedding function: %w", err)
		}
		return &Service{provider: ProviderOllama, ef: ef}, nil

	default:
		return nil, fmt.Errorf("unknown embedding provider %q", provider)
	}
}

// NewWithFunction wraps an existing embedding function
func NewWithFunction(provider ProviderType, ef embeddings.EmbeddingFunction) *Service {
	return &Service{provider: provider, ef: ef}
}

// Provider returns the configured provider
func (s *Service) Provider() ProviderType { return s.provider }

// EmbeddingFunction exposes the underlying function so a vector store collection can share it
func (s *Service) EmbeddingFunction() embeddings.EmbeddingFunction { return s.ef }

// Embed returns one vector per text, in order, with a single provider call
func (s *Service) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	embs, err := s.ef.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, classify(fmt.Errorf("%s embedding failed: %w", s.provider, err))
	}
	if len(embs) != len(texts) {
		return nil, fmt.Errorf("%s returned %d embeddings for %d texts", s.provider, len(embs), len(texts))
	}

	out := make([][]float32, len(embs))
	for i, e := range embs {
		out[i] = e.ContentAsFloat32()
	}
	return out, nil
}
