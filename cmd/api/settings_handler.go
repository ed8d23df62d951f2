package api

import (
	"context"
	"net/http"
	"time"

	"vectorsync-backend/pkg/embedding"

	"github.com/gin-gonic/gin"
)

const probeTimeout = 5 * time.Second

// EmbeddingSettingsHandler exposes the embedding provider configuration. The provider
// is fixed at startup because the vector collection dimension depends on it.
type EmbeddingSettingsHandler struct {
	cfg   embedding.Config
	probe func(ctx context.Context, baseURL, model string) error
}

func NewEmbeddingSettingsHandler(cfg embedding.Config) *EmbeddingSettingsHandler {
	return &EmbeddingSettingsHandler{cfg: cfg, probe: embedding.CheckOllama}
}

// GetEmbeddingSettings returns the active embedding configuration
// GET /api/settings/embedding
func (h *EmbeddingSettingsHandler) GetEmbeddingSettings(c *gin.Context) {
	resp := gin.H{"provider": h.cfg.Provider}
	if h.cfg.Provider == embedding.ProviderOllama {
		resp["ollama_base_url"] = h.cfg.OllamaBaseURL
		resp["ollama_model"] = h.cfg.OllamaModel
	} else {
		resp["model"] = embedding.DefaultGeminiModel
	}
	c.JSON(http.StatusOK, resp)
}

// TestEmbeddingConnection tests if an Ollama server is reachable and has the model
// POST /api/settings/embedding/test
func (h *EmbeddingSettingsHandler) TestEmbeddingConnection(c *gin.Context) {
	var req struct {
		OllamaBaseURL string `json:"ollama_base_url"`
		OllamaModel   string `json:"ollama_model"`
	}
	// Empty body falls back to the current config
	_ = c.ShouldBindJSON(&req)
	if req.OllamaBaseURL == "" {
		req.OllamaBaseURL = h.cfg.OllamaBaseURL
	}
	if req.OllamaModel == "" {
		req.OllamaModel = h.cfg.OllamaModel
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), probeTimeout)
	defer cancel()
	if err := h.probe(ctx, req.OllamaBaseURL, req.OllamaModel); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"connected": false,
			"error":     err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"connected":       true,
		"ollama_base_url": req.OllamaBaseURL,
		"ollama_model":    req.OllamaModel,
	})
}
