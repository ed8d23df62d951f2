package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	authUsecase "vectorsync-backend/internal/auth/usecase"
	syncDelivery "vectorsync-backend/internal/sync/delivery"
	"vectorsync-backend/internal/sync/queue"
	syncUsecase "vectorsync-backend/internal/sync/usecase"
	"vectorsync-backend/pkg/embedding"

	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 10 * time.Second

// StatsSource reports processor counters for the health endpoint
type StatsSource interface {
	Stats() syncUsecase.ProcessorStats
}

// Deps are the collaborators the HTTP surface is built from
type Deps struct {
	AuthUsecase     authUsecase.AuthUsecase
	SettingsUsecase syncUsecase.SettingsUsecase
	Ingester        *syncUsecase.Ingester
	Queue           *queue.Queue
	Processor       StatsSource
	WebhookSecret   string
	Embedding       embedding.Config
	Logger          *slog.Logger
}

type Handler struct {
	authUsecase       authUsecase.AuthUsecase
	webhookHandler    *syncDelivery.WebhookHandler
	settingsHandler   *syncDelivery.SettingsHandler
	embeddingSettings *EmbeddingSettingsHandler
	queue             *queue.Queue
	processor         StatsSource
	logger            *slog.Logger
}

func NewHandler(d Deps) *Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		authUsecase:       d.AuthUsecase,
		webhookHandler:    syncDelivery.NewWebhookHandler(d.Ingester, d.WebhookSecret, logger),
		settingsHandler:   syncDelivery.NewSettingsHandler(d.SettingsUsecase, logger),
		embeddingSettings: NewEmbeddingSettingsHandler(d.Embedding),
		queue:             d.Queue,
		processor:         d.Processor,
		logger:            logger.With("component", "http"),
	}
}

// Engine builds the gin engine with middleware and routes
func (h *Handler) Engine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	// CORS middleware
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	SetupRoutes(r, h)
	return r
}

// Start serves on addr until ctx is cancelled, then shuts down gracefully
func (h *Handler) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		h.logger.Info("server starting", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	h.logger.Info("server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

// Health reports queue depth and processor counters
// GET /api/health
func (h *Handler) Health(c *gin.Context) {
	resp := gin.H{"status": "ok"}
	if h.queue != nil {
		resp["queue"] = gin.H{
			"pending":  h.queue.Len(),
			"capacity": h.queue.Cap(),
			"closed":   h.queue.Closed(),
		}
		if h.queue.Closed() {
			resp["status"] = "shutting_down"
		}
	}
	if h.processor != nil {
		resp["processor"] = h.processor.Stats()
	}
	c.JSON(http.StatusOK, resp)
}
