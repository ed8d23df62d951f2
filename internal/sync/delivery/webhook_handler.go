package delivery

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	syncdomain "vectorsync-backend/internal/sync/domain"
	"vectorsync-backend/internal/sync/queue"
	"vectorsync-backend/internal/sync/usecase"

	"github.com/gin-gonic/gin"
)

// WebhookHandler receives change notifications from the content service
type WebhookHandler struct {
	ingester *usecase.Ingester
	secret   string
	logger   *slog.Logger
}

// NewWebhookHandler creates a new WebhookHandler. An empty secret disables authentication.
func NewWebhookHandler(ingester *usecase.Ingester, secret string, logger *slog.Logger) *WebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookHandler{
		ingester: ingester,
		secret:   secret,
		logger:   logger.With("component", "webhook"),
	}
}

// POST /api/webhooks/nextcloud
// Receive maps one notification to a task and queues it without blocking
func (h *WebhookHandler) Receive(c *gin.Context) {
	if !h.authorized(c.GetHeader("Authorization")) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var evt syncdomain.WebhookEvent
	if err := c.ShouldBindJSON(&evt); err != nil {
		h.logger.Warn("unparseable webhook payload", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	result, err := h.ingester.Ingest(c.Request.Context(), &evt, syncdomain.SourceWebhook)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": string(result)})
	case errors.Is(err, syncdomain.ErrMalformedEvent):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, queue.ErrQueueFull):
		// Push backpressure to the sender; it retries later
		c.JSON(http.StatusInternalServerError, gin.H{"error": "queue full"})
	case errors.Is(err, queue.ErrQueueClosed):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "shutting down"})
	default:
		h.logger.Error("failed to ingest webhook", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (h *WebhookHandler) authorized(header string) bool {
	if h.secret == "" {
		return true
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.secret)) == 1
}
