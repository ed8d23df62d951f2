package delivery

import (
	"log/slog"
	"net/http"

	authdelivery "vectorsync-backend/internal/auth/delivery"
	"vectorsync-backend/internal/sync/usecase"

	"github.com/gin-gonic/gin"
)

// SettingsHandler exposes the per-user sync control surface
type SettingsHandler struct {
	settingsUsecase usecase.SettingsUsecase
	logger          *slog.Logger
}

// NewSettingsHandler creates a new SettingsHandler
func NewSettingsHandler(settingsUsecase usecase.SettingsUsecase, logger *slog.Logger) *SettingsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SettingsHandler{
		settingsUsecase: settingsUsecase,
		logger:          logger.With("component", "settings"),
	}
}

func userID(c *gin.Context) (string, bool) {
	id := c.GetString(authdelivery.UserIDKey)
	if id == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return "", false
	}
	return id, true
}

// POST /api/sync/enable
func (h *SettingsHandler) Enable(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}
	report, err := h.settingsUsecase.Enable(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("failed to enable sync", "user_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enable sync"})
		return
	}
	c.JSON(http.StatusOK, report)
}

// POST /api/sync/disable
// Disable opts the user out and removes their indexed documents
func (h *SettingsHandler) Disable(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}
	report, err := h.settingsUsecase.Disable(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("failed to disable sync", "user_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to disable sync"})
		return
	}
	c.JSON(http.StatusOK, report)
}

// GET /api/sync/status
func (h *SettingsHandler) Status(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}
	report, err := h.settingsUsecase.Status(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("failed to get sync status", "user_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get sync status"})
		return
	}
	c.JSON(http.StatusOK, report)
}
