package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	syncdomain "vectorsync-backend/internal/sync/domain"
	"vectorsync-backend/internal/sync/queue"
	"vectorsync-backend/internal/sync/repository"
)

// SettingsUsecase is the per-user control surface of the engine
type SettingsUsecase interface {
	Enable(ctx context.Context, userID string) (*syncdomain.SyncStatusReport, error)
	Disable(ctx context.Context, userID string) (*syncdomain.SyncStatusReport, error)
	Status(ctx context.Context, userID string) (*syncdomain.SyncStatusReport, error)
}

// settingsUsecase implements SettingsUsecase interface
type settingsUsecase struct {
	settingsRepo repository.SettingsRepository
	store        VectorStore
	queue        *queue.Queue
	trigger      ScanTrigger
	storeTimeout time.Duration
	logger       *slog.Logger
}

// NewSettingsUsecase creates a new instance of settingsUsecase. trigger may be nil.
func NewSettingsUsecase(
	settingsRepo repository.SettingsRepository,
	store VectorStore,
	q *queue.Queue,
	trigger ScanTrigger,
	storeTimeout time.Duration,
	logger *slog.Logger,
) SettingsUsecase {
	if storeTimeout <= 0 {
		storeTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &settingsUsecase{
		settingsRepo: settingsRepo,
		store:        store,
		queue:        q,
		trigger:      trigger,
		storeTimeout: storeTimeout,
		logger:       logger.With("component", "settings"),
	}
}

// Enable opts the user in and schedules a scan; the first one bootstraps the index
func (u *settingsUsecase) Enable(ctx context.Context, userID string) (*syncdomain.SyncStatusReport, error) {
	if _, err := u.settingsRepo.SetEnabled(userID, true); err != nil {
		return nil, fmt.Errorf("failed to enable sync: %w", err)
	}
	u.logger.InfoContext(ctx, "sync enabled", "user_id", userID)

	if u.trigger != nil {
		u.trigger.TriggerScan()
	}
	return u.Status(ctx, userID)
}

// Disable opts the user out and removes every vector they own
func (u *settingsUsecase) Disable(ctx context.Context, userID string) (*syncdomain.SyncStatusReport, error) {
	if _, err := u.settingsRepo.SetEnabled(userID, false); err != nil {
		return nil, fmt.Errorf("failed to disable sync: %w", err)
	}

	storeCtx, cancel := context.WithTimeout(ctx, u.storeTimeout)
	defer cancel()
	if err := u.store.DeleteUser(storeCtx, userID); err != nil {
		return nil, fmt.Errorf("failed to delete indexed documents: %w", err)
	}
	u.logger.InfoContext(ctx, "sync disabled, index purged", "user_id", userID)

	return u.Status(ctx, userID)
}

// Status reports the user's sync state. Pending work counts only the user's own queued tasks.
func (u *settingsUsecase) Status(ctx context.Context, userID string) (*syncdomain.SyncStatusReport, error) {
	settings, err := u.settingsRepo.FindByUserID(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	report := &syncdomain.SyncStatusReport{
		UserID: userID,
		Status: syncdomain.SyncStatusIdle,
	}
	if settings == nil {
		return report, nil
	}

	report.Enabled = settings.Enabled
	report.LastScanAt = settings.LastScanAt
	report.LastError = settings.LastError
	if settings.LastStatus != "" {
		report.Status = settings.LastStatus
	}

	if !settings.Enabled {
		report.Status = syncdomain.SyncStatusIdle
		return report, nil
	}

	storeCtx, cancel := context.WithTimeout(ctx, u.storeTimeout)
	defer cancel()
	count, err := u.store.CountDocuments(storeCtx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count indexed documents: %w", err)
	}
	report.IndexedCount = count
	report.PendingCount = u.queue.PendingFor(userID)

	if report.PendingCount > 0 && report.Status == syncdomain.SyncStatusIdle {
		report.Status = syncdomain.SyncStatusSyncing
	}
	return report, nil
}
