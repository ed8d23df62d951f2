package repository

import (
	"errors"
	"time"

	syncdomain "vectorsync-backend/internal/sync/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// settingsRepository implements SettingsRepository interface
type settingsRepository struct {
	db *gorm.DB
}

// NewSettingsRepository creates a new instance of settingsRepository
func NewSettingsRepository(db *gorm.DB) SettingsRepository {
	return &settingsRepository{
		db: db,
	}
}

func (r *settingsRepository) FindByUserID(userID string) (*syncdomain.SyncSettings, error) {
	var settings syncdomain.SyncSettings
	err := r.db.Where("user_id = ?", userID).First(&settings).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &settings, nil
}

func (r *settingsRepository) ListEnabled() ([]*syncdomain.SyncSettings, error) {
	var settings []*syncdomain.SyncSettings
	if err := r.db.Where("enabled = ?", true).Order("user_id").Find(&settings).Error; err != nil {
		return nil, err
	}
	return settings, nil
}

func (r *settingsRepository) SetEnabled(userID string, enabled bool) (*syncdomain.SyncSettings, error) {
	var settings syncdomain.SyncSettings
	now := time.Now()

	err := r.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Where("user_id = ?", userID).First(&settings).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			settings = syncdomain.SyncSettings{
				ID:         uuid.New().String(),
				UserID:     userID,
				Enabled:    enabled,
				LastStatus: syncdomain.SyncStatusIdle,
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			return tx.Create(&settings).Error
		} else if err != nil {
			return err
		}

		// Map update so that false is written
		return tx.Model(&settings).Updates(map[string]interface{}{
			"enabled":    enabled,
			"updated_at": now,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	settings.Enabled = enabled
	return &settings, nil
}

func (r *settingsRepository) UpdateStatus(userID string, status syncdomain.SyncStatus, lastError string) error {
	return r.db.Model(&syncdomain.SyncSettings{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"last_status": status,
			"last_error":  lastError,
			"updated_at":  time.Now(),
		}).Error
}

func (r *settingsRepository) CompleteScan(userID string, at time.Time) error {
	return r.db.Model(&syncdomain.SyncSettings{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"last_status":  syncdomain.SyncStatusIdle,
			"last_error":   "",
			"last_scan_at": at,
			"updated_at":   time.Now(),
		}).Error
}
