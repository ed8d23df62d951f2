package repository

import (
	"time"

	syncdomain "vectorsync-backend/internal/sync/domain"
)

// SettingsRepository defines persistence for per-user sync settings
type SettingsRepository interface {
	// FindByUserID returns nil, nil when the user never opted in
	FindByUserID(userID string) (*syncdomain.SyncSettings, error)
	// ListEnabled returns every user with sync enabled
	ListEnabled() ([]*syncdomain.SyncSettings, error)
	// SetEnabled creates the settings row on first opt-in
	SetEnabled(userID string, enabled bool) (*syncdomain.SyncSettings, error)
	// UpdateStatus records the current status and error message
	UpdateStatus(userID string, status syncdomain.SyncStatus, lastError string) error
	// CompleteScan marks a successful pass: status idle, error cleared, LastScanAt = at
	CompleteScan(userID string, at time.Time) error
}
