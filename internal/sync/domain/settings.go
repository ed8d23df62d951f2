package domain

import "time"

// SyncStatus is the outcome of the latest scan for a user
type SyncStatus string

const (
	SyncStatusIdle    SyncStatus = "idle"
	SyncStatusSyncing SyncStatus = "syncing"
	SyncStatusError   SyncStatus = "error"
)

// SyncSettings stores a user's opt-in state and scan bookkeeping
type SyncSettings struct {
	ID         string     `json:"id" gorm:"primaryKey"`
	UserID     string     `json:"user_id" gorm:"uniqueIndex;not null"`
	Enabled    bool       `json:"enabled" gorm:"index;default:false"`
	LastScanAt *time.Time `json:"last_scan_at,omitempty"` // nil until the bootstrap scan completes
	LastStatus SyncStatus `json:"last_status" gorm:"default:idle"`
	LastError  string     `json:"last_error,omitempty" gorm:"type:text"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (SyncSettings) TableName() string {
	return "sync_settings"
}

// SyncStatusReport is what the settings control surface returns
type SyncStatusReport struct {
	UserID       string     `json:"user_id"`
	Enabled      bool       `json:"enabled"`
	Status       SyncStatus `json:"status"`
	IndexedCount int        `json:"indexed_count"`
	PendingCount int        `json:"pending_count"`
	LastScanAt   *time.Time `json:"last_scan_at,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
}
