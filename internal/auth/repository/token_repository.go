package repository

import (
	"errors"
	"time"

	authdomain "vectorsync-backend/internal/auth/domain"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TokenRepository defines the interface for content-service token operations
type TokenRepository interface {
	FindByUserID(userID string) (*authdomain.UserToken, error)
	SaveToken(userID string, token *oauth2.Token) error
	DeleteByUserID(userID string) error
}

// tokenRepository implements TokenRepository interface
type tokenRepository struct {
	db *gorm.DB
}

// NewTokenRepository creates a new instance of tokenRepository
func NewTokenRepository(db *gorm.DB) TokenRepository {
	return &tokenRepository{
		db: db,
	}
}

func (r *tokenRepository) FindByUserID(userID string) (*authdomain.UserToken, error) {
	var token authdomain.UserToken
	err := r.db.Where("user_id = ?", userID).First(&token).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &token, nil
}

// SaveToken saves or updates the grant for a user (atomic upsert).
// An empty refresh token in the update keeps the stored one.
func (r *tokenRepository) SaveToken(userID string, token *oauth2.Token) error {
	now := time.Now()
	userToken := &authdomain.UserToken{
		ID:           uuid.New().String(),
		UserID:       userID,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		Expiry:       token.Expiry,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	columns := []string{"access_token", "token_type", "expiry", "updated_at"}
	if token.RefreshToken != "" {
		columns = append(columns, "refresh_token")
	}

	// INSERT ... ON CONFLICT (user_id) DO UPDATE
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Create(userToken).Error
}

func (r *tokenRepository) DeleteByUserID(userID string) error {
	return r.db.Where("user_id = ?", userID).Delete(&authdomain.UserToken{}).Error
}
