package domain

import (
	"time"

	syncdomain "vectorsync-backend/internal/sync/domain"

	"golang.org/x/oauth2"
)

// ErrNotAuthorized is returned when a user has no usable content-service token.
// It is the same sentinel the sync engine checks for.
var ErrNotAuthorized = syncdomain.ErrNotAuthorized

// UserToken is the OAuth2 grant for the content service, written by the consent flow
type UserToken struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	UserID       string    `json:"user_id" gorm:"uniqueIndex;not null"`
	AccessToken  string    `json:"-" gorm:"type:text"` // Never expose tokens in JSON
	RefreshToken string    `json:"-" gorm:"type:text"`
	TokenType    string    `json:"token_type"`
	Expiry       time.Time `json:"expiry"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (UserToken) TableName() string {
	return "user_tokens"
}

// OAuth2Token converts the stored grant into an oauth2.Token
func (t *UserToken) OAuth2Token() *oauth2.Token {
	tokenType := t.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    tokenType,
		Expiry:       t.Expiry,
	}
}

// TokenUpdateFunc is called whenever a refresh produced a new access token
type TokenUpdateFunc func(token *oauth2.Token) error
