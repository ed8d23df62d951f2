package usecase

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for a missing, malformed or expired API token
var ErrInvalidToken = errors.New("invalid token")

// Claims carries the user id of an API caller
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
}

// AuthUsecase issues and validates the JWTs that protect the settings API
type AuthUsecase interface {
	GenerateAccessToken(userID string) (string, error)
	ValidateToken(tokenString string) (string, error)
}

// authUsecase implements AuthUsecase interface
type authUsecase struct {
	secret []byte
	expiry time.Duration
}

// NewAuthUsecase creates a new instance of authUsecase
func NewAuthUsecase(secret string, expiry time.Duration) AuthUsecase {
	return &authUsecase{
		secret: []byte(secret),
		expiry: expiry,
	}
}

func (u *authUsecase) GenerateAccessToken(userID string) (string, error) {
	if userID == "" {
		return "", errors.New("user id is required")
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(u.expiry)),
		},
		UserID: userID,
	})

	signed, err := token.SignedString(u.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken returns the user id carried by a valid token
func (u *authUsecase) ValidateToken(tokenString string) (string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return u.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}

	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return "", ErrInvalidToken
	}
	return userID, nil
}
