package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	authdomain "vectorsync-backend/internal/auth/domain"
	"vectorsync-backend/internal/auth/repository"
	syncdomain "vectorsync-backend/internal/sync/domain"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/oauth2"
)

const (
	defaultTokenCacheSize = 1024
	defaultTokenCacheTTL  = 5 * time.Minute
)

type notifyTokenSource struct {
	src      oauth2.TokenSource
	current  *oauth2.Token
	callback authdomain.TokenUpdateFunc
	logger   *slog.Logger
}

func (s *notifyTokenSource) Token() (*oauth2.Token, error) {
	t, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	if s.callback != nil && s.current.AccessToken != t.AccessToken {
		s.current = t
		// Block so the stored grant never lags behind the one in use
		if err := s.callback(t); err != nil {
			s.logger.Error("failed to persist refreshed token", "error", err)
		}
	}
	return t, nil
}

// TokenProvider resolves a user id to a valid content-service access token,
// refreshing and persisting the grant when it has expired.
type TokenProvider struct {
	repo        repository.TokenRepository
	oauthConfig *oauth2.Config
	cache       *expirable.LRU[string, *oauth2.Token]
	logger      *slog.Logger
}

// NewTokenProvider creates a token provider. cacheTTL <= 0 uses the default.
func NewTokenProvider(repo repository.TokenRepository, oauthConfig *oauth2.Config, cacheTTL time.Duration, logger *slog.Logger) *TokenProvider {
	if cacheTTL <= 0 {
		cacheTTL = defaultTokenCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenProvider{
		repo:        repo,
		oauthConfig: oauthConfig,
		cache:       expirable.NewLRU[string, *oauth2.Token](defaultTokenCacheSize, nil, cacheTTL),
		logger:      logger.With("component", "token_provider"),
	}
}

// AccessToken returns a valid access token or an error wrapping ErrNotAuthorized
// when the user has no grant, or the grant was revoked.
func (p *TokenProvider) AccessToken(ctx context.Context, userID string) (string, error) {
	if tok, ok := p.cache.Get(userID); ok && tok.Valid() {
		return tok.AccessToken, nil
	}

	stored, err := p.repo.FindByUserID(userID)
	if err != nil {
		return "", fmt.Errorf("failed to load token for user %s: %w", userID, err)
	}
	if stored == nil || (stored.AccessToken == "" && stored.RefreshToken == "") {
		return "", fmt.Errorf("no token for user %s: %w", userID, authdomain.ErrNotAuthorized)
	}

	token := stored.OAuth2Token()
	if token.Valid() {
		p.cache.Add(userID, token)
		return token.AccessToken, nil
	}
	if token.RefreshToken == "" {
		return "", fmt.Errorf("token expired for user %s: %w", userID, authdomain.ErrNotAuthorized)
	}

	src := &notifyTokenSource{
		src:     p.oauthConfig.TokenSource(ctx, token),
		current: token,
		callback: func(t *oauth2.Token) error {
			return p.repo.SaveToken(userID, t)
		},
		logger: p.logger,
	}

	fresh, err := src.Token()
	if err != nil {
		return "", classifyRefreshError(userID, err)
	}

	p.logger.Debug("refreshed access token", "user_id", userID)
	p.cache.Add(userID, fresh)
	return fresh.AccessToken, nil
}

// Invalidate drops a cached token, e.g. after the content service rejected it
func (p *TokenProvider) Invalidate(userID string) {
	p.cache.Remove(userID)
}

func classifyRefreshError(userID string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if retrieveErr.Response != nil && (retrieveErr.Response.StatusCode >= http.StatusInternalServerError || retrieveErr.Response.StatusCode == http.StatusTooManyRequests) {
			return syncdomain.TransientError(fmt.Errorf("failed to refresh token for user %s: %w", userID, err))
		}
		// invalid_grant and friends: the user must consent again
		return fmt.Errorf("failed to refresh token for user %s: %v: %w", userID, err, authdomain.ErrNotAuthorized)
	}
	return syncdomain.TransientError(fmt.Errorf("failed to refresh token for user %s: %w", userID, err))
}
