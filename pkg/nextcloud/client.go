// Package nextcloud lists and fetches documents from a Nextcloud instance on behalf of a user.
package nextcloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	syncdomain "vectorsync-backend/internal/sync/domain"

	"golang.org/x/oauth2"
)

const (
	defaultTimeout = 30 * time.Second
	maxErrorBody   = 512
)

// Client is a thin JSON client for the Nextcloud app APIs
type Client struct {
	baseURL   string
	transport http.RoundTripper
	timeout   time.Duration
	logger    *slog.Logger
}

// NewClient creates a client for baseURL. transport may be nil.
func NewClient(baseURL string, timeout time.Duration, transport http.RoundTripper, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if transport == nil {
		transport = http.DefaultTransport
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		transport: transport,
		timeout:   timeout,
		logger:    logger.With("component", "nextcloud"),
	}
}

// httpClient returns a client that sends accessToken as a bearer token
func (c *Client) httpClient(accessToken string) *http.Client {
	return &http.Client{
		Timeout: c.timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}),
			Base:   c.transport,
		},
	}
}

// getJSON performs a GET on an API path and decodes the JSON body into out
func (c *Client) getJSON(ctx context.Context, accessToken, path string, query url.Values, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("OCS-APIRequest", "true")

	resp, err := c.httpClient(accessToken).Do(req)
	if err != nil {
		return requestError(ctx, path, err)
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		c.logger.Debug("request failed", "path", path, "status", resp.StatusCode)
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode %s: %v", syncdomain.ErrPermanent, path, err)
	}
	return nil
}

// statusError maps a non-2xx response onto the engine's error taxonomy
func statusError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := fmt.Sprintf("nextcloud returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", syncdomain.ErrNotAuthorized, msg)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", syncdomain.ErrNotFound, msg)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return syncdomain.TransientError(errors.New(msg))
	default:
		return fmt.Errorf("%w: %s", syncdomain.ErrPermanent, msg)
	}
}

func requestError(ctx context.Context, path string, err error) error {
	wrapped := fmt.Errorf("failed to request %s: %w", path, err)
	if ctx.Err() != nil {
		return wrapped
	}
	var netErr net.Error
	var opErr *net.OpError
	if errors.As(err, &netErr) || errors.As(err, &opErr) {
		return syncdomain.TransientError(wrapped)
	}
	return wrapped
}
