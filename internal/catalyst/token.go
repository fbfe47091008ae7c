package catalyst

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/agencydesk/catalyst-etl/internal/config"
)

// expiryMargin is the safety window before the tracked expiry at which a
// token is already treated as expired.
const expiryMargin = 5 * time.Minute

// defaultTokenLifetime applies when the token endpoint reports no expiry and
// the bearer token carries no exp claim.
const defaultTokenLifetime = 1 * time.Hour

// TokenManager owns the OAuth access token for the Catalyst API. Tokens are
// replaced, never mutated; callers get a bearer string valid for at least the
// expiry margin.
type TokenManager struct {
	cfg        config.CatalystConfig
	httpClient *http.Client
	logger     *slog.Logger

	mu        sync.Mutex
	token     string
	expiresAt time.Time

	now       func() time.Time
	onRefresh func()
}

// NewTokenManager creates a token manager for the given credentials. No
// network call is made until a token is first requested.
func NewTokenManager(cfg config.CatalystConfig, logger *slog.Logger) *TokenManager {
	return &TokenManager{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
		logger: logger,
		now:    time.Now,
	}
}

// OnRefresh registers a callback invoked after every successful token
// refresh. Used to feed the refresh counter.
func (m *TokenManager) OnRefresh(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onRefresh = fn
}

// EnsureValidToken returns a bearer token guaranteed unexpired for at least
// the expiry margin, refreshing synchronously when needed.
func (m *TokenManager) EnsureValidToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token != "" && m.now().Before(m.expiresAt.Add(-expiryMargin)) {
		return m.token, nil
	}

	if err := m.refreshLocked(ctx); err != nil {
		return "", err
	}
	return m.token, nil
}

// ForceRefresh unconditionally fetches a new token. Used after a 401, which
// means the held token was rejected regardless of the locally tracked expiry.
func (m *TokenManager) ForceRefresh(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.refreshLocked(ctx); err != nil {
		return "", err
	}
	return m.token, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// refreshLocked performs the password-grant flow. Callers must hold m.mu.
func (m *TokenManager) refreshLocked(ctx context.Context) error {
	form := url.Values{
		"grant_type":    {"password"},
		"client_id":     {m.cfg.ClientID},
		"client_secret": {m.cfg.ClientSecret},
		"username":      {m.cfg.Username},
		"password":      {m.cfg.Password},
		"scope":         {"read write"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.TokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return &AuthError{Err: fmt.Errorf("create token request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return &AuthError{Err: fmt.Errorf("token endpoint unreachable: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &AuthError{Err: fmt.Errorf("read token response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return &AuthError{Err: fmt.Errorf("token endpoint returned status %d", resp.StatusCode)}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return &AuthError{Err: fmt.Errorf("parse token response: %w", err)}
	}
	if tr.AccessToken == "" {
		return &AuthError{Err: fmt.Errorf("token response missing access_token")}
	}

	m.token = tr.AccessToken
	m.expiresAt = m.resolveExpiry(tr)

	m.logger.Info("oauth token refreshed", "expires_at", m.expiresAt.Format(time.RFC3339))
	if m.onRefresh != nil {
		m.onRefresh()
	}
	return nil
}

// resolveExpiry prefers the endpoint's expires_in; when absent it falls back
// to the bearer token's own exp claim, then to a fixed default lifetime.
func (m *TokenManager) resolveExpiry(tr tokenResponse) time.Time {
	if tr.ExpiresIn > 0 {
		return m.now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}

	// Some tenants omit expires_in; the token itself is a JWT whose exp
	// claim we can read without verifying the signature.
	parser := jwt.NewParser()
	if parsed, _, err := parser.ParseUnverified(tr.AccessToken, jwt.MapClaims{}); err == nil {
		if exp, err := parsed.Claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}

	return m.now().Add(defaultTokenLifetime)
}
