package catalyst

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/agencydesk/catalyst-etl/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type tokenServer struct {
	*httptest.Server
	requests int
	lastForm url.Values
	respond  func(w http.ResponseWriter)
}

func newTokenServer(t *testing.T) *tokenServer {
	t.Helper()
	ts := &tokenServer{}
	ts.respond = func(w http.ResponseWriter) {
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "token-1",
			"expires_in":   3600,
		})
	}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.requests++
		if err := r.ParseForm(); err != nil {
			t.Errorf("failed to parse form: %v", err)
		}
		ts.lastForm = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		ts.respond(w)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func newTestTokenManager(ts *tokenServer) *TokenManager {
	return NewTokenManager(config.CatalystConfig{
		TokenURL:     ts.URL,
		ClientID:     "client",
		ClientSecret: "secret",
		Username:     "user@example.com",
		Password:     "password",
		HTTPTimeout:  5 * time.Second,
	}, testLogger())
}

func TestEnsureValidTokenSendsPasswordGrant(t *testing.T) {
	ts := newTokenServer(t)
	m := newTestTokenManager(ts)

	token, err := m.EnsureValidToken(context.Background())
	if err != nil {
		t.Fatalf("EnsureValidToken returned error: %v", err)
	}
	if token != "token-1" {
		t.Errorf("expected token-1, got %q", token)
	}

	form := ts.lastForm
	expected := map[string]string{
		"grant_type":    "password",
		"client_id":     "client",
		"client_secret": "secret",
		"username":      "user@example.com",
		"password":      "password",
		"scope":         "read write",
	}
	for key, want := range expected {
		if got := form.Get(key); got != want {
			t.Errorf("form field %s = %q, want %q", key, got, want)
		}
	}
}

func TestEnsureValidTokenCachesUntilMargin(t *testing.T) {
	ts := newTokenServer(t)
	m := newTestTokenManager(ts)

	now := time.Now()
	m.now = func() time.Time { return now }

	if _, err := m.EnsureValidToken(context.Background()); err != nil {
		t.Fatalf("first call returned error: %v", err)
	}
	if ts.requests != 1 {
		t.Fatalf("expected 1 token request, got %d", ts.requests)
	}

	// Well inside the expiry margin: no new request
	now = now.Add(54 * time.Minute)
	if _, err := m.EnsureValidToken(context.Background()); err != nil {
		t.Fatalf("second call returned error: %v", err)
	}
	if ts.requests != 1 {
		t.Errorf("expected cached token, got %d requests", ts.requests)
	}

	// Inside the final five minutes: token treated as expired
	now = now.Add(2 * time.Minute)
	if _, err := m.EnsureValidToken(context.Background()); err != nil {
		t.Fatalf("third call returned error: %v", err)
	}
	if ts.requests != 2 {
		t.Errorf("expected refresh within expiry margin, got %d requests", ts.requests)
	}
}

func TestForceRefreshAlwaysFetches(t *testing.T) {
	ts := newTokenServer(t)
	m := newTestTokenManager(ts)

	if _, err := m.EnsureValidToken(context.Background()); err != nil {
		t.Fatalf("EnsureValidToken returned error: %v", err)
	}
	if _, err := m.ForceRefresh(context.Background()); err != nil {
		t.Fatalf("ForceRefresh returned error: %v", err)
	}
	if ts.requests != 2 {
		t.Errorf("expected 2 token requests, got %d", ts.requests)
	}
}

func TestEnsureValidTokenRejectedCredentials(t *testing.T) {
	ts := newTokenServer(t)
	ts.respond = func(w http.ResponseWriter) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant"}`))
	}
	m := newTestTokenManager(ts)

	_, err := m.EnsureValidToken(context.Background())
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !IsAuthError(err) {
		t.Errorf("expected AuthError, got %T: %v", err, err)
	}
}

func TestEnsureValidTokenMissingAccessToken(t *testing.T) {
	ts := newTokenServer(t)
	ts.respond = func(w http.ResponseWriter) {
		w.Write([]byte(`{"expires_in": 3600}`))
	}
	m := newTestTokenManager(ts)

	_, err := m.EnsureValidToken(context.Background())
	if !IsAuthError(err) {
		t.Errorf("expected AuthError, got %T: %v", err, err)
	}
}

func TestResolveExpiryFromJWTClaim(t *testing.T) {
	exp := time.Now().Add(42 * time.Minute).Truncate(time.Second)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": exp.Unix(),
	}).SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}

	ts := newTokenServer(t)
	ts.respond = func(w http.ResponseWriter) {
		json.NewEncoder(w).Encode(map[string]any{"access_token": signed})
	}
	m := newTestTokenManager(ts)

	if _, err := m.EnsureValidToken(context.Background()); err != nil {
		t.Fatalf("EnsureValidToken returned error: %v", err)
	}
	if !m.expiresAt.Equal(exp) {
		t.Errorf("expected expiry %v from exp claim, got %v", exp, m.expiresAt)
	}
}

func TestResolveExpiryDefaultsWithoutClaim(t *testing.T) {
	ts := newTokenServer(t)
	ts.respond = func(w http.ResponseWriter) {
		json.NewEncoder(w).Encode(map[string]any{"access_token": "opaque-token"})
	}
	m := newTestTokenManager(ts)

	now := time.Now()
	m.now = func() time.Time { return now }

	if _, err := m.EnsureValidToken(context.Background()); err != nil {
		t.Fatalf("EnsureValidToken returned error: %v", err)
	}
	if !m.expiresAt.Equal(now.Add(defaultTokenLifetime)) {
		t.Errorf("expected default lifetime expiry, got %v", m.expiresAt)
	}
}

func TestOnRefreshCallback(t *testing.T) {
	ts := newTokenServer(t)
	m := newTestTokenManager(ts)

	refreshes := 0
	m.OnRefresh(func() { refreshes++ })

	if _, err := m.EnsureValidToken(context.Background()); err != nil {
		t.Fatalf("EnsureValidToken returned error: %v", err)
	}
	if _, err := m.ForceRefresh(context.Background()); err != nil {
		t.Fatalf("ForceRefresh returned error: %v", err)
	}
	if refreshes != 2 {
		t.Errorf("expected 2 refresh callbacks, got %d", refreshes)
	}
}
