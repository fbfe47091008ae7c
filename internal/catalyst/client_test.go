package catalyst

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/agencydesk/catalyst-etl/internal/config"
)

// apiServer hosts a fake token endpoint plus a configurable resource handler.
type apiServer struct {
	*httptest.Server
	mux           *http.ServeMux
	tokenRequests int
	issuedToken   string
}

func newAPIServer(t *testing.T) *apiServer {
	t.Helper()
	as := &apiServer{mux: http.NewServeMux(), issuedToken: "token-1"}
	as.mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		as.tokenRequests++
		as.issuedToken = fmt.Sprintf("token-%d", as.tokenRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": as.issuedToken,
			"expires_in":   3600,
		})
	})
	as.Server = httptest.NewServer(as.mux)
	t.Cleanup(as.Close)
	return as
}

func (as *apiServer) newClient(t *testing.T) *Client {
	t.Helper()
	cfg := config.CatalystConfig{
		BaseURL:      as.URL,
		TokenURL:     as.URL + "/oauth/token",
		ClientID:     "client",
		ClientSecret: "secret",
		Username:     "user@example.com",
		Password:     "password",
		HTTPTimeout:  5 * time.Second,
	}
	tokens := NewTokenManager(cfg, testLogger())
	client := NewClient(cfg, tokens, testLogger())
	client.retry = RetryPolicy{
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		BackoffFactor:  2.0,
	}
	return client
}

func pageBody(total, pageNumber, pagesTotal int, ids ...string) string {
	items := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		items = append(items, map[string]any{"EntityID": id})
	}
	body, _ := json.Marshal(map[string]any{
		"Data":       items,
		"PageNumber": pageNumber,
		"PagesTotal": pagesTotal,
		"TotalItems": total,
	})
	return string(body)
}

func TestFetchPageDateScopedDialect(t *testing.T) {
	as := newAPIServer(t)

	var query url.Values
	as.mux.HandleFunc("/Contacts/LastModifiedCreated", func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		w.Write([]byte(`[]`))
	})

	client := as.newClient(t)
	fixedNow := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	client.now = func() time.Time { return fixedNow }

	window := Window{Start: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)}
	if _, err := client.FetchPage(context.Background(), "Contacts/LastModifiedCreated", window, 1, 100); err != nil {
		t.Fatalf("FetchPage returned error: %v", err)
	}

	if got := query.Get("startDate"); got != "2026-08-01T00:00:00" {
		t.Errorf("startDate = %q", got)
	}
	if got := query.Get("endDate"); got != "2026-08-25T12:00:00" {
		t.Errorf("endDate = %q, want request-time now", got)
	}
	if query.Get("lastModifiedStart") != "" {
		t.Error("date-scoped path must not use lastModifiedStart")
	}
	if query.Get("pageNumber") != "1" || query.Get("pageSize") != "100" {
		t.Errorf("pagination params missing: %v", query)
	}
}

func TestFetchPageDateScopedOmitsUnboundedStart(t *testing.T) {
	as := newAPIServer(t)

	var query url.Values
	as.mux.HandleFunc("/Contacts/LastModifiedCreated", func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		w.Write([]byte(`[]`))
	})

	client := as.newClient(t)
	window := Window{End: time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)}
	if _, err := client.FetchPage(context.Background(), "Contacts/LastModifiedCreated", window, 1, 100); err != nil {
		t.Fatalf("FetchPage returned error: %v", err)
	}

	if _, present := query["startDate"]; present {
		t.Errorf("unbounded start must not emit startDate, got %q", query.Get("startDate"))
	}
	if got := query.Get("endDate"); got != "2026-08-20T00:00:00" {
		t.Errorf("endDate = %q", got)
	}
}

func TestFetchPageLastModifiedDialect(t *testing.T) {
	as := newAPIServer(t)

	var query url.Values
	as.mux.HandleFunc("/Claims", func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		w.Write([]byte(`[]`))
	})

	client := as.newClient(t)
	window := Window{
		Start: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC),
	}
	if _, err := client.FetchPage(context.Background(), "Claims", window, 3, 50); err != nil {
		t.Fatalf("FetchPage returned error: %v", err)
	}

	if got := query.Get("lastModifiedStart"); got != "2026-08-01T00:00:00" {
		t.Errorf("lastModifiedStart = %q", got)
	}
	if got := query.Get("lastModifiedEnd"); got != "2026-08-20T00:00:00" {
		t.Errorf("lastModifiedEnd = %q", got)
	}
	if query.Get("startDate") != "" {
		t.Error("plain path must not use startDate")
	}
	if query.Get("pageNumber") != "3" || query.Get("pageSize") != "50" {
		t.Errorf("pagination params missing: %v", query)
	}
}

func TestPagesWalksUntilMetadataLast(t *testing.T) {
	as := newAPIServer(t)

	as.mux.HandleFunc("/Contacts/LastModifiedCreated", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("pageNumber") {
		case "1":
			w.Write([]byte(pageBody(3, 1, 2, "1", "2")))
		case "2":
			w.Write([]byte(pageBody(3, 2, 2, "3")))
		default:
			t.Errorf("unexpected page request: %s", r.URL.RawQuery)
			w.Write([]byte(`[]`))
		}
	})

	client := as.newClient(t)
	it := client.Pages(context.Background(), "Contacts/LastModifiedCreated", Window{}, 2)

	var ids []string
	for it.Next() {
		for _, item := range it.Page().Items {
			ids = append(ids, item["EntityID"].(string))
		}
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iteration failed: %v", err)
	}
	if len(ids) != 3 {
		t.Errorf("expected 3 items across pages, got %v", ids)
	}
}

func TestPagesStopsOnEmptyPage(t *testing.T) {
	as := newAPIServer(t)

	requests := 0
	as.mux.HandleFunc("/Employees", func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests == 1 {
			w.Write([]byte(`[{"EntityID": "1"}]`))
			return
		}
		w.Write([]byte(`[]`))
	})

	client := as.newClient(t)
	it := client.Pages(context.Background(), "Employees", Window{}, 100)

	pages := 0
	for it.Next() {
		pages++
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iteration failed: %v", err)
	}
	if pages != 1 {
		t.Errorf("expected 1 non-empty page, got %d", pages)
	}
	if requests != 2 {
		t.Errorf("expected termination after the empty page, got %d requests", requests)
	}
}

func TestFetchPageRetriesServerErrors(t *testing.T) {
	as := newAPIServer(t)

	attempts := 0
	as.mux.HandleFunc("/Claims", func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`[{"EntityID": "1"}]`))
	})

	client := as.newClient(t)
	page, err := client.FetchPage(context.Background(), "Claims", Window{}, 1, 100)
	if err != nil {
		t.Fatalf("expected recovery after retries, got: %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
	if len(page.Items) != 1 {
		t.Errorf("expected 1 item, got %d", len(page.Items))
	}
}

func TestFetchPageRateLimitRetried(t *testing.T) {
	as := newAPIServer(t)

	attempts := 0
	as.mux.HandleFunc("/Claims", func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`[]`))
	})

	client := as.newClient(t)
	if _, err := client.FetchPage(context.Background(), "Claims", Window{}, 1, 100); err != nil {
		t.Fatalf("expected recovery after rate limit, got: %v", err)
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
}

func TestFetchPageClientErrorFatal(t *testing.T) {
	as := newAPIServer(t)

	attempts := 0
	as.mux.HandleFunc("/Nowhere", func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
	})

	client := as.newClient(t)
	_, err := client.FetchPage(context.Background(), "Nowhere", Window{}, 1, 100)
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.Path != "Nowhere" {
		t.Errorf("unexpected APIError: %+v", apiErr)
	}
	if attempts != 1 {
		t.Errorf("client errors must not be retried, got %d attempts", attempts)
	}
}

func TestFetchPageRefreshesTokenOn401(t *testing.T) {
	as := newAPIServer(t)

	var seenTokens []string
	as.mux.HandleFunc("/Claims", func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("Authorization")
		seenTokens = append(seenTokens, token)
		if token != "Bearer "+as.issuedToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if len(seenTokens) == 1 {
			// Simulate server-side invalidation of the first token
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`[{"EntityID": "1"}]`))
	})

	client := as.newClient(t)
	page, err := client.FetchPage(context.Background(), "Claims", Window{}, 1, 100)
	if err != nil {
		t.Fatalf("expected recovery after token refresh, got: %v", err)
	}
	if len(page.Items) != 1 {
		t.Errorf("expected 1 item, got %d", len(page.Items))
	}
	if as.tokenRequests != 2 {
		t.Errorf("expected exactly one forced refresh after the initial fetch, got %d token requests", as.tokenRequests)
	}
}

func TestFetchPagePersistent401Fatal(t *testing.T) {
	as := newAPIServer(t)

	resourceRequests := 0
	as.mux.HandleFunc("/Claims", func(w http.ResponseWriter, r *http.Request) {
		resourceRequests++
		w.WriteHeader(http.StatusUnauthorized)
	})

	client := as.newClient(t)
	_, err := client.FetchPage(context.Background(), "Claims", Window{}, 1, 100)
	if !IsAuthError(err) {
		t.Fatalf("expected AuthError, got %T: %v", err, err)
	}
	if resourceRequests != 2 {
		t.Errorf("expected exactly one retry after refresh, got %d requests", resourceRequests)
	}
}
