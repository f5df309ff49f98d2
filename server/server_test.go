package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/onnwee/ttvlog/chat"
	"github.com/onnwee/ttvlog/store"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

type fakeBot struct{ status chat.Status }

func (f fakeBot) Status() chat.Status { return f.status }

type fakeLister struct {
	records []store.ChannelRecord
	err     error
}

func (f fakeLister) ListAll(context.Context) ([]store.ChannelRecord, error) { return f.records, f.err }

func migrated(context.Context, *sql.DB) (uint, bool, error) { return 1, false, nil }

func newTestHandlers(t *testing.T) *Handlers {
	t.Helper()
	h := NewHandlers(newTestDB(t), fakeBot{status: chat.Status{
		StartedAt:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Uptime:         "1m30s",
		MessagesLogged: 12345,
		JoinedChannels: []string{"home", "other"},
	}}, fakeLister{records: []store.ChannelRecord{
		{ChannelID: "100", Name: "home", Available: true},
		{ChannelID: "200", Name: "gone", Available: false},
	}})
	h.schemaVersion = migrated
	return h
}

func serve(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealthzOK(t *testing.T) {
	t.Setenv("ADMIN_TOKEN", "")
	h := NewMux(context.Background(), newTestHandlers(t))

	rr := serve(t, h, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body=%s", rr.Code, rr.Body.String())
	}
	if got := rr.Body.String(); got != "ok" {
		t.Fatalf("expected ok body, got %q", got)
	}
	if rr.Header().Get("X-Correlation-ID") == "" {
		t.Error("expected generated X-Correlation-ID")
	}
}

func TestHealthzDatabaseClosed(t *testing.T) {
	handlers := newTestHandlers(t)
	_ = handlers.db.Close()

	rr := serve(t, NewMux(context.Background(), handlers), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestCorrelationIDIsEchoed(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Correlation-ID", "abc-123")

	rr := serve(t, NewMux(context.Background(), newTestHandlers(t)), req)

	if got := rr.Header().Get("X-Correlation-ID"); got != "abc-123" {
		t.Errorf("X-Correlation-ID = %q, want abc-123", got)
	}
}

func TestReadyz(t *testing.T) {
	tests := []struct {
		name       string
		schema     func(context.Context, *sql.DB) (uint, bool, error)
		joined     []string
		wantStatus int
		wantFailed string
	}{
		{name: "ready", schema: migrated, joined: []string{"home"}, wantStatus: http.StatusOK},
		{
			name:       "dirty schema",
			schema:     func(context.Context, *sql.DB) (uint, bool, error) { return 1, true, nil },
			joined:     []string{"home"},
			wantStatus: http.StatusServiceUnavailable,
			wantFailed: "schema",
		},
		{
			name:       "no migrations",
			schema:     func(context.Context, *sql.DB) (uint, bool, error) { return 0, false, nil },
			joined:     []string{"home"},
			wantStatus: http.StatusServiceUnavailable,
			wantFailed: "schema",
		},
		{
			name:       "schema error",
			schema:     func(context.Context, *sql.DB) (uint, bool, error) { return 0, false, errors.New("boom") },
			joined:     []string{"home"},
			wantStatus: http.StatusServiceUnavailable,
			wantFailed: "schema",
		},
		{name: "no channels", schema: migrated, wantStatus: http.StatusServiceUnavailable, wantFailed: "chat"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandlers(newTestDB(t), fakeBot{status: chat.Status{JoinedChannels: tt.joined}}, fakeLister{})
			h.schemaVersion = tt.schema

			rr := serve(t, NewMux(context.Background(), h), httptest.NewRequest(http.MethodGet, "/readyz", nil))

			if rr.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d, body=%s", tt.wantStatus, rr.Code, rr.Body.String())
			}
			var resp map[string]string
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp["failed_check"] != tt.wantFailed {
				t.Errorf("failed_check = %q, want %q", resp["failed_check"], tt.wantFailed)
			}
		})
	}
}

func TestReadyzBoundsSchemaCheck(t *testing.T) {
	h := NewHandlers(newTestDB(t), fakeBot{status: chat.Status{JoinedChannels: []string{"home"}}}, fakeLister{})
	var hasDeadline bool
	h.schemaVersion = func(ctx context.Context, _ *sql.DB) (uint, bool, error) {
		_, hasDeadline = ctx.Deadline()
		return 1, false, nil
	}

	rr := serve(t, NewMux(context.Background(), h), httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body=%s", rr.Code, rr.Body.String())
	}
	if !hasDeadline {
		t.Error("schema check ran without a deadline")
	}
}

func TestStatus(t *testing.T) {
	rr := serve(t, NewMux(context.Background(), newTestHandlers(t)), httptest.NewRequest(http.MethodGet, "/status", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp struct {
		Uptime         string   `json:"uptime"`
		MessagesLogged int64    `json:"messages_logged"`
		Display        string   `json:"messages_logged_display"`
		JoinedChannels []string `json:"joined_channels"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Uptime != "1m30s" || resp.MessagesLogged != 12345 || resp.Display != "12,345" || len(resp.JoinedChannels) != 2 {
		t.Errorf("unexpected status %+v", resp)
	}
}

func TestStatusRejectsPost(t *testing.T) {
	rr := serve(t, NewMux(context.Background(), newTestHandlers(t)), httptest.NewRequest(http.MethodPost, "/status", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rr.Code)
	}
}

func TestChannels(t *testing.T) {
	t.Setenv("ADMIN_TOKEN", "secret-token")
	t.Setenv("RATE_LIMIT_ENABLED", "0")

	tests := []struct {
		name       string
		query      string
		token      string
		wantStatus int
		wantCount  int
	}{
		{name: "unauthorized", query: "", wantStatus: http.StatusUnauthorized},
		{name: "all", query: "", token: "secret-token", wantStatus: http.StatusOK, wantCount: 2},
		{name: "available only", query: "?available=true", token: "secret-token", wantStatus: http.StatusOK, wantCount: 1},
		{name: "left only", query: "?available=false", token: "secret-token", wantStatus: http.StatusOK, wantCount: 1},
		{name: "bad filter", query: "?available=maybe", token: "secret-token", wantStatus: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/channels"+tt.query, nil)
			if tt.token != "" {
				req.Header.Set("X-Admin-Token", tt.token)
			}
			rr := serve(t, NewMux(context.Background(), newTestHandlers(t)), req)

			if rr.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d, body=%s", tt.wantStatus, rr.Code, rr.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			var resp struct {
				Channels []store.ChannelRecord `json:"channels"`
				Count    int                   `json:"count"`
			}
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp.Count != tt.wantCount || len(resp.Channels) != tt.wantCount {
				t.Errorf("count = %d (%d channels), want %d", resp.Count, len(resp.Channels), tt.wantCount)
			}
		})
	}
}

func TestChannelsListFailure(t *testing.T) {
	t.Setenv("ADMIN_TOKEN", "")
	h := newTestHandlers(t)
	h.channels = fakeLister{err: errors.New("connection refused")}

	rr := serve(t, NewMux(context.Background(), h), httptest.NewRequest(http.MethodGet, "/channels", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rr.Code)
	}
}

func TestStartAndShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- Start(ctx, newTestHandlers(t), "127.0.0.1:0") }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("server returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
