package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

// MockHelixServer is a fake Twitch API serving /helix/users and /oauth2/token.
type MockHelixServer struct {
	*httptest.Server

	mu    sync.Mutex
	users []map[string]string

	// TokenRequests counts client-credentials exchanges.
	TokenRequests atomic.Int32
	// UserRequests counts /helix/users calls.
	UserRequests atomic.Int32
}

// NewMockHelixServer starts a mock Twitch API that is closed with the test.
func NewMockHelixServer(t *testing.T) *MockHelixServer {
	t.Helper()
	m := &MockHelixServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/helix/users", m.handleUsers)
	mux.HandleFunc("/oauth2/token", m.handleToken)
	m.Server = httptest.NewServer(mux)
	t.Cleanup(m.Close)
	return m
}

// AddUser registers a user answered by login or id lookups.
func (m *MockHelixServer) AddUser(id, login string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = append(m.users, map[string]string{"id": id, "login": login, "display_name": login})
}

// HelixURL is the base URL to use as the Helix client's BaseURL.
func (m *MockHelixServer) HelixURL() string { return m.URL + "/helix" }

// TokenURL is the client-credentials endpoint.
func (m *MockHelixServer) TokenURL() string { return m.URL + "/oauth2/token" }

func (m *MockHelixServer) handleUsers(w http.ResponseWriter, r *http.Request) {
	m.UserRequests.Add(1)
	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") || r.Header.Get("Client-Id") == "" {
		http.Error(w, `{"error":"Unauthorized","status":401}`, http.StatusUnauthorized)
		return
	}
	q := r.URL.Query()
	data := []map[string]string{}
	m.mu.Lock()
	for _, u := range m.users {
		if (q.Get("login") != "" && strings.EqualFold(u["login"], q.Get("login"))) || (q.Get("id") != "" && u["id"] == q.Get("id")) {
			data = append(data, u)
		}
	}
	m.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"data": data}) //nolint:errcheck // test mock response
}

func (m *MockHelixServer) handleToken(w http.ResponseWriter, r *http.Request) {
	m.TokenRequests.Add(1)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck // test mock response
		"access_token": "mock-app-token",
		"expires_in":   3600,
		"token_type":   "bearer",
	})
}
