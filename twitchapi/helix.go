// Package twitchapi contains the minimal Twitch Helix client the bot needs:
// resolving users by login or by id with an app access token.
package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/onnwee/ttvlog/telemetry"
)

// ErrUserNotFound is returned when Helix answers with an empty user list.
var ErrUserNotFound = errors.New("user not found")

const defaultBaseURL = "https://api.twitch.tv/helix"

// User is the subset of a Helix user record the bot uses.
type User struct {
	ID          string `json:"id"`
	Login       string `json:"login"`
	DisplayName string `json:"display_name"`
}

// HelixClient resolves Twitch users. Calls are paced by Limiter when set.
type HelixClient struct {
	ClientID    string
	TokenSource oauth2.TokenSource
	HTTPClient  *http.Client
	Limiter     *rate.Limiter
	// Timeout bounds a single lookup; zero means no extra bound beyond ctx.
	Timeout time.Duration
	BaseURL string
}

func (hc *HelixClient) http() *http.Client {
	if hc.HTTPClient != nil {
		return hc.HTTPClient
	}
	return http.DefaultClient
}

func (hc *HelixClient) baseURL() string {
	if hc.BaseURL != "" {
		return hc.BaseURL
	}
	return defaultBaseURL
}

// UserByLogin resolves a login name to its user record.
func (hc *HelixClient) UserByLogin(ctx context.Context, login string) (*User, error) {
	if login == "" {
		return nil, fmt.Errorf("login empty")
	}
	return hc.getUser(ctx, "login", login)
}

// UserByID resolves a user id to its user record.
func (hc *HelixClient) UserByID(ctx context.Context, id string) (*User, error) {
	if id == "" {
		return nil, fmt.Errorf("id empty")
	}
	return hc.getUser(ctx, "id", id)
}

func lookupResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUserNotFound):
		return "not_found"
	default:
		return "error"
	}
}

func (hc *HelixClient) getUser(ctx context.Context, key, value string) (u *User, err error) {
	ctx, span := telemetry.StartSpan(ctx, "twitchapi", "helix.users", attribute.String("helix.query", key))
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()
	if hc.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, hc.Timeout)
		defer cancel()
	}
	defer func() { telemetry.IncHelixLookup(lookupResult(err)) }()

	if hc.Limiter != nil {
		if err := hc.Limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("helix rate limiter: %w", err)
		}
	}
	if hc.TokenSource == nil {
		return nil, errors.New("helix client has no token source")
	}
	tok, err := hc.TokenSource.Token()
	if err != nil {
		return nil, fmt.Errorf("helix app token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, hc.baseURL()+"/users", nil)
	if err != nil {
		return nil, err
	}
	q := req.URL.Query()
	q.Set(key, value)
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Client-Id", hc.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)

	resp, err := hc.http().Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("helix users request failed: %s: %s", resp.Status, string(b))
	}

	var body struct {
		Data []User `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode helix users: %w", err)
	}
	if len(body.Data) == 0 || body.Data[0].ID == "" {
		return nil, ErrUserNotFound
	}
	return &body.Data[0], nil
}
