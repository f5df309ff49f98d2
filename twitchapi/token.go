package twitchapi

import (
	"context"
	"errors"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const tokenURL = "https://id.twitch.tv/oauth2/token"

// NewAppTokenSource returns the token source for Helix calls.
// A static bearer token wins when set; otherwise an app access token is fetched with the
// client-credentials grant and cached until shortly before expiry.
// NOTE: this token CANNOT be used for IRC chat; chat requires the bot user's OAuth token.
func NewAppTokenSource(ctx context.Context, clientID, clientSecret, bearer string) (oauth2.TokenSource, error) {
	return newAppTokenSource(ctx, clientID, clientSecret, bearer, tokenURL)
}

func newAppTokenSource(ctx context.Context, clientID, clientSecret, bearer, endpoint string) (oauth2.TokenSource, error) {
	if bearer != "" {
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: bearer, TokenType: "Bearer"}), nil
	}
	if clientID == "" || clientSecret == "" {
		return nil, errors.New("missing client id/secret for twitch app token")
	}
	cc := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     endpoint,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	return cc.TokenSource(ctx), nil
}
