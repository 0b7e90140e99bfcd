package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"

	"instasend/mailer/internal/config"
)

const googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

// GoogleUser is the subset of the OpenID userinfo response we keep.
type GoogleUser struct {
	Sub     string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// IGoogleOAuth is the sign-in flow used by the auth handler.
type IGoogleOAuth interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	FetchUser(ctx context.Context, tok *oauth2.Token) (*GoogleUser, error)
	TokenSource(ctx context.Context, tok *oauth2.Token) oauth2.TokenSource
}

// GoogleOAuth signs users in with Google and requests permission to send mail
// from their Gmail account.
type GoogleOAuth struct {
	oauthCfg    *oauth2.Config
	userInfoURL string
}

// NewGoogleOAuth builds the OAuth client from configuration.
func NewGoogleOAuth(cfg *config.Config) *GoogleOAuth {
	return NewGoogleOAuthWithEndpoints(cfg, google.Endpoint, googleUserInfoURL)
}

// NewGoogleOAuthWithEndpoints is NewGoogleOAuth against non-default endpoints.
func NewGoogleOAuthWithEndpoints(cfg *config.Config, endpoint oauth2.Endpoint, userInfoURL string) *GoogleOAuth {
	return &GoogleOAuth{
		oauthCfg: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
			Scopes:       []string{"openid", "email", "profile", gmail.GmailSendScope},
			Endpoint:     endpoint,
		},
		userInfoURL: userInfoURL,
	}
}

// AuthCodeURL returns the consent page URL. Offline access and a forced
// consent prompt make Google return a refresh token on every sign-in.
func (g *GoogleOAuth) AuthCodeURL(state string) string {
	return g.oauthCfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
}

// Exchange trades an authorization code for tokens.
func (g *GoogleOAuth) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := g.oauthCfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}
	return tok, nil
}

// FetchUser loads the profile of the account tok belongs to.
func (g *GoogleOAuth) FetchUser(ctx context.Context, tok *oauth2.Token) (*GoogleUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build userinfo request: %w", err)
	}
	resp, err := g.oauthCfg.Client(ctx, tok).Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo returned status %d", resp.StatusCode)
	}

	var user GoogleUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("failed to decode userinfo: %w", err)
	}
	if user.Email == "" {
		return nil, fmt.Errorf("userinfo has no email")
	}
	return &user, nil
}

// TokenSource returns a source that refreshes tok when it expires.
func (g *GoogleOAuth) TokenSource(ctx context.Context, tok *oauth2.Token) oauth2.TokenSource {
	return g.oauthCfg.TokenSource(ctx, tok)
}
