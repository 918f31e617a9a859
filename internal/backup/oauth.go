package backup

import (
	"context"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"github.com/starford/bitacora/internal/apperr"
)

// Google OAuth endpoints used when the config leaves them empty.
const (
	GoogleAuthURL  = "https://accounts.google.com/o/oauth2/auth"
	GoogleTokenURL = "https://oauth2.googleapis.com/token"
)

// OAuthConfig describes the OAuth client used for backups.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	RedirectURL  string
	Scopes       []string
}

// Credentials exchanges authorization codes and refresh tokens for
// access tokens.
type Credentials struct {
	conf   oauth2.Config
	client *http.Client
}

// NewCredentials builds Credentials from cfg. client may be nil.
func NewCredentials(cfg OAuthConfig, client *http.Client) *Credentials {
	if cfg.AuthURL == "" {
		cfg.AuthURL = GoogleAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = GoogleTokenURL
	}
	return &Credentials{
		conf: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		client: client,
	}
}

func (c *Credentials) ctx(ctx context.Context) context.Context {
	if c.client == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, c.client)
}

// AuthCodeURL returns the consent URL requesting offline access, so the
// exchange yields a refresh token.
func (c *Credentials) AuthCodeURL(state string) string {
	return c.conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for tokens.
func (c *Credentials) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if strings.TrimSpace(code) == "" {
		return nil, &apperr.SyncError{Kind: apperr.SyncNotConnected, Op: "exchange", Detail: "empty authorization code"}
	}
	tok, err := c.conf.Exchange(c.ctx(ctx), code)
	if err != nil {
		return nil, tokenError("exchange", err)
	}
	return tok, nil
}

// Refresh trades a refresh token for a fresh access token. An empty
// refresh token means the backup was never connected. A rejected grant
// is reported as revoked with the provider's error body in Detail.
func (c *Credentials) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, &apperr.SyncError{Kind: apperr.SyncNotConnected, Op: "refresh"}
	}
	tok, err := c.conf.TokenSource(c.ctx(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, tokenError("refresh", err)
	}
	return tok, nil
}
