package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"classtable-service/pkg/response"
)

const (
	jaccountClientID   = "sjtu_classtable_ng"
	oauthConfigURL     = "https://sjtu.azurewebsites.net/api/getoauthconfig"
	oauthLoginURL      = "https://sjtu.azurewebsites.net/api/oauthlogin"
	jaccountProfileURL = "https://jaccount.sjtu.edu.cn/profile/api/account"
)

// OAuthConfig is the provider-issued OAuth client configuration. Field
// names follow the config service's JSON.
type OAuthConfig struct {
	AuthorizationURL string   `json:"authorization_url"`
	AuthorizeURL     string   `json:"authorize_url"`
	ClientID         string   `json:"client_id"`
	RedirectURL      string   `json:"redirect_url"`
	Scopes           []string `json:"scopes"`
}

// OAuth2 converts the fetched config into a standard oauth2 client
// config, used to build the re-authenticate URL surfaced to the user.
func (c OAuthConfig) OAuth2() *oauth2.Config {
	return &oauth2.Config{
		ClientID:    c.ClientID,
		RedirectURL: c.RedirectURL,
		Scopes:      c.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  c.AuthorizeURL,
			TokenURL: oauthLoginURL,
		},
	}
}

// AuthCodeURL is the URL the user must visit to re-authenticate.
func (c OAuthConfig) AuthCodeURL(state string) string {
	return c.OAuth2().AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// JAccountProvider authenticates against the university SSO. Schedule
// tokens are issued per scope through the token-exchange service.
type JAccountProvider struct {
	Client *http.Client
}

func (p *JAccountProvider) Name() string { return "jaccount" }

func (p *JAccountProvider) client() *http.Client {
	if p.Client != nil {
		return p.Client
	}
	return http.DefaultClient
}

// GetOAuthConfig fetches the OAuth client config for the given scopes.
func (p *JAccountProvider) GetOAuthConfig(ctx context.Context, scopes []string) (*OAuthConfig, error) {
	const op = "auth.JAccountProvider.GetOAuthConfig"

	body, err := json.Marshal(map[string]any{
		"client_id": jaccountClientID,
		"scope":     scopes,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, oauthConfigURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	var decoded serverlessResponse[OAuthConfig]
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &decoded.Data, nil
}

// Authorize exchanges an authorization code for an access token.
func (p *JAccountProvider) Authorize(ctx context.Context, code string, config *OAuthConfig) (AccessToken, error) {
	const op = "auth.JAccountProvider.Authorize"

	if code == "" {
		return AccessToken{}, fmt.Errorf("%s: %w", op, response.ErrMissingCode)
	}
	if config == nil {
		return AccessToken{}, fmt.Errorf("%s: %w", op, response.ErrMissingOAuthConf)
	}

	body, err := json.Marshal(map[string]any{
		"client_id": jaccountClientID,
		"scope":     config.Scopes,
		"code":      code,
	})
	if err != nil {
		return AccessToken{}, fmt.Errorf("%s: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, oauthLoginURL, bytes.NewReader(body))
	if err != nil {
		return AccessToken{}, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client().Do(req)
	if err != nil {
		return AccessToken{}, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	var decoded serverlessResponse[AccessToken]
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return AccessToken{}, fmt.Errorf("%s: %w", op, err)
	}

	token := decoded.Data
	token.ClientID = config.ClientID

	return token, nil
}

// CheckSession probes the profile endpoint with the stored cookies. The
// SSO answers JSON for live sessions and an HTML login page otherwise.
func (p *JAccountProvider) CheckSession(ctx context.Context, cookies []*http.Cookie) (Status, error) {
	const op = "auth.JAccountProvider.CheckSession"

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, jaccountProfileURL, nil)
	if err != nil {
		return StatusError, fmt.Errorf("%s: %w", op, err)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}

	resp, err := p.client().Do(req)
	if err != nil {
		return StatusError, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	switch {
	case strings.Contains(contentType, "application/json"):
		return StatusConnected, nil
	case strings.Contains(contentType, "text/html"):
		return StatusExpired, nil
	default:
		return StatusError, nil
	}
}

// RefreshSession refreshes every stored token through the exchange
// service.
func (p *JAccountProvider) RefreshSession(ctx context.Context, account *Account) error {
	const op = "auth.JAccountProvider.RefreshSession"

	for i := range account.Tokens {
		refreshed, err := account.Tokens[i].AccessToken.Refresh(ctx, p.client())
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		account.Tokens[i].AccessToken = refreshed
	}

	return nil
}
