package auth

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classtable-service/internal/models"
)

func TestAccessTokenIsExpired(t *testing.T) {
	live := AccessToken{ExpiresAt: float64(time.Now().Add(time.Hour).Unix())}
	assert.False(t, live.IsExpired())

	dead := AccessToken{ExpiresAt: float64(time.Now().Add(-time.Hour).Unix())}
	assert.True(t, dead.IsExpired())
}

func TestAccountTokenScopeSelection(t *testing.T) {
	account := &Account{
		Tokens: []TokenForScopes{
			{
				Scopes: []string{"lessons", "profile"},
				AccessToken: AccessToken{
					AccessToken: "tok-1",
					ExpiresAt:   float64(time.Now().Add(time.Hour).Unix()),
				},
			},
		},
	}

	token, err := account.Token(context.Background(), http.DefaultClient, []string{"lessons"})
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token.AccessToken)

	_, err = account.Token(context.Background(), http.DefaultClient, []string{"calendar"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTokenWithScopeNotFound)
}

func TestAccountTokenRefreshesExpired(t *testing.T) {
	client := &http.Client{}
	httpmock.ActivateNonDefault(client)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodPost, RefreshTokenURL,
		httpmock.NewStringResponder(200, `{
			"success": true,
			"message": "ok",
			"data": {
				"access_token": "fresh",
				"refresh_token": "r2",
				"expires_in": 3600,
				"expires_at": 99999999999,
				"token_type": "Bearer"
			}
		}`))

	account := &Account{
		Tokens: []TokenForScopes{{
			Scopes: []string{"lessons"},
			AccessToken: AccessToken{
				ClientID:     "sjtu_classtable_ng",
				AccessToken:  "stale",
				RefreshToken: "r1",
				ExpiresAt:    float64(time.Now().Add(-time.Minute).Unix()),
			},
		}},
	}

	token, err := account.Token(context.Background(), client, []string{"lessons"})
	require.NoError(t, err)
	assert.Equal(t, "fresh", token.AccessToken)

	// The refreshed token replaces the stale one in place and keeps its
	// client id.
	assert.Equal(t, "fresh", account.Tokens[0].AccessToken.AccessToken)
	assert.Equal(t, "sjtu_classtable_ng", account.Tokens[0].AccessToken.ClientID)
}

func TestProviderFor(t *testing.T) {
	name, ok := ProviderFor(models.CollegeSJTU)
	require.True(t, ok)
	assert.Equal(t, "jaccount", name)

	name, ok = ProviderFor(models.CollegeSJTUG)
	require.True(t, ok)
	assert.Equal(t, "jaccount", name)

	name, ok = ProviderFor(models.CollegeSHSMU)
	require.True(t, ok)
	assert.Equal(t, "shsmu", name)

	_, ok = ProviderFor(models.CollegeCustom)
	assert.False(t, ok)
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.json")

	store, err := NewFileStore(path)
	require.NoError(t, err)

	_, err = store.Account("jaccount")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAccountNotFound)

	account := NewAccount("jaccount")
	account.Status = StatusConnected
	account.Cookies = []Cookie{{Name: "session", Value: "x", Domain: "jaccount.sjtu.edu.cn", Path: "/"}}
	require.NoError(t, store.Save(account))

	reopened, err := NewFileStore(path)
	require.NoError(t, err)

	loaded, err := reopened.Account("jaccount")
	require.NoError(t, err)
	assert.Equal(t, account.ID, loaded.ID)
	assert.Equal(t, StatusConnected, loaded.Status)
	require.Len(t, loaded.Cookies, 1)
	assert.Equal(t, "session", loaded.Cookies[0].Name)
}

func TestFileStoreSaveReplaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.json")

	store, err := NewFileStore(path)
	require.NoError(t, err)

	account := NewAccount("shsmu")
	require.NoError(t, store.Save(account))

	account.Status = StatusExpired
	require.NoError(t, store.Save(account))

	loaded, err := store.Account("shsmu")
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, loaded.Status)
}

func TestJAccountCheckSession(t *testing.T) {
	client := &http.Client{}
	httpmock.ActivateNonDefault(client)
	defer httpmock.DeactivateAndReset()

	p := &JAccountProvider{Client: client}

	respond := func(contentType string) {
		httpmock.RegisterResponder(http.MethodHead, jaccountProfileURL,
			func(*http.Request) (*http.Response, error) {
				resp := httpmock.NewStringResponse(200, "")
				resp.Header.Set("Content-Type", contentType)
				return resp, nil
			})
	}

	respond("application/json; charset=utf-8")
	status, err := p.CheckSession(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, StatusConnected, status)

	// The SSO serves the login page instead of the profile once the
	// session is gone.
	respond("text/html; charset=utf-8")
	status, err = p.CheckSession(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, status)

	respond("application/octet-stream")
	status, err = p.CheckSession(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, StatusError, status)
}

func TestSHSMUCheckSession(t *testing.T) {
	client := &http.Client{}
	httpmock.ActivateNonDefault(client)
	defer httpmock.DeactivateAndReset()

	p := &SHSMUProvider{Client: client}

	httpmock.RegisterResponder(http.MethodHead, shsmuPortalURL,
		httpmock.NewStringResponder(200, ""))
	status, err := p.CheckSession(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, StatusConnected, status)

	httpmock.RegisterResponder(http.MethodHead, shsmuPortalURL,
		func(*http.Request) (*http.Response, error) {
			resp := httpmock.NewStringResponse(302, "")
			resp.Header.Set("Location", "https://webvpn2.shsmu.edu.cn/login")
			return resp, nil
		})
	status, err = p.CheckSession(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, status)
}

func TestSHSMURefreshSession(t *testing.T) {
	p := &SHSMUProvider{}

	err := p.RefreshSession(context.Background(), &Account{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCannotRefresh)
}

func TestOAuthConfigAuthCodeURL(t *testing.T) {
	config := OAuthConfig{
		AuthorizeURL: "https://jaccount.sjtu.edu.cn/oauth2/authorize",
		ClientID:     "sjtu_classtable_ng",
		RedirectURL:  "https://example.com/callback",
		Scopes:       []string{"lessons"},
	}

	got := config.AuthCodeURL("state-1")
	assert.Contains(t, got, "https://jaccount.sjtu.edu.cn/oauth2/authorize")
	assert.Contains(t, got, "client_id=sjtu_classtable_ng")
	assert.Contains(t, got, "state=state-1")
}
