// Package auth holds the linked institutional accounts: cookie sets and
// per-scope bearer tokens, with session checks and token refresh against
// the token-exchange service.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"classtable-service/internal/models"
)

// RefreshTokenURL is the token-exchange endpoint; the request and
// response shapes are dictated by the service.
const RefreshTokenURL = "https://sjtu.azurewebsites.net/api/refreshtoken"

var ErrCannotRefresh = errors.New("session cannot be refreshed automatically")
var ErrTokenWithScopeNotFound = errors.New("no token for requested scopes")

type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnected    Status = "connected"
	StatusExpired      Status = "expired"
	StatusError        Status = "error"
)

// AccessToken mirrors the token-exchange wire format.
type AccessToken struct {
	ClientID     string  `json:"client_id,omitempty"`
	AccessToken  string  `json:"access_token"`
	ExpiresIn    int     `json:"expires_in"`
	ExpiresAt    float64 `json:"expires_at"`
	RefreshToken string  `json:"refresh_token"`
	TokenType    string  `json:"token_type"`
}

func (t AccessToken) IsExpired() bool {
	return time.Unix(int64(t.ExpiresAt), 0).Before(time.Now())
}

// serverlessResponse is the envelope every token-exchange endpoint uses.
type serverlessResponse[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

// Refresh exchanges the refresh token for a new access token.
func (t AccessToken) Refresh(ctx context.Context, client *http.Client) (AccessToken, error) {
	const op = "auth.AccessToken.Refresh"

	body, err := json.Marshal(map[string]string{
		"client_id":     t.ClientID,
		"refresh_token": t.RefreshToken,
	})
	if err != nil {
		return AccessToken{}, fmt.Errorf("%s: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, RefreshTokenURL, bytes.NewReader(body))
	if err != nil {
		return AccessToken{}, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return AccessToken{}, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	var decoded serverlessResponse[AccessToken]
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return AccessToken{}, fmt.Errorf("%s: %w", op, err)
	}

	token := decoded.Data
	token.ClientID = t.ClientID

	return token, nil
}

// TokenForScopes binds an access token to the scopes it was issued for.
type TokenForScopes struct {
	Scopes      []string    `json:"scopes"`
	AccessToken AccessToken `json:"access_token"`
}

// Cookie is a persisted session cookie.
type Cookie struct {
	Name    string     `json:"name"`
	Value   string     `json:"value"`
	Domain  string     `json:"domain"`
	Path    string     `json:"path"`
	Expires *time.Time `json:"expires,omitempty"`
	Secure  bool       `json:"secure"`
}

func (c Cookie) HTTPCookie() *http.Cookie {
	cookie := &http.Cookie{
		Name:   c.Name,
		Value:  c.Value,
		Domain: c.Domain,
		Path:   c.Path,
		Secure: c.Secure,
	}
	if c.Expires != nil {
		cookie.Expires = *c.Expires
	}
	return cookie
}

// Account is one linked institutional identity.
type Account struct {
	ID       string           `json:"id"`
	Provider string           `json:"provider"`
	Status   Status           `json:"status"`
	Tokens   []TokenForScopes `json:"tokens"`
	Cookies  []Cookie         `json:"cookies"`
}

func NewAccount(provider string) *Account {
	return &Account{
		ID:       uuid.NewString(),
		Provider: provider,
		Status:   StatusDisconnected,
	}
}

// Token returns the access token covering all requested scopes,
// refreshing it first when expired.
func (a *Account) Token(ctx context.Context, client *http.Client, scopes []string) (AccessToken, error) {
	const op = "auth.Account.Token"

	for i := range a.Tokens {
		if !containsAll(a.Tokens[i].Scopes, scopes) {
			continue
		}
		if a.Tokens[i].AccessToken.IsExpired() {
			refreshed, err := a.Tokens[i].AccessToken.Refresh(ctx, client)
			if err != nil {
				return AccessToken{}, fmt.Errorf("%s: %w", op, err)
			}
			a.Tokens[i].AccessToken = refreshed
		}
		return a.Tokens[i].AccessToken, nil
	}

	return AccessToken{}, fmt.Errorf("%s: %w", op, ErrTokenWithScopeNotFound)
}

func (a *Account) HTTPCookies() []*http.Cookie {
	cookies := make([]*http.Cookie, 0, len(a.Cookies))
	for _, c := range a.Cookies {
		cookies = append(cookies, c.HTTPCookie())
	}
	return cookies
}

func containsAll(have, want []string) bool {
	for _, w := range want {
		if !slices.Contains(have, w) {
			return false
		}
	}
	return true
}

// Provider checks and refreshes sessions for one auth backend.
type Provider interface {
	Name() string
	CheckSession(ctx context.Context, cookies []*http.Cookie) (Status, error)
	RefreshSession(ctx context.Context, account *Account) error
}

// ProviderFor maps a college to its auth provider name; the custom
// bucket has none.
func ProviderFor(college models.College) (string, bool) {
	switch college {
	case models.CollegeSJTU, models.CollegeSJTUG:
		return "jaccount", true
	case models.CollegeSHSMU:
		return "shsmu", true
	default:
		return "", false
	}
}

// Store supplies linked accounts per provider.
type Store interface {
	Account(provider string) (*Account, error)
	Save(account *Account) error
}

// FileStore keeps accounts in a single JSON file. Good enough for a
// single-node deployment; the interface is what the sync core depends on.
type FileStore struct {
	path string

	mu       sync.Mutex
	accounts []*Account
}

func NewFileStore(path string) (*FileStore, error) {
	const op = "auth.NewFileStore"

	s := &FileStore{path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := json.Unmarshal(data, &s.accounts); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return s, nil
}

var ErrAccountNotFound = errors.New("account not found")

func (s *FileStore) Account(provider string) (*Account, error) {
	const op = "auth.FileStore.Account"

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.accounts {
		if a.Provider == provider {
			return a, nil
		}
	}

	return nil, fmt.Errorf("%s: %w", op, ErrAccountNotFound)
}

func (s *FileStore) Save(account *Account) error {
	const op = "auth.FileStore.Save"

	s.mu.Lock()
	defer s.mu.Unlock()

	if account.ID == "" {
		account.ID = uuid.NewString()
	}

	replaced := false
	for i, a := range s.accounts {
		if a.ID == account.ID {
			s.accounts[i] = account
			replaced = true
			break
		}
	}
	if !replaced {
		s.accounts = append(s.accounts, account)
	}

	data, err := json.MarshalIndent(s.accounts, "", "  ")
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
