package auth

import (
	"context"
	"fmt"
	"net/http"
)

const shsmuPortalURL = "https://webvpn2.shsmu.edu.cn/"

// SHSMUProvider is cookie-only: the portal has no refresh endpoint, an
// expired session always needs an interactive login.
type SHSMUProvider struct {
	Client *http.Client
}

func (p *SHSMUProvider) Name() string { return "shsmu" }

func (p *SHSMUProvider) client() *http.Client {
	client := p.Client
	if client == nil {
		client = &http.Client{}
	}
	// The portal signals an expired session with a redirect to the login
	// page; we need to see the Location header, not follow it.
	return &http.Client{
		Transport: client.Transport,
		Timeout:   client.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (p *SHSMUProvider) CheckSession(ctx context.Context, cookies []*http.Cookie) (Status, error) {
	const op = "auth.SHSMUProvider.CheckSession"

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, shsmuPortalURL, nil)
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

	if resp.Header.Get("Location") != "" {
		return StatusExpired, nil
	}

	return StatusConnected, nil
}

func (p *SHSMUProvider) RefreshSession(ctx context.Context, account *Account) error {
	const op = "auth.SHSMUProvider.RefreshSession"

	return fmt.Errorf("%s: %w", op, ErrCannotRefresh)
}
