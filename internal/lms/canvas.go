// Package lms manages access tokens for the external learning platform
// (Canvas). Tokens are not exposed over any API, so they are harvested
// from the profile settings page; the HTML layout is upstream-dictated.
package lms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"classtable-service/pkg/response"
)

const (
	canvasBaseURL        = "https://oc.sjtu.edu.cn"
	canvasOpenIDPath     = "/login/openid_connect"
	canvasSettingsPath   = "/profile/settings"
	canvasTokensPath     = "/profile/tokens"
	canvasCSRFCookieName = "_csrf_token"

	// Marker string the platform renders when the SSO identity has no
	// LMS account behind it.
	noAccountMarker = "以下用户没有Canvas"
)

var ErrBadCSRF = errors.New("csrf token cookie missing")

// Token is one personal access token row.
type Token struct {
	ID      string `json:"id"`
	AppName string `json:"app_name"`
	Purpose string `json:"purpose"`
	Token   string `json:"token,omitempty"`
}

// tokenRecord is the JSON shape of the token create/regenerate response.
type tokenRecord struct {
	ID           int     `json:"id"`
	AppName      string  `json:"app_name"`
	Purpose      string  `json:"purpose"`
	VisibleToken string  `json:"visible_token"`
	ExpiresAt    *string `json:"expires_at"`
}

// Client drives the LMS token pages with the user's SSO cookies.
type Client struct {
	HTTP    *http.Client
	Cookies []*http.Cookie
}

func (c *Client) client() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

// Connect runs the openid-connect handshake. A marker page instead of a
// redirect chain means the identity has no LMS account at all, which is
// a different failure than an expired session.
func (c *Client) Connect(ctx context.Context) error {
	const op = "lms.Client.Connect"

	body, _, err := c.get(ctx, canvasBaseURL+canvasOpenIDPath)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if strings.Contains(body, noAccountMarker) {
		return fmt.Errorf("%s: %w", op, response.ErrNoAccount)
	}

	return nil
}

// Tokens scrapes the settings page for existing access-token rows.
func (c *Client) Tokens(ctx context.Context) ([]Token, error) {
	const op = "lms.Client.Tokens"

	body, _, err := c.get(ctx, canvasBaseURL+canvasSettingsPath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var tokens []Token
	for _, row := range findAll(doc, func(n *html.Node) bool {
		return n.Data == "tr" && hasClass(n, "access_token") && !hasClass(n, "blank")
	}) {
		var token Token

		if cell := findFirst(row, func(n *html.Node) bool {
			return n.Data == "td" && hasClass(n, "app_name")
		}); cell != nil {
			token.AppName = strings.TrimSpace(text(cell))
		}

		if cell := findFirst(row, func(n *html.Node) bool {
			return n.Data == "td" && hasClass(n, "purpose")
		}); cell != nil {
			token.Purpose = strings.TrimSpace(text(cell))
		}

		if link := findFirst(row, func(n *html.Node) bool {
			return n.Data == "a" && hasClass(n, "show_token_link")
		}); link != nil {
			rel := attr(link, "rel")
			if idx := strings.LastIndex(rel, "/"); idx >= 0 {
				token.ID = rel[idx+1:]
			}
		}

		tokens = append(tokens, token)
	}

	return tokens, nil
}

// Generate creates a new non-expiring token for this app.
func (c *Client) Generate(ctx context.Context) (Token, error) {
	const op = "lms.Client.Generate"

	record, err := c.postToken(ctx, canvasBaseURL+canvasTokensPath, url.Values{
		"access_token[purpose]":              {"MySJTU"},
		"purpose":                            {"MySJTU"},
		"access_token[permanent_expires_at]": {""},
		"permanent_expires_at":               {""},
		"_method":                            {"post"},
	})
	if err != nil {
		return Token{}, fmt.Errorf("%s: %w", op, err)
	}

	return record.token(), nil
}

// Regenerate rotates an existing token and returns its new secret.
func (c *Client) Regenerate(ctx context.Context, tokenID string) (Token, error) {
	const op = "lms.Client.Regenerate"

	record, err := c.postToken(ctx, canvasBaseURL+canvasTokensPath+"/"+tokenID, url.Values{
		"access_token[regenerate]": {"1"},
		"_method":                  {"PUT"},
	})
	if err != nil {
		return Token{}, fmt.Errorf("%s: %w", op, err)
	}

	return record.token(), nil
}

// Delete revokes a token.
func (c *Client) Delete(ctx context.Context, tokenID string) error {
	const op = "lms.Client.Delete"

	_, err := c.postToken(ctx, canvasBaseURL+canvasTokensPath+"/"+tokenID, url.Values{
		"_method": {"DELETE"},
	})
	if err != nil && !errors.Is(err, errEmptyBody) {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r tokenRecord) token() Token {
	return Token{
		ID:      fmt.Sprintf("%d", r.ID),
		AppName: r.AppName,
		Purpose: r.Purpose,
		Token:   r.VisibleToken,
	}
}

var errEmptyBody = errors.New("empty response body")

// csrfToken digs the platform CSRF token out of the cookie set.
func (c *Client) csrfToken() (string, error) {
	for _, cookie := range c.Cookies {
		if cookie.Name == canvasCSRFCookieName && strings.Contains(cookie.Domain, "oc.sjtu.edu.cn") {
			value, err := url.QueryUnescape(cookie.Value)
			if err != nil {
				return "", err
			}
			return value, nil
		}
	}

	return "", ErrBadCSRF
}

func (c *Client) get(ctx context.Context, rawURL string) (string, *http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", nil, err
	}
	for _, cookie := range c.Cookies {
		req.AddCookie(cookie)
	}

	resp, err := c.client().Do(req)
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", resp, err
	}

	return string(body), resp, nil
}

func (c *Client) postToken(ctx context.Context, rawURL string, form url.Values) (tokenRecord, error) {
	csrf, err := c.csrfToken()
	if err != nil {
		return tokenRecord{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return tokenRecord{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Csrf-Token", csrf)
	for _, cookie := range c.Cookies {
		req.AddCookie(cookie)
	}

	resp, err := c.client().Do(req)
	if err != nil {
		return tokenRecord{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return tokenRecord{}, err
	}
	if len(body) == 0 {
		return tokenRecord{}, errEmptyBody
	}

	var record tokenRecord
	if err := json.Unmarshal(body, &record); err != nil {
		return tokenRecord{}, err
	}

	return record, nil
}

// --- minimal html helpers ---

func findAll(n *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode && match(node) {
			out = append(out, node)
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return out
}

func findFirst(n *html.Node, match func(*html.Node) bool) *html.Node {
	all := findAll(n, match)
	if len(all) == 0 {
		return nil
	}
	return all[0]
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func text(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return sb.String()
}
