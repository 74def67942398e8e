// Package backend is the client for the application's token endpoint: the
// collaborator that verifies username/password credentials and exchanges
// Google authorization codes, returning bearer tokens. Every ambiguous
// remote failure is converted into the typed error taxonomy here, at the
// boundary where the payload is first received.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/authfront/authfront/internal/autherr"
	"github.com/authfront/authfront/internal/session"
)

// Client talks to the backend auth API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// tokenResponse is the backend's token payload
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// meResponse is the backend's authenticated-subject payload
type meResponse struct {
	Username   string `json:"username"`
	ID         any    `json:"id"`
	Email      string `json:"email"`
	AuthMethod string `json:"auth_method"`
}

// NewClient creates a backend client. baseURL is the backend origin
// without a trailing slash, e.g. "http://localhost:8000".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Register creates a new username/password user
func (c *Client) Register(ctx context.Context, username, password string) error {
	payload, err := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/auth/", strings.NewReader(string(payload)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &autherr.ExchangeFailedError{Reason: "registration request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &autherr.ExchangeFailedError{
			Reason: fmt.Sprintf("registration returned status %d: %s", resp.StatusCode, body),
		}
	}
	return nil
}

// Token performs the form-encoded password login and returns the session
// record the backend issued
func (c *Client) Token(ctx context.Context, username, password string) (*session.Session, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/auth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return c.doTokenRequest(req, session.MethodLocal)
}

// GoogleExchange sends a Google authorization code to the backend, which
// holds the client secret, and returns the session the backend issued
func (c *Client) GoogleExchange(ctx context.Context, code, state string) (*session.Session, error) {
	payload, err := json.Marshal(map[string]string{
		"code":  code,
		"state": state,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/auth/google/callback", strings.NewReader(string(payload)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.doTokenRequest(req, session.MethodOAuthCode)
}

// Me resolves the authenticated subject for a bearer token
func (c *Client) Me(ctx context.Context, bearer string) (*session.Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/auth/users/me", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &autherr.IdentityFetchFailedError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &autherr.IdentityFetchFailedError{
			Err: fmt.Errorf("users/me returned status %d", resp.StatusCode),
		}
	}

	var me meResponse
	if err := json.NewDecoder(resp.Body).Decode(&me); err != nil {
		return nil, &autherr.IdentityFetchFailedError{Err: err}
	}
	if me.Username == "" && me.Email == "" {
		return nil, &autherr.IdentityFetchFailedError{}
	}

	return &session.Identity{
		SubjectID: fmt.Sprint(me.ID),
		Email:     me.Email,
		Name:      me.Username,
		Method:    session.Method(me.AuthMethod),
	}, nil
}

// doTokenRequest executes a token-issuing request and maps the response
// into a session record or the error taxonomy
func (c *Client) doTokenRequest(req *http.Request, method session.Method) (*session.Session, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &autherr.ExchangeFailedError{Reason: "token request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &autherr.ExchangeFailedError{
			Reason: fmt.Sprintf("token endpoint returned status %d: %s", resp.StatusCode, body),
		}
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return nil, &autherr.ExchangeFailedError{Reason: "decoding token response", Err: err}
	}
	if tok.AccessToken == "" {
		return nil, autherr.ErrNoSessionReturned
	}

	tokenType := tok.TokenType
	if tokenType == "" {
		tokenType = "bearer"
	}

	rec := &session.Session{
		AccessToken: tok.AccessToken,
		TokenType:   tokenType,
		Method:      method,
		Origin:      session.OriginBackend,
	}
	if tok.ExpiresIn > 0 {
		rec.ExpiresAt = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	}
	return rec, nil
}
