package idp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/authfront/authfront/internal/session"
)

// HostedProvider talks to a GoTrue-shaped hosted identity provider: an
// /authorize redirect endpoint, a /token endpoint supporting the password
// grant, a /user endpoint, and a /logout endpoint, all authenticated with
// a public API key header.
type HostedProvider struct {
	baseURL      string
	apiKey       string
	oauthBackend string // upstream social provider, e.g. "google"
	httpClient   *http.Client
}

// hostedUserResponse is the provider's /user payload
type hostedUserResponse struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	UserMetadata struct {
		Name      string `json:"name"`
		FullName  string `json:"full_name"`
		AvatarURL string `json:"avatar_url"`
	} `json:"user_metadata"`
}

// hostedTokenResponse is the provider's /token payload for the password grant
type hostedTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// NewHostedProvider creates a client for the hosted identity provider.
// baseURL is the provider's project URL without a trailing slash.
func NewHostedProvider(baseURL, apiKey, oauthBackend string) *HostedProvider {
	if oauthBackend == "" {
		oauthBackend = "google"
	}
	return &HostedProvider{
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
		oauthBackend: oauthBackend,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Type returns the provider type
func (p *HostedProvider) Type() string {
	return "hosted"
}

// AuthURL builds the authorization URL for the implicit flow. The provider
// returns tokens in the URL fragment of redirectTo.
func (p *HostedProvider) AuthURL(redirectTo string) string {
	params := url.Values{}
	params.Set("provider", p.oauthBackend)
	params.Set("redirect_to", redirectTo)
	return fmt.Sprintf("%s/auth/v1/authorize?%s", p.baseURL, params.Encode())
}

// GetUser fetches the authenticated subject for an access token
func (p *HostedProvider) GetUser(ctx context.Context, accessToken string) (*session.Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, err
	}
	p.setAuthHeaders(req, accessToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching user: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user endpoint returned status %d", resp.StatusCode)
	}

	var user hostedUserResponse
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("decoding user response: %w", err)
	}
	if user.ID == "" {
		return nil, fmt.Errorf("user endpoint returned no subject")
	}

	name := user.UserMetadata.Name
	if name == "" {
		name = user.UserMetadata.FullName
	}

	return &session.Identity{
		SubjectID: user.ID,
		Email:     user.Email,
		Name:      name,
		Picture:   user.UserMetadata.AvatarURL,
	}, nil
}

// SignOut invalidates the remote session for an access token
func (p *HostedProvider) SignOut(ctx context.Context, accessToken string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/auth/v1/logout", nil)
	if err != nil {
		return err
	}
	p.setAuthHeaders(req, accessToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("remote sign-out: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("logout endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// SignInWithPassword authenticates with the provider's password grant
func (p *HostedProvider) SignInWithPassword(ctx context.Context, email, password string) (*session.Session, error) {
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("email", email)
	form.Set("password", password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/auth/v1/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("apikey", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("password sign-in: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode, body)
	}

	var tok hostedTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return nil, fmt.Errorf("decoding token response: %w", err)
	}

	return tokenToSession(tok), nil
}

// SignUp registers a new email/password user with the provider
func (p *HostedProvider) SignUp(ctx context.Context, email, password string) error {
	payload, err := json.Marshal(map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/auth/v1/signup", strings.NewReader(string(payload)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sign-up: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("signup endpoint returned status %d: %s", resp.StatusCode, body)
	}
	return nil
}

func (p *HostedProvider) setAuthHeaders(req *http.Request, accessToken string) {
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("apikey", p.apiKey)
}

func tokenToSession(tok hostedTokenResponse) *session.Session {
	tokenType := tok.TokenType
	if tokenType == "" {
		tokenType = "bearer"
	}
	rec := &session.Session{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tokenType,
		Method:       session.MethodLocal,
		Origin:       session.OriginHosted,
	}
	if tok.ExpiresIn > 0 {
		rec.ExpiresAt = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	}
	return rec
}
