package devbackend

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/authfront/authfront/internal/crypto"
	"github.com/authfront/authfront/internal/log"
)

const stateTTL = 10 * time.Minute

// googleUserInfo is the shape of Google's userinfo response
type googleUserInfo struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// stateEntry is one outstanding authorization attempt
type stateEntry struct {
	nonceHash string
	expiresAt time.Time
}

// GoogleFlow runs the server side of the Google code flow: it can mint
// authorization URLs with its own state and nonce, and it exchanges
// authorization codes using the client secret that never leaves this
// process
type GoogleFlow struct {
	oauth       *oauth2.Config
	userinfoURL string

	mu     sync.Mutex
	states map[string]stateEntry
}

// NewGoogleFlow configures the flow. Returns an error when any credential
// is missing so a half-configured deployment fails at startup, not at the
// first sign-in.
func NewGoogleFlow(clientID, clientSecret, redirectURI string) (*GoogleFlow, error) {
	if clientID == "" || clientSecret == "" || redirectURI == "" {
		return nil, fmt.Errorf("google flow requires clientId, clientSecret, and redirectUri")
	}

	return &GoogleFlow{
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       []string{"openid", "profile", "email"},
			Endpoint:     google.Endpoint,
		},
		userinfoURL: "https://www.googleapis.com/oauth2/v2/userinfo",
		states:      make(map[string]stateEntry),
	}, nil
}

// AuthorizeURL mints an authorization URL with a fresh single-use state.
// The nonce is hashed before it rides in the URL so the raw value stays
// server-side.
func (g *GoogleFlow) AuthorizeURL() (string, error) {
	state, err := crypto.GenerateSecureToken()
	if err != nil {
		return "", err
	}
	nonce, err := crypto.GenerateSecureToken()
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256([]byte(nonce))
	nonceHash := base64.RawURLEncoding.EncodeToString(sum[:])

	g.mu.Lock()
	g.pruneLocked(time.Now())
	g.states[state] = stateEntry{nonceHash: nonceHash, expiresAt: time.Now().Add(stateTTL)}
	g.mu.Unlock()

	return g.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("nonce", nonceHash),
	), nil
}

// ConsumeState removes a state if this flow issued it. States issued by
// the front end are validated there before the exchange request arrives,
// so an unknown state is not a failure here.
func (g *GoogleFlow) ConsumeState(state string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	entry, ok := g.states[state]
	if !ok {
		return false
	}
	delete(g.states, state)
	return time.Now().Before(entry.expiresAt)
}

// Exchange trades an authorization code for the Google identity behind it
func (g *GoogleFlow) Exchange(ctx context.Context, code string) (*googleUserInfo, error) {
	token, err := g.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchanging authorization code: %w", err)
	}

	client := g.oauth.Client(ctx, token)
	resp, err := client.Get(g.userinfoURL)
	if err != nil {
		return nil, fmt.Errorf("fetching userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo returned status %d", resp.StatusCode)
	}

	var info googleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decoding userinfo: %w", err)
	}
	if info.ID == "" {
		return nil, fmt.Errorf("userinfo returned no subject")
	}
	return &info, nil
}

// pruneLocked drops expired states. Caller holds the lock.
func (g *GoogleFlow) pruneLocked(now time.Time) {
	for state, entry := range g.states {
		if now.After(entry.expiresAt) {
			delete(g.states, state)
			log.LogDebugWithFields("devbackend", "Pruned expired authorization state", nil)
		}
	}
}
