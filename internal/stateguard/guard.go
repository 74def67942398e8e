// Package stateguard issues and validates the one-time anti-forgery state
// token tied to an OAuth authorization attempt. The outstanding token rides
// in a session-scoped cookie as a signed expiring token, so a tampered or
// stale cookie fails closed. Exactly one token is outstanding per tab; it
// is single-use and deleted on validation whether validation succeeds or
// fails.
package stateguard

import (
	"net/http"
	"time"

	"github.com/authfront/authfront/internal/autherr"
	"github.com/authfront/authfront/internal/cookie"
	"github.com/authfront/authfront/internal/crypto"
	"github.com/authfront/authfront/internal/log"
)

// StateTTL bounds how long an authorization redirect may stay pending
const StateTTL = 10 * time.Minute

// Guard issues and validates state tokens for authorization attempts
type Guard struct {
	signer crypto.TokenSigner
}

// NewGuard creates a guard with the given HMAC signing key
func NewGuard(signingKey []byte) *Guard {
	return &Guard{signer: crypto.NewTokenSigner(signingKey, StateTTL)}
}

// Issue generates a fresh unguessable state token, stores its signed form
// in the tab's state cookie (overwriting any prior outstanding token), and
// returns the raw value for inclusion in the outbound authorization URL
func (g *Guard) Issue(w http.ResponseWriter) (string, error) {
	state, err := crypto.GenerateSecureToken()
	if err != nil {
		return "", err
	}

	sealed, err := g.signer.Sign(state)
	if err != nil {
		return "", err
	}

	cookie.SetState(w, sealed)
	return state, nil
}

// Validate checks a state value echoed back by the provider against the
// stored token. The stored token is consumed before the result is decided:
// no residual state survives one validation, success or failure. This must
// run before any token exchange is attempted - it is the sole CSRF defense.
func (g *Guard) Validate(w http.ResponseWriter, r *http.Request, receivedState string) error {
	sealed, err := cookie.GetState(r)

	// Single-use: drop the stored token regardless of outcome
	cookie.ClearState(w)

	if err != nil || sealed == "" {
		return autherr.ErrMissingStoredState
	}

	var stored string
	if err := g.signer.Verify(sealed, &stored); err != nil {
		log.LogWarnWithFields("stateguard", "State cookie failed verification", map[string]any{
			"error": err.Error(),
		})
		return autherr.ErrMissingStoredState
	}

	if stored != receivedState {
		return autherr.ErrStateMismatch
	}
	return nil
}
