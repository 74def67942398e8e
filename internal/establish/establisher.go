// Package establish orchestrates authentication attempts end to end: it
// issues the anti-forgery state for redirect flows, validates callbacks,
// runs the token exchange through the right collaborator, enriches the
// resulting session with the subject's identity, and persists it. Each
// attempt moves through a small set of phases that are logged under a
// per-attempt ID so interleaved tabs can be told apart in the logs.
package establish

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/authfront/authfront/internal/autherr"
	"github.com/authfront/authfront/internal/callback"
	"github.com/authfront/authfront/internal/idp"
	"github.com/authfront/authfront/internal/log"
	"github.com/authfront/authfront/internal/session"
	"github.com/authfront/authfront/internal/stateguard"
	"github.com/authfront/authfront/internal/store"
)

// Phase labels a point in an attempt's lifecycle, for logging only
type Phase string

const (
	PhaseRedirecting Phase = "redirecting"
	PhaseValidating  Phase = "validating"
	PhaseExchanging  Phase = "exchanging"
	PhaseEstablished Phase = "established"
	PhaseFailed      Phase = "failed"
)

// Backend is the token-endpoint collaborator that verifies credentials
// and exchanges Google authorization codes
type Backend interface {
	Register(ctx context.Context, username, password string) error
	Token(ctx context.Context, username, password string) (*session.Session, error)
	GoogleExchange(ctx context.Context, code, state string) (*session.Session, error)
	Me(ctx context.Context, bearer string) (*session.Identity, error)
}

// Hosted is the hosted identity provider collaborator
type Hosted interface {
	idp.Provider
	SignInWithPassword(ctx context.Context, email, password string) (*session.Session, error)
	SignUp(ctx context.Context, email, password string) error
}

// Establisher runs authentication attempts against the configured
// collaborators and persists the winning session
type Establisher struct {
	guard   *stateguard.Guard
	store   store.Store
	backend Backend
	hosted  Hosted
	google  *idp.GoogleAuthorizer
}

// NewEstablisher wires an establisher. hosted and google may be nil when
// the corresponding flow is not configured; the HTTP layer does not route
// to flows whose provider is absent.
func NewEstablisher(guard *stateguard.Guard, st store.Store, be Backend, hosted Hosted, google *idp.GoogleAuthorizer) *Establisher {
	return &Establisher{
		guard:   guard,
		store:   st,
		backend: be,
		hosted:  hosted,
		google:  google,
	}
}

// StartGoogle begins a Google authorization-code attempt: it issues a
// fresh state token (replacing any outstanding one) and returns the
// authorization URL to redirect the browser to
func (e *Establisher) StartGoogle(w http.ResponseWriter) (string, error) {
	state, err := e.guard.Issue(w)
	if err != nil {
		return "", err
	}

	attemptID := uuid.NewString()
	e.logPhase(attemptID, PhaseRedirecting, map[string]any{"flow": "google-code"})
	return e.google.AuthURL(state), nil
}

// StartHosted begins a hosted-provider implicit attempt and returns the
// provider's authorization URL. The provider delivers tokens directly in
// the callback fragment, so there is no state to issue here; the fragment
// never transits a server and cannot be replayed into the exchange step.
func (e *Establisher) StartHosted(redirectTo string) string {
	attemptID := uuid.NewString()
	e.logPhase(attemptID, PhaseRedirecting, map[string]any{"flow": "hosted-implicit"})
	return e.hosted.AuthURL(redirectTo)
}

// FromCode completes a Google authorization-code attempt from parsed
// callback artifacts. State validation runs before anything else; a
// validation failure means no exchange is attempted at all.
func (e *Establisher) FromCode(ctx context.Context, w http.ResponseWriter, r *http.Request, artifacts *callback.CodeArtifacts) (*session.Identity, error) {
	attemptID := uuid.NewString()

	e.logPhase(attemptID, PhaseValidating, nil)
	if err := e.guard.Validate(w, r, artifacts.State); err != nil {
		e.logPhase(attemptID, PhaseFailed, map[string]any{"error": err.Error()})
		return nil, err
	}

	e.logPhase(attemptID, PhaseExchanging, nil)
	rec, err := e.backend.GoogleExchange(ctx, artifacts.Code, artifacts.State)
	if err != nil {
		e.logPhase(attemptID, PhaseFailed, map[string]any{"error": err.Error()})
		return nil, err
	}
	if !rec.Established() {
		e.logPhase(attemptID, PhaseFailed, map[string]any{"error": "no session returned"})
		return nil, autherr.ErrNoSessionReturned
	}

	e.enrichFromBackend(ctx, rec)
	return e.finish(ctx, attemptID, rec)
}

// FromImplicit completes a hosted-provider implicit attempt from a session
// parsed out of the callback fragment. The subject lookup is mandatory: a
// token whose owner cannot be resolved is discarded, not persisted.
func (e *Establisher) FromImplicit(ctx context.Context, rec *session.Session) (*session.Identity, error) {
	attemptID := uuid.NewString()

	e.logPhase(attemptID, PhaseExchanging, map[string]any{"flow": "hosted-implicit"})
	id, err := e.hosted.GetUser(ctx, rec.AccessToken)
	if err != nil {
		e.logPhase(attemptID, PhaseFailed, map[string]any{"error": err.Error()})
		var fetchErr *autherr.IdentityFetchFailedError
		if errors.As(err, &fetchErr) {
			return nil, err
		}
		return nil, &autherr.IdentityFetchFailedError{Err: err}
	}

	rec.SubjectID = id.SubjectID
	rec.SubjectEmail = id.Email
	rec.Origin = session.OriginHosted
	return e.finish(ctx, attemptID, rec)
}

// FromPassword runs a username/password attempt against the backend token
// endpoint. After the token is issued the subject identity is fetched
// best-effort: a failed lookup is logged and the session saved without
// enrichment, since the credential check already succeeded.
func (e *Establisher) FromPassword(ctx context.Context, username, password string) (*session.Identity, error) {
	attemptID := uuid.NewString()

	e.logPhase(attemptID, PhaseExchanging, map[string]any{"flow": "password"})
	rec, err := e.backend.Token(ctx, username, password)
	if err != nil {
		e.logPhase(attemptID, PhaseFailed, map[string]any{"error": err.Error()})
		return nil, err
	}

	e.enrichFromBackend(ctx, rec)
	return e.finish(ctx, attemptID, rec)
}

// FromHostedPassword runs a password attempt directly against the hosted
// provider's token endpoint
func (e *Establisher) FromHostedPassword(ctx context.Context, email, password string) (*session.Identity, error) {
	attemptID := uuid.NewString()

	e.logPhase(attemptID, PhaseExchanging, map[string]any{"flow": "hosted-password"})
	rec, err := e.hosted.SignInWithPassword(ctx, email, password)
	if err != nil {
		e.logPhase(attemptID, PhaseFailed, map[string]any{"error": err.Error()})
		return nil, err
	}

	if id, err := e.hosted.GetUser(ctx, rec.AccessToken); err != nil {
		log.LogWarnWithFields("establish", "Subject lookup after hosted sign-in failed", map[string]any{
			"attempt_id": attemptID,
			"error":      err.Error(),
		})
	} else {
		rec.SubjectID = id.SubjectID
		rec.SubjectEmail = id.Email
	}
	rec.Method = session.MethodLocal
	rec.Origin = session.OriginHosted
	return e.finish(ctx, attemptID, rec)
}

// Register creates a username/password account on the backend
func (e *Establisher) Register(ctx context.Context, username, password string) error {
	return e.backend.Register(ctx, username, password)
}

// RegisterHosted creates an account directly on the hosted provider
func (e *Establisher) RegisterHosted(ctx context.Context, email, password string) error {
	return e.hosted.SignUp(ctx, email, password)
}

// Logout ends the current session. Sessions whose tokens came from the
// hosted provider, password grant and implicit alike, are also signed
// out remotely. The remote call is best effort: a provider that cannot
// be reached does not keep the user signed in locally, so its failure is
// logged and swallowed. The local record is always cleared.
func (e *Establisher) Logout(ctx context.Context) error {
	rec, err := e.store.Load(ctx)
	if err == nil && rec.Established() && rec.Origin == session.OriginHosted && e.hosted != nil {
		if err := e.hosted.SignOut(ctx, rec.AccessToken); err != nil {
			log.LogWarnWithFields("establish", "Remote sign-out failed, clearing local session anyway", map[string]any{
				"error": err.Error(),
			})
		}
	}
	return e.store.Clear(ctx)
}

// enrichFromBackend fills in the subject fields from the backend's
// users/me endpoint, best effort
func (e *Establisher) enrichFromBackend(ctx context.Context, rec *session.Session) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	id, err := e.backend.Me(ctx, rec.AccessToken)
	if err != nil {
		log.LogWarnWithFields("establish", "Subject lookup after token issue failed", map[string]any{
			"error": err.Error(),
		})
		return
	}
	rec.SubjectID = id.SubjectID
	rec.SubjectEmail = id.Email
}

// finish persists the established session and returns the derived identity
func (e *Establisher) finish(ctx context.Context, attemptID string, rec *session.Session) (*session.Identity, error) {
	if err := e.store.Save(ctx, rec); err != nil {
		e.logPhase(attemptID, PhaseFailed, map[string]any{"error": err.Error()})
		return nil, err
	}

	e.logPhase(attemptID, PhaseEstablished, map[string]any{
		"method":  string(rec.Method),
		"subject": rec.SubjectID,
	})
	return session.IdentityOf(rec), nil
}

func (e *Establisher) logPhase(attemptID string, phase Phase, fields map[string]any) {
	merged := map[string]any{"attempt_id": attemptID, "phase": string(phase)}
	for k, v := range fields {
		merged[k] = v
	}
	if phase == PhaseFailed {
		log.LogWarnWithFields("establish", "Authentication attempt failed", merged)
		return
	}
	log.LogInfoWithFields("establish", "Authentication attempt phase", merged)
}
