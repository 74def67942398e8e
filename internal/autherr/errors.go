// Package autherr defines the error taxonomy for authentication attempts.
// Every ambiguous provider payload is converted into one of these at the
// boundary where it is first received; nothing downstream inspects raw
// error shapes. All of them are terminal for the attempt - none is retried
// automatically.
package autherr

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingStoredState means no state token was outstanding when a
	// callback arrived. Fatal: the sole CSRF defense cannot run.
	ErrMissingStoredState = errors.New("no stored state token for this attempt")

	// ErrStateMismatch means the echoed state differs from the issued one,
	// a possible forgery. Fatal, never retried silently.
	ErrStateMismatch = errors.New("state parameter does not match issued value")

	// ErrMissingCode means a code-flow callback carried no code parameter
	ErrMissingCode = errors.New("callback is missing the code parameter")

	// ErrMissingState means a code-flow callback carried no state parameter
	ErrMissingState = errors.New("callback is missing the state parameter")

	// ErrMissingFragment means an implicit-flow callback carried no URL fragment
	ErrMissingFragment = errors.New("callback is missing the token fragment")

	// ErrMissingAccessToken means the fragment lacked an access_token value
	ErrMissingAccessToken = errors.New("callback fragment is missing access_token")

	// ErrNoSessionReturned means the exchange succeeded but yielded no
	// usable token
	ErrNoSessionReturned = errors.New("exchange returned no usable session")
)

// ProviderError is reported when the provider itself returned an error or
// denial on the callback (error / error_description query parameters)
type ProviderError struct {
	Code        string
	Description string
}

func (e *ProviderError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("provider returned error %q", e.Code)
	}
	return fmt.Sprintf("provider returned error %q: %s", e.Code, e.Description)
}

// ExchangeFailedError wraps a network or provider failure during the
// code-for-token exchange
type ExchangeFailedError struct {
	Reason string
	Err    error
}

func (e *ExchangeFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("token exchange failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("token exchange failed: %s", e.Reason)
}

func (e *ExchangeFailedError) Unwrap() error { return e.Err }

// IdentityFetchFailedError wraps a failure to resolve the authenticated
// subject after tokens were obtained. The attempt is abandoned; the
// partially built session is discarded, not persisted.
type IdentityFetchFailedError struct {
	Err error
}

func (e *IdentityFetchFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("identity lookup failed: %v", e.Err)
	}
	return "identity lookup returned no subject"
}

func (e *IdentityFetchFailedError) Unwrap() error { return e.Err }

// UserMessage maps an attempt error to the human-readable message surfaced
// on the failure page. Unknown errors get a generic message so internal
// detail never leaks to the browser.
func UserMessage(err error) string {
	var provErr *ProviderError
	switch {
	case errors.As(err, &provErr):
		return fmt.Sprintf("The identity provider rejected the sign-in (%s).", provErr.Code)
	case errors.Is(err, ErrMissingStoredState), errors.Is(err, ErrStateMismatch):
		return "This sign-in attempt could not be verified. Please start again."
	case errors.Is(err, ErrMissingCode), errors.Is(err, ErrMissingState),
		errors.Is(err, ErrMissingFragment), errors.Is(err, ErrMissingAccessToken):
		return "The sign-in response was incomplete. Please start again."
	case errors.Is(err, ErrNoSessionReturned):
		return "Sign-in completed but no session was returned. Please try again."
	default:
		var exErr *ExchangeFailedError
		var idErr *IdentityFetchFailedError
		if errors.As(err, &exErr) || errors.As(err, &idErr) {
			return "Signing in failed while contacting the identity provider. Please try again."
		}
		return "Signing in failed. Please try again."
	}
}
