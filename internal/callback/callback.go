// Package callback extracts authorization artifacts from provider return
// URLs. Two shapes exist: the authorization-code shape (query parameters)
// and the implicit shape (URL fragment, never sent to any server).
package callback

import (
	"net/url"
	"strconv"
	"time"

	"github.com/authfront/authfront/internal/autherr"
	"github.com/authfront/authfront/internal/session"
)

// DefaultExpiresIn is assumed when an implicit callback omits expires_in
const DefaultExpiresIn = 3600 * time.Second

// CodeArtifacts are the artifacts of an authorization-code callback
type CodeArtifacts struct {
	Code  string
	State string
}

// ParseCode extracts code-flow artifacts from a callback URL.
// A provider-reported error wins over missing parameters: when the error
// query parameter is present the callback is a denial, not a malformed
// request.
func ParseCode(u *url.URL) (*CodeArtifacts, error) {
	q := u.Query()

	if errCode := q.Get("error"); errCode != "" {
		return nil, &autherr.ProviderError{
			Code:        errCode,
			Description: q.Get("error_description"),
		}
	}

	code := q.Get("code")
	if code == "" {
		return nil, autherr.ErrMissingCode
	}
	state := q.Get("state")
	if state == "" {
		return nil, autherr.ErrMissingState
	}

	return &CodeArtifacts{Code: code, State: state}, nil
}

// ParseImplicit builds a session record from an implicit-flow fragment
// (the part after '#', without the '#'). The fragment uses query-parameter
// encoding: access_token, refresh_token, expires_in, token_type.
func ParseImplicit(fragment string, now time.Time) (*session.Session, error) {
	if fragment == "" {
		return nil, autherr.ErrMissingFragment
	}

	values, err := url.ParseQuery(fragment)
	if err != nil {
		return nil, autherr.ErrMissingFragment
	}

	if errCode := values.Get("error"); errCode != "" {
		return nil, &autherr.ProviderError{
			Code:        errCode,
			Description: values.Get("error_description"),
		}
	}

	accessToken := values.Get("access_token")
	if accessToken == "" {
		return nil, autherr.ErrMissingAccessToken
	}

	expiresIn := DefaultExpiresIn
	if raw := values.Get("expires_in"); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			expiresIn = time.Duration(secs) * time.Second
		}
	}

	tokenType := values.Get("token_type")
	if tokenType == "" {
		tokenType = "bearer"
	}

	return &session.Session{
		AccessToken:  accessToken,
		RefreshToken: values.Get("refresh_token"),
		TokenType:    tokenType,
		ExpiresAt:    now.Add(expiresIn),
		Method:       session.MethodOAuthImplicit,
		Origin:       session.OriginHosted,
	}, nil
}
