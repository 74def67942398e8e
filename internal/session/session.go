package session

import "time"

// Method describes how the current session was established. It is carried
// for display only and never consulted for authorization decisions.
type Method string

const (
	MethodLocal         Method = "local"
	MethodOAuthCode     Method = "oauth-code"
	MethodOAuthImplicit Method = "oauth-implicit"
)

// Origin records which system issued the session's tokens. Unlike Method
// it is consulted at sign-out time: hosted-provider tokens have a remote
// session behind them that must be invalidated too.
type Origin string

const (
	OriginBackend Origin = "backend"
	OriginHosted  Origin = "hosted"
)

// Session is the locally held representation of an authenticated session.
// A session with an empty AccessToken is never considered established.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	SubjectID    string    `json:"subject_id,omitempty"`
	SubjectEmail string    `json:"subject_email,omitempty"`
	Method       Method    `json:"method,omitempty"`
	Origin       Origin    `json:"origin,omitempty"`
}

// Established reports whether the record carries a usable access token
func (s *Session) Established() bool {
	return s != nil && s.AccessToken != ""
}

// Expired reports whether the record's expiry has passed at the given time.
// A zero ExpiresAt means the provider did not report one; such a record
// never counts as expired here.
func (s *Session) Expired(now time.Time) bool {
	if s == nil || s.ExpiresAt.IsZero() {
		return false
	}
	return now.After(s.ExpiresAt)
}

// Identity is the derived display view of the authenticated subject.
// Consumers that only need to render "who is signed in" hold an Identity,
// never the raw tokens.
type Identity struct {
	SubjectID string `json:"subject_id,omitempty"`
	Email     string `json:"email,omitempty"`
	Name      string `json:"name,omitempty"`
	Picture   string `json:"picture,omitempty"`
	Method    Method `json:"method,omitempty"`
}

// IdentityOf derives the display view from a session record
func IdentityOf(s *Session) *Identity {
	if !s.Established() {
		return nil
	}
	return &Identity{
		SubjectID: s.SubjectID,
		Email:     s.SubjectEmail,
		Method:    s.Method,
	}
}
