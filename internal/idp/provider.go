// Package idp holds the clients for the identity providers the front end
// can authenticate against: the Google authorization-code flow (whose code
// exchange runs through the backend, which holds the client secret) and a
// third-party-hosted provider reached directly over its REST surface.
package idp

import (
	"context"

	"github.com/authfront/authfront/internal/session"
)

// Provider abstracts the hosted identity provider's SDK boundary:
// initiating a redirect, resolving the authenticated subject, and
// invalidating the remote session.
type Provider interface {
	// Type returns the provider type identifier (e.g., "hosted")
	Type() string

	// AuthURL builds the authorization URL that starts the redirect,
	// returning the browser to redirectTo when the provider is done
	AuthURL(redirectTo string) string

	// GetUser fetches the authenticated subject for an access token
	GetUser(ctx context.Context, accessToken string) (*session.Identity, error)

	// SignOut invalidates the remote session for an access token
	SignOut(ctx context.Context, accessToken string) error
}
