package idp

import (
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// GoogleAuthorizer builds the authorization URL for the Google
// authorization-code flow. Only the authorize leg lives here: the code is
// exchanged by the backend token endpoint, which holds the client secret,
// so this side needs the client ID and redirect URI alone.
type GoogleAuthorizer struct {
	config oauth2.Config
}

// NewGoogleAuthorizer creates a Google authorize-URL builder
func NewGoogleAuthorizer(clientID, redirectURI string) *GoogleAuthorizer {
	return &GoogleAuthorizer{
		config: oauth2.Config{
			ClientID:    clientID,
			RedirectURL: redirectURI,
			Scopes:      []string{"openid", "profile", "email"},
			Endpoint:    google.Endpoint,
		},
	}
}

// AuthURL generates the authorization URL carrying the state token
func (g *GoogleAuthorizer) AuthURL(state string) string {
	return g.config.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
	)
}
