package idp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authfront/authfront/internal/session"
)

func TestHostedProviderAuthURL(t *testing.T) {
	p := NewHostedProvider("https://project.example.co", "anon-key", "google")

	authURL := p.AuthURL("http://localhost:8080/auth/hosted/callback")

	assert.Contains(t, authURL, "https://project.example.co/auth/v1/authorize?")
	assert.Contains(t, authURL, "provider=google")
	assert.Contains(t, authURL, "redirect_to=http%3A%2F%2Flocalhost%3A8080%2Fauth%2Fhosted%2Fcallback")
}

func TestHostedProviderGetUser(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/user", r.URL.Path)
		assert.Equal(t, "Bearer tok1", r.Header.Get("Authorization"))
		assert.Equal(t, "anon-key", r.Header.Get("apikey"))

		w.Header().Set("Content-Type", "application/json")
		err := json.NewEncoder(w).Encode(map[string]any{
			"id":    "subject-1",
			"email": "user@example.com",
			"user_metadata": map[string]any{
				"name":       "Test User",
				"avatar_url": "https://example.com/photo.jpg",
			},
		})
		require.NoError(t, err)
	}))
	defer server.Close()

	p := NewHostedProvider(server.URL, "anon-key", "google")

	identity, err := p.GetUser(context.Background(), "tok1")
	require.NoError(t, err)
	assert.Equal(t, "subject-1", identity.SubjectID)
	assert.Equal(t, "user@example.com", identity.Email)
	assert.Equal(t, "Test User", identity.Name)
	assert.Equal(t, "https://example.com/photo.jpg", identity.Picture)
}

func TestHostedProviderGetUserNoSubject(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	p := NewHostedProvider(server.URL, "anon-key", "google")

	_, err := p.GetUser(context.Background(), "tok1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no subject")
}

func TestHostedProviderGetUserErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	p := NewHostedProvider(server.URL, "anon-key", "google")

	_, err := p.GetUser(context.Background(), "expired")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}

func TestHostedProviderSignInWithPassword(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/token", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "password", r.Form.Get("grant_type"))
		assert.Equal(t, "user@example.com", r.Form.Get("email"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok1","refresh_token":"ref1","token_type":"bearer","expires_in":3600}`))
	}))
	defer server.Close()

	p := NewHostedProvider(server.URL, "anon-key", "google")

	rec, err := p.SignInWithPassword(context.Background(), "user@example.com", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "tok1", rec.AccessToken)
	assert.Equal(t, "ref1", rec.RefreshToken)
	assert.Equal(t, "bearer", rec.TokenType)
	assert.False(t, rec.ExpiresAt.IsZero())
	assert.Equal(t, session.MethodLocal, rec.Method)
	assert.Equal(t, session.OriginHosted, rec.Origin)
}

func TestHostedProviderSignInBadCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer server.Close()

	p := NewHostedProvider(server.URL, "anon-key", "google")

	_, err := p.SignInWithPassword(context.Background(), "user@example.com", "wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
}

func TestHostedProviderSignOut(t *testing.T) {
	var called bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Equal(t, "/auth/v1/logout", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	p := NewHostedProvider(server.URL, "anon-key", "google")

	require.NoError(t, p.SignOut(context.Background(), "tok1"))
	assert.True(t, called)
}
