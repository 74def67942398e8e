package backend

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authfront/authfront/internal/autherr"
	"github.com/authfront/authfront/internal/session"
)

func TestToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/auth/token", r.URL.Path)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "alice", r.PostFormValue("username"))
		assert.Equal(t, "s3cret", r.PostFormValue("password"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok1","token_type":"bearer"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	sess, err := client.Token(context.Background(), "alice", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "tok1", sess.AccessToken)
	assert.Equal(t, "bearer", sess.TokenType)
	assert.Equal(t, session.MethodLocal, sess.Method)
	assert.Equal(t, session.OriginBackend, sess.Origin)
	assert.True(t, sess.ExpiresAt.IsZero())
}

func TestTokenBadCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"Incorrect username or password"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	_, err := client.Token(context.Background(), "alice", "wrong")

	var exchangeErr *autherr.ExchangeFailedError
	require.ErrorAs(t, err, &exchangeErr)
	assert.Contains(t, exchangeErr.Reason, "401")
}

func TestTokenEmptyAccessToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"token_type":"bearer"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	_, err := client.Token(context.Background(), "alice", "s3cret")
	assert.True(t, errors.Is(err, autherr.ErrNoSessionReturned))
}

func TestGoogleExchange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/google/callback", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Write([]byte(`{"access_token":"gtok","token_type":"bearer","expires_in":3600}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	before := time.Now()
	sess, err := client.GoogleExchange(context.Background(), "code1", "state1")
	require.NoError(t, err)
	assert.Equal(t, "gtok", sess.AccessToken)
	assert.Equal(t, session.MethodOAuthCode, sess.Method)
	assert.WithinDuration(t, before.Add(time.Hour), sess.ExpiresAt, 5*time.Second)
}

func TestGoogleExchangeRejectedCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"invalid code"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	_, err := client.GoogleExchange(context.Background(), "bad", "state1")

	var exchangeErr *autherr.ExchangeFailedError
	require.ErrorAs(t, err, &exchangeErr)
}

func TestMe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/users/me", r.URL.Path)
		assert.Equal(t, "Bearer tok1", r.Header.Get("Authorization"))
		w.Write([]byte(`{"username":"alice","id":7,"email":"alice@example.com","auth_method":"local"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	id, err := client.Me(context.Background(), "tok1")
	require.NoError(t, err)
	assert.Equal(t, "7", id.SubjectID)
	assert.Equal(t, "alice@example.com", id.Email)
	assert.Equal(t, "alice", id.Name)
}

func TestMeUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	_, err := client.Me(context.Background(), "expired")

	var fetchErr *autherr.IdentityFetchFailedError
	require.ErrorAs(t, err, &fetchErr)
}

func TestRegister(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/", r.URL.Path)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"username":"bob","id":1}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	assert.NoError(t, client.Register(context.Background(), "bob", "pw12345"))
}

func TestRegisterConflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"Username already registered"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	err := client.Register(context.Background(), "bob", "pw12345")

	var exchangeErr *autherr.ExchangeFailedError
	require.ErrorAs(t, err, &exchangeErr)
	assert.Contains(t, exchangeErr.Reason, "already registered")
}
