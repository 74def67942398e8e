package devbackend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *UserStore {
	t.Helper()
	st, err := OpenUserStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestCreateAndAuthenticate(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	user, err := st.CreateUser(ctx, "alice", "alice@example.com", "s3cret")
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, AuthMethodLocal, user.AuthMethod)
	assert.NotEqual(t, "s3cret", user.HashedPassword)

	got, err := st.Authenticate(ctx, "alice", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = st.Authenticate(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = st.Authenticate(ctx, "nobody", "s3cret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestCreateUserDuplicate(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, err := st.CreateUser(ctx, "alice", "", "pw")
	require.NoError(t, err)

	_, err = st.CreateUser(ctx, "alice", "", "pw2")
	assert.ErrorIs(t, err, ErrUserExists)
}

func TestUpsertGoogleUser(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	// Fresh account from a Google identity
	created, err := st.UpsertGoogleUser(ctx, "g-1", "bob@example.com", "Bob", "https://pic.example/bob")
	require.NoError(t, err)
	assert.Equal(t, AuthMethodGoogle, created.AuthMethod)
	assert.Equal(t, "bob", created.Username)

	// Same google_id resolves to the same account
	again, err := st.UpsertGoogleUser(ctx, "g-1", "bob@example.com", "Bob", "")
	require.NoError(t, err)
	assert.Equal(t, created.ID, again.ID)
}

func TestUpsertGoogleUserLinksByEmail(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	local, err := st.CreateUser(ctx, "carol", "carol@example.com", "pw")
	require.NoError(t, err)

	linked, err := st.UpsertGoogleUser(ctx, "g-2", "carol@example.com", "Carol", "")
	require.NoError(t, err)
	assert.Equal(t, local.ID, linked.ID)
	assert.Equal(t, AuthMethodBoth, linked.AuthMethod)
	assert.Equal(t, "g-2", linked.GoogleID)

	// Password still works after linking
	_, err = st.Authenticate(ctx, "carol", "pw")
	assert.NoError(t, err)
}

func TestTokenIssuerRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer([]byte("0123456789abcdef0123456789abcdef"), 0)

	token, err := issuer.Issue(&User{ID: "u1", Username: "alice"})
	require.NoError(t, err)

	sub, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", sub)
}

func TestTokenIssuerRejectsTampering(t *testing.T) {
	issuer := NewTokenIssuer([]byte("0123456789abcdef0123456789abcdef"), 0)
	other := NewTokenIssuer([]byte("ffffffffffffffffffffffffffffffff"), 0)

	token, err := issuer.Issue(&User{ID: "u1", Username: "alice"})
	require.NoError(t, err)

	_, err = other.Verify(token)
	assert.Error(t, err)

	_, err = issuer.Verify(token + "x")
	assert.Error(t, err)
}

func TestTokenIssuerExpiry(t *testing.T) {
	issuer := NewTokenIssuer([]byte("0123456789abcdef0123456789abcdef"), -1)
	issuer.ttl = -time.Minute

	token, err := issuer.Issue(&User{ID: "u1", Username: "alice"})
	require.NoError(t, err)

	_, err = issuer.Verify(token)
	assert.Error(t, err)
}

func newTestServer(t *testing.T) (*httptest.Server, *UserStore) {
	t.Helper()
	st := newTestStore(t)
	issuer := NewTokenIssuer([]byte("0123456789abcdef0123456789abcdef"), 0)
	srv := httptest.NewServer(NewRouter(NewHandlers(st, issuer, nil)))
	t.Cleanup(srv.Close)
	return srv, st
}

func TestRegisterAndTokenEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/auth/", "application/json",
		strings.NewReader(`{"username":"alice","email":"alice@example.com","password":"s3cret"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	form := url.Values{"username": {"alice"}, "password": {"s3cret"}}
	resp, err = http.PostForm(srv.URL+"/api/auth/token", form)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	require.NoError(t, jsonDecode(resp, &body))
	assert.NotEmpty(t, body.AccessToken)
	assert.Equal(t, "bearer", body.TokenType)

	// The issued token resolves back to the account
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/auth/users/me", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+body.AccessToken)

	meResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer meResp.Body.Close()
	assert.Equal(t, http.StatusOK, meResp.StatusCode)

	var me struct {
		Username   string `json:"username"`
		Email      string `json:"email"`
		AuthMethod string `json:"auth_method"`
	}
	require.NoError(t, jsonDecode(meResp, &me))
	assert.Equal(t, "alice", me.Username)
	assert.Equal(t, "local", me.AuthMethod)
}

func TestTokenEndpointRejectsBadPassword(t *testing.T) {
	srv, st := newTestServer(t)
	_, err := st.CreateUser(context.Background(), "alice", "", "s3cret")
	require.NoError(t, err)

	form := url.Values{"username": {"alice"}, "password": {"wrong"}}
	resp, err := http.PostForm(srv.URL+"/api/auth/token", form)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestMeRejectsGarbageToken(t *testing.T) {
	srv, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/auth/users/me", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer not-a-token")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGoogleRoutesAbsentWhenNotConfigured(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/auth/google/authorize")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGoogleFlowStateSingleUse(t *testing.T) {
	flow, err := NewGoogleFlow("client-1", "secret-1", "http://localhost:8000/cb")
	require.NoError(t, err)

	authURL, err := flow.AuthorizeURL()
	require.NoError(t, err)

	u, err := url.Parse(authURL)
	require.NoError(t, err)
	state := u.Query().Get("state")
	require.NotEmpty(t, state)
	assert.NotEmpty(t, u.Query().Get("nonce"))

	assert.True(t, flow.ConsumeState(state))
	assert.False(t, flow.ConsumeState(state), "state must be single-use")
	assert.False(t, flow.ConsumeState("never-issued"))
}

func TestGoogleFlowRequiresFullConfig(t *testing.T) {
	_, err := NewGoogleFlow("client-1", "", "http://localhost:8000/cb")
	assert.Error(t, err)
}

func jsonDecode(resp *http.Response, v any) error {
	return json.NewDecoder(resp.Body).Decode(v)
}
