package stateguard

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authfront/authfront/internal/autherr"
	"github.com/authfront/authfront/internal/cookie"
)

var testKey = []byte("test-signing-key-0123456789abcdef")

// issueState runs Issue and returns the raw state plus the cookie the
// browser would carry back on the callback request
func issueState(t *testing.T, g *Guard) (string, *http.Cookie) {
	t.Helper()

	rec := httptest.NewRecorder()
	state, err := g.Issue(rec)
	require.NoError(t, err)
	require.NotEmpty(t, state)

	for _, c := range rec.Result().Cookies() {
		if c.Name == cookie.StateCookie {
			return state, c
		}
	}
	t.Fatal("state cookie not set")
	return "", nil
}

// stateCookieCleared reports whether the response deleted the state cookie
func stateCookieCleared(t *testing.T, rec *httptest.ResponseRecorder) bool {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == cookie.StateCookie && c.MaxAge < 0 {
			return true
		}
	}
	return false
}

func TestIssueOverwritesPriorToken(t *testing.T) {
	g := NewGuard(testKey)

	state1, _ := issueState(t, g)
	state2, c2 := issueState(t, g)
	assert.NotEqual(t, state1, state2)

	// Only the latest issued token validates
	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/auth/google/callback", nil)
	r.AddCookie(c2)
	assert.NoError(t, g.Validate(rec, r, state2))
}

func TestValidateSuccessConsumesToken(t *testing.T) {
	g := NewGuard(testKey)
	state, c := issueState(t, g)

	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/auth/google/callback", nil)
	r.AddCookie(c)

	require.NoError(t, g.Validate(rec, r, state))
	assert.True(t, stateCookieCleared(t, rec), "stored token must be deleted after validation")
}

func TestValidateMismatchConsumesToken(t *testing.T) {
	g := NewGuard(testKey)
	_, c := issueState(t, g)

	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/auth/google/callback", nil)
	r.AddCookie(c)

	err := g.Validate(rec, r, "forged-state")
	assert.ErrorIs(t, err, autherr.ErrStateMismatch)
	assert.True(t, stateCookieCleared(t, rec), "stored token must be deleted even on failure")
}

func TestValidateMissingStoredState(t *testing.T) {
	g := NewGuard(testKey)

	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/auth/google/callback", nil)

	err := g.Validate(rec, r, "whatever")
	assert.ErrorIs(t, err, autherr.ErrMissingStoredState)
}

func TestValidateRejectsTamperedCookie(t *testing.T) {
	g := NewGuard(testKey)
	state, c := issueState(t, g)

	c.Value = c.Value + "x"

	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/auth/google/callback", nil)
	r.AddCookie(c)

	err := g.Validate(rec, r, state)
	assert.ErrorIs(t, err, autherr.ErrMissingStoredState)
}

func TestValidateRejectsForeignKey(t *testing.T) {
	g := NewGuard(testKey)
	other := NewGuard([]byte("another-signing-key-0123456789ab"))

	state, c := issueState(t, other)

	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/auth/google/callback", nil)
	r.AddCookie(c)

	err := g.Validate(rec, r, state)
	assert.ErrorIs(t, err, autherr.ErrMissingStoredState)
}
