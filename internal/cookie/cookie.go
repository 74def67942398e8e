package cookie

import (
	"net/http"

	"github.com/authfront/authfront/internal/envutil"
	"github.com/authfront/authfront/internal/log"
)

// StateCookie holds the outstanding OAuth state token. It is session-scoped
// (no MaxAge) so closing the tab discards any in-flight attempt, matching
// the tab-local, non-persistent area the flow requires. SameSite is Lax so
// the cookie survives the top-level redirect back from the provider.
const StateCookie = "authfront_state"

// SetState sets the state cookie for an in-flight authorization attempt,
// overwriting any prior outstanding token
func SetState(w http.ResponseWriter, value string) {
	secure := !envutil.IsDev()
	http.SetCookie(w, &http.Cookie{
		Name:     StateCookie,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})

	log.LogTraceWithFields("cookie", "State cookie set", map[string]any{
		"secure":   secure,
		"sameSite": "Lax",
	})
}

// Clear removes a cookie by setting MaxAge to -1
func Clear(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:   name,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
}

// ClearState removes the state cookie
func ClearState(w http.ResponseWriter) {
	Clear(w, StateCookie)
	log.LogTraceWithFields("cookie", "State cookie cleared", nil)
}

// Get retrieves a cookie value from the request
func Get(r *http.Request, name string) (string, error) {
	c, err := r.Cookie(name)
	if err != nil {
		return "", err
	}
	return c.Value, nil
}

// GetState retrieves the state cookie value
func GetState(r *http.Request) (string, error) {
	return Get(r, StateCookie)
}
