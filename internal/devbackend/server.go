package devbackend

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/authfront/authfront/internal/jsonutil"
	"github.com/authfront/authfront/internal/log"
)

// Handlers exposes the backend auth API over HTTP
type Handlers struct {
	users  *UserStore
	tokens *TokenIssuer
	google *GoogleFlow // nil when the Google flow is not configured
}

// NewHandlers creates the handler set. google may be nil; the Google
// routes then answer 404.
func NewHandlers(users *UserStore, tokens *TokenIssuer, google *GoogleFlow) *Handlers {
	return &Handlers{users: users, tokens: tokens, google: google}
}

// NewRouter builds the backend route table
func NewRouter(h *Handlers) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/", h.RegisterHandler)
	mux.HandleFunc("/api/auth/token", h.TokenHandler)
	mux.HandleFunc("/api/auth/users/me", h.MeHandler)
	mux.HandleFunc("/api/auth/google/authorize", h.GoogleAuthorizeHandler)
	mux.HandleFunc("/api/auth/google/callback", h.GoogleCallbackHandler)
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		jsonutil.Write(w, map[string]string{"status": "ok"})
	})
	return mux
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterHandler creates a username/password account
func (h *Handlers) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/auth/" {
		jsonutil.WriteNotFound(w, "Not found")
		return
	}
	if r.Method != http.MethodPost {
		jsonutil.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonutil.WriteBadRequest(w, "Invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		jsonutil.WriteBadRequest(w, "username and password are required")
		return
	}

	user, err := h.users.CreateUser(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrUserExists) {
			jsonutil.WriteBadRequest(w, "Username already registered")
			return
		}
		log.LogErrorWithFields("devbackend", "Failed to create user", map[string]any{
			"error": err.Error(),
		})
		jsonutil.WriteInternalServerError(w, "Failed to create user")
		return
	}

	jsonutil.WriteResponse(w, http.StatusCreated, map[string]any{
		"id":       user.ID,
		"username": user.Username,
		"email":    user.Email,
	})
}

// TokenHandler verifies a form-encoded username/password pair and issues
// a bearer token
func (h *Handlers) TokenHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonutil.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}
	if err := r.ParseForm(); err != nil {
		jsonutil.WriteBadRequest(w, "Invalid form body")
		return
	}

	username := r.PostFormValue("username")
	password := r.PostFormValue("password")
	if username == "" || password == "" {
		jsonutil.WriteBadRequest(w, "username and password are required")
		return
	}

	user, err := h.users.Authenticate(r.Context(), username, password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			jsonutil.WriteUnauthorized(w, "Incorrect username or password")
			return
		}
		log.LogErrorWithFields("devbackend", "Authentication lookup failed", map[string]any{
			"error": err.Error(),
		})
		jsonutil.WriteInternalServerError(w, "Authentication failed")
		return
	}

	h.issueToken(w, user)
}

// MeHandler resolves the bearer token to its account
func (h *Handlers) MeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonutil.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}

	bearer := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if bearer == "" || bearer == r.Header.Get("Authorization") {
		jsonutil.WriteUnauthorized(w, "Missing bearer token")
		return
	}

	username, err := h.tokens.Verify(bearer)
	if err != nil {
		jsonutil.WriteUnauthorized(w, "Invalid or expired token")
		return
	}

	user, err := h.users.ByUsername(r.Context(), username)
	if err != nil {
		jsonutil.WriteUnauthorized(w, "Unknown user")
		return
	}

	jsonutil.Write(w, map[string]any{
		"id":          user.ID,
		"username":    user.Username,
		"email":       user.Email,
		"auth_method": user.AuthMethod,
	})
}

// GoogleAuthorizeHandler mints an authorization URL with backend-issued
// state, for clients that drive the flow without the front end
func (h *Handlers) GoogleAuthorizeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonutil.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}
	if h.google == nil {
		jsonutil.WriteNotFound(w, "Google sign-in is not configured")
		return
	}

	authURL, err := h.google.AuthorizeURL()
	if err != nil {
		log.LogErrorWithFields("devbackend", "Failed to mint authorization URL", map[string]any{
			"error": err.Error(),
		})
		jsonutil.WriteInternalServerError(w, "Failed to start sign-in")
		return
	}
	jsonutil.Write(w, map[string]string{"authorization_url": authURL})
}

type googleCallbackRequest struct {
	Code  string `json:"code"`
	State string `json:"state"`
}

// GoogleCallbackHandler exchanges an authorization code, resolves or
// creates the local account, and issues a bearer token. States this
// backend issued are consumed single-use; states issued and validated by
// the front end arrive already spent and are only logged.
func (h *Handlers) GoogleCallbackHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonutil.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}
	if h.google == nil {
		jsonutil.WriteNotFound(w, "Google sign-in is not configured")
		return
	}

	var req googleCallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonutil.WriteBadRequest(w, "Invalid request body")
		return
	}
	if req.Code == "" {
		jsonutil.WriteBadRequest(w, "code is required")
		return
	}
	if req.State == "" {
		jsonutil.WriteBadRequest(w, "state is required")
		return
	}

	if !h.google.ConsumeState(req.State) {
		log.LogDebugWithFields("devbackend", "Exchange with externally validated state", nil)
	}

	info, err := h.google.Exchange(r.Context(), req.Code)
	if err != nil {
		log.LogWarnWithFields("devbackend", "Google code exchange failed", map[string]any{
			"error": err.Error(),
		})
		jsonutil.WriteBadRequest(w, "Invalid authorization code")
		return
	}

	user, err := h.users.UpsertGoogleUser(r.Context(), info.ID, info.Email, info.Name, info.Picture)
	if err != nil {
		log.LogErrorWithFields("devbackend", "Failed to upsert google user", map[string]any{
			"error": err.Error(),
		})
		jsonutil.WriteInternalServerError(w, "Failed to resolve account")
		return
	}

	h.issueToken(w, user)
}

func (h *Handlers) issueToken(w http.ResponseWriter, user *User) {
	token, err := h.tokens.Issue(user)
	if err != nil {
		log.LogErrorWithFields("devbackend", "Failed to issue token", map[string]any{
			"error": err.Error(),
		})
		jsonutil.WriteInternalServerError(w, "Failed to issue token")
		return
	}
	jsonutil.Write(w, map[string]string{
		"access_token": token,
		"token_type":   "bearer",
	})
}
