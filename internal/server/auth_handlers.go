package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/authfront/authfront/internal/autherr"
	"github.com/authfront/authfront/internal/callback"
	"github.com/authfront/authfront/internal/establish"
	"github.com/authfront/authfront/internal/jsonutil"
	"github.com/authfront/authfront/internal/log"
	"github.com/authfront/authfront/internal/notify"
)

// AuthHandlers handles the browser-facing authentication routes
type AuthHandlers struct {
	establisher     *establish.Establisher
	notifier        *notify.Notifier
	baseURL         string
	googleEnabled   bool
	hostedEnabled   bool
	exchangeTimeout time.Duration
}

// NewAuthHandlers creates a new auth handlers instance. baseURL is the
// externally visible origin used to build callback URLs.
func NewAuthHandlers(est *establish.Establisher, notifier *notify.Notifier, baseURL string, googleEnabled, hostedEnabled bool, exchangeTimeout time.Duration) *AuthHandlers {
	if exchangeTimeout <= 0 {
		exchangeTimeout = 30 * time.Second
	}
	return &AuthHandlers{
		establisher:     est,
		notifier:        notifier,
		baseURL:         strings.TrimRight(baseURL, "/"),
		googleEnabled:   googleEnabled,
		hostedEnabled:   hostedEnabled,
		exchangeTimeout: exchangeTimeout,
	}
}

// LoginPageHandler renders the sign-in page
func (h *AuthHandlers) LoginPageHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		jsonutil.WriteNotFound(w, "Not found")
		return
	}
	if r.Method != http.MethodGet {
		jsonutil.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}

	status := h.notifier.Status()
	data := LoginPageData{
		IsAuthenticated: status.IsAuthenticated,
		GoogleEnabled:   h.googleEnabled,
		HostedEnabled:   h.hostedEnabled,
		Message:         r.URL.Query().Get("message"),
		MessageType:     r.URL.Query().Get("type"),
	}
	if status.User != nil {
		data.UserEmail = status.User.Email
		if data.UserEmail == "" {
			data.UserEmail = status.User.Name
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := loginPageTemplate.Execute(w, data); err != nil {
		log.LogErrorWithFields("server", "Failed to render login page", map[string]any{
			"error": err.Error(),
		})
	}
}

// RegisterHandler creates a username/password account on the backend
func (h *AuthHandlers) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonutil.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}

	username, password, ok := credentialsFromRequest(r)
	if !ok {
		jsonutil.WriteBadRequest(w, "username and password are required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.exchangeTimeout)
	defer cancel()

	if err := h.establisher.Register(ctx, username, password); err != nil {
		log.LogWarnWithFields("server", "Registration failed", map[string]any{
			"error": err.Error(),
		})
		jsonutil.WriteBadRequest(w, "Registration failed")
		return
	}
	jsonutil.WriteResponse(w, http.StatusCreated, map[string]string{"status": "registered"})
}

// LoginHandler runs a username/password attempt against the backend
func (h *AuthHandlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonutil.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}

	username, password, ok := credentialsFromRequest(r)
	if !ok {
		jsonutil.WriteBadRequest(w, "username and password are required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.exchangeTimeout)
	defer cancel()

	if _, err := h.establisher.FromPassword(ctx, username, password); err != nil {
		h.loginFailure(w, r, err)
		return
	}
	h.loginSuccess(w, r)
}

// HostedLoginHandler runs a password attempt against the hosted provider
func (h *AuthHandlers) HostedLoginHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonutil.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}
	if !h.hostedEnabled {
		jsonutil.WriteNotFound(w, "Hosted provider is not configured")
		return
	}

	email, password, ok := credentialsFromRequest(r)
	if !ok {
		jsonutil.WriteBadRequest(w, "username and password are required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.exchangeTimeout)
	defer cancel()

	if _, err := h.establisher.FromHostedPassword(ctx, email, password); err != nil {
		h.loginFailure(w, r, err)
		return
	}
	h.loginSuccess(w, r)
}

// HostedRegisterHandler creates an account on the hosted provider
func (h *AuthHandlers) HostedRegisterHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonutil.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}
	if !h.hostedEnabled {
		jsonutil.WriteNotFound(w, "Hosted provider is not configured")
		return
	}

	email, password, ok := credentialsFromRequest(r)
	if !ok {
		jsonutil.WriteBadRequest(w, "username and password are required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.exchangeTimeout)
	defer cancel()

	if err := h.establisher.RegisterHosted(ctx, email, password); err != nil {
		log.LogWarnWithFields("server", "Hosted registration failed", map[string]any{
			"error": err.Error(),
		})
		jsonutil.WriteBadRequest(w, "Registration failed")
		return
	}
	jsonutil.WriteResponse(w, http.StatusCreated, map[string]string{"status": "registered"})
}

// GoogleAuthorizeHandler starts the Google authorization-code flow by
// issuing a fresh state token and redirecting to the authorization URL
func (h *AuthHandlers) GoogleAuthorizeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonutil.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}
	if !h.googleEnabled {
		jsonutil.WriteNotFound(w, "Google sign-in is not configured")
		return
	}

	authURL, err := h.establisher.StartGoogle(w)
	if err != nil {
		log.LogErrorWithFields("server", "Failed to start authorization attempt", map[string]any{
			"error": err.Error(),
		})
		jsonutil.WriteInternalServerError(w, "Failed to start sign-in")
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// GoogleCallbackHandler completes the Google authorization-code flow.
// State validation runs before the exchange; any failure lands on the
// failure page with a human-readable message, never a raw error.
func (h *AuthHandlers) GoogleCallbackHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonutil.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}
	if !h.googleEnabled {
		jsonutil.WriteNotFound(w, "Google sign-in is not configured")
		return
	}

	artifacts, err := callback.ParseCode(r.URL)
	if err != nil {
		h.failurePage(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.exchangeTimeout)
	defer cancel()

	if _, err := h.establisher.FromCode(ctx, w, r, artifacts); err != nil {
		h.failurePage(w, err)
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

// HostedAuthorizeHandler starts the hosted implicit flow
func (h *AuthHandlers) HostedAuthorizeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonutil.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}
	if !h.hostedEnabled {
		jsonutil.WriteNotFound(w, "Hosted provider is not configured")
		return
	}

	redirectTo := h.baseURL + "/auth/hosted/callback"
	http.Redirect(w, r, h.establisher.StartHosted(redirectTo), http.StatusFound)
}

// HostedCallbackHandler serves the relay page that reads the token
// fragment out of the URL. The fragment never reaches the server in the
// initial request; the page posts it to the complete endpoint and scrubs
// the address bar.
func (h *AuthHandlers) HostedCallbackHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonutil.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}
	if !h.hostedEnabled {
		jsonutil.WriteNotFound(w, "Hosted provider is not configured")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := hostedCallbackTemplate.Execute(w, nil); err != nil {
		log.LogErrorWithFields("server", "Failed to render callback page", map[string]any{
			"error": err.Error(),
		})
	}
}

// hostedCompleteRequest carries the relayed fragment
type hostedCompleteRequest struct {
	Fragment string `json:"fragment"`
}

// HostedCompleteHandler finishes the implicit flow from the relayed
// fragment: parse tokens, resolve the subject, persist the session
func (h *AuthHandlers) HostedCompleteHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonutil.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}
	if !h.hostedEnabled {
		jsonutil.WriteNotFound(w, "Hosted provider is not configured")
		return
	}

	var req hostedCompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonutil.WriteBadRequest(w, "Invalid request body")
		return
	}

	// location.hash arrives with its leading '#'
	rec, err := callback.ParseImplicit(strings.TrimPrefix(req.Fragment, "#"), time.Now())
	if err != nil {
		jsonutil.WriteError(w, http.StatusBadRequest, "sign_in_failed", autherr.UserMessage(err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.exchangeTimeout)
	defer cancel()

	id, err := h.establisher.FromImplicit(ctx, rec)
	if err != nil {
		jsonutil.WriteError(w, http.StatusBadGateway, "sign_in_failed", autherr.UserMessage(err))
		return
	}
	jsonutil.Write(w, map[string]any{"status": "signed_in", "user": id})
}

// StatusHandler reports the current authentication status
func (h *AuthHandlers) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonutil.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}
	jsonutil.Write(w, h.notifier.Status())
}

// EventsHandler streams authentication status changes over SSE so every
// open tab observes login and logout as they happen
func (h *AuthHandlers) EventsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonutil.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		jsonutil.WriteInternalServerError(w, "Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	updates, cancel := h.notifier.Subscribe()
	defer cancel()

	// Current status first so a fresh tab renders immediately
	if err := writeStatusEvent(w, flusher, h.notifier.Status()); err != nil {
		return
	}

	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case status, open := <-updates:
			if !open {
				return
			}
			if err := writeStatusEvent(w, flusher, status); err != nil {
				return
			}
		case <-keepalive.C:
			if _, err := w.Write([]byte(": keepalive\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// LogoutHandler ends the session. The remote sign-out is best effort;
// the local record is always cleared.
func (h *AuthHandlers) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonutil.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.exchangeTimeout)
	defer cancel()

	if err := h.establisher.Logout(ctx); err != nil {
		log.LogErrorWithFields("server", "Logout failed", map[string]any{
			"error": err.Error(),
		})
		jsonutil.WriteInternalServerError(w, "Logout failed")
		return
	}

	if wantsJSON(r) {
		jsonutil.Write(w, map[string]string{"status": "signed_out"})
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

// failurePage renders the sign-in failure page with the user-facing
// message for an attempt error
func (h *AuthHandlers) failurePage(w http.ResponseWriter, err error) {
	log.LogWarnWithFields("server", "Sign-in attempt failed", map[string]any{
		"error": err.Error(),
	})

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusBadRequest)
	if tmplErr := failurePageTemplate.Execute(w, FailurePageData{Message: autherr.UserMessage(err)}); tmplErr != nil {
		log.LogErrorWithFields("server", "Failed to render failure page", map[string]any{
			"error": tmplErr.Error(),
		})
	}
}

func (h *AuthHandlers) loginSuccess(w http.ResponseWriter, r *http.Request) {
	if wantsJSON(r) {
		jsonutil.Write(w, h.notifier.Status())
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

func (h *AuthHandlers) loginFailure(w http.ResponseWriter, r *http.Request, err error) {
	log.LogWarnWithFields("server", "Password sign-in failed", map[string]any{
		"error": err.Error(),
	})

	if wantsJSON(r) {
		jsonutil.WriteUnauthorized(w, autherr.UserMessage(err))
		return
	}
	http.Redirect(w, r, "/?message="+url.QueryEscape(autherr.UserMessage(err))+"&type=error", http.StatusFound)
}

// credentialsFromRequest accepts both form posts from the sign-in page
// and JSON bodies from script clients
func credentialsFromRequest(r *http.Request) (username, password string, ok bool) {
	if r.Header.Get("Content-Type") == "application/json" {
		var body struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return "", "", false
		}
		username, password = body.Username, body.Password
	} else {
		if err := r.ParseForm(); err != nil {
			return "", "", false
		}
		username = r.PostFormValue("username")
		password = r.PostFormValue("password")
	}
	return username, password, username != "" && password != ""
}

func wantsJSON(r *http.Request) bool {
	return r.Header.Get("Content-Type") == "application/json" ||
		r.Header.Get("Accept") == "application/json"
}
