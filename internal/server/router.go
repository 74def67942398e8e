package server

import (
	"net/http"

	"github.com/authfront/authfront/internal/notify"
	"github.com/authfront/authfront/internal/sse"
)

// NewRouter builds the full route table
func NewRouter(auth *AuthHandlers) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", auth.LoginPageHandler)
	mux.HandleFunc("/auth/register", auth.RegisterHandler)
	mux.HandleFunc("/auth/login", auth.LoginHandler)
	mux.HandleFunc("/auth/google/authorize", auth.GoogleAuthorizeHandler)
	mux.HandleFunc("/auth/google/callback", auth.GoogleCallbackHandler)
	mux.HandleFunc("/auth/hosted/authorize", auth.HostedAuthorizeHandler)
	mux.HandleFunc("/auth/hosted/callback", auth.HostedCallbackHandler)
	mux.HandleFunc("/auth/hosted/complete", auth.HostedCompleteHandler)
	mux.HandleFunc("/auth/hosted/login", auth.HostedLoginHandler)
	mux.HandleFunc("/auth/hosted/register", auth.HostedRegisterHandler)
	mux.HandleFunc("/auth/status", auth.StatusHandler)
	mux.HandleFunc("/auth/events", auth.EventsHandler)
	mux.HandleFunc("/auth/logout", auth.LogoutHandler)
	mux.Handle("/healthz", NewHealthHandler())

	return mux
}

// writeStatusEvent emits one auth-status SSE event
func writeStatusEvent(w http.ResponseWriter, flusher http.Flusher, status notify.Status) error {
	return sse.WriteEvent(w, flusher, "auth_status", status)
}
