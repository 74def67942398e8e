// Command authfront-devbackend runs the stand-in credential backend:
// user registration, password token issuance, and the Google code
// exchange, backed by a local sqlite database.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/authfront/authfront/internal/devbackend"
	"github.com/authfront/authfront/internal/log"
)

var BuildVersion = "dev"

func main() {
	addr := flag.String("addr", ":8000", "listen address")
	dbPath := flag.String("db", "authfront-dev.db", "path to the sqlite user database")
	tokenTTL := flag.Duration("token-ttl", 20*time.Minute, "bearer token lifetime")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println(BuildVersion)
		return
	}

	secret := os.Getenv("DEVBACKEND_JWT_SECRET")
	if len(secret) < 32 {
		fmt.Fprintf(os.Stderr, "Error: DEVBACKEND_JWT_SECRET must be set to at least 32 characters\n")
		os.Exit(1)
	}

	users, err := devbackend.OpenUserStore(*dbPath)
	if err != nil {
		log.LogError("Failed to open user store: %v", err)
		os.Exit(1)
	}
	defer users.Close()

	var google *devbackend.GoogleFlow
	clientID := os.Getenv("GOOGLE_CLIENT_ID")
	clientSecret := os.Getenv("GOOGLE_CLIENT_SECRET")
	redirectURI := os.Getenv("GOOGLE_REDIRECT_URI")
	if clientID != "" || clientSecret != "" || redirectURI != "" {
		google, err = devbackend.NewGoogleFlow(clientID, clientSecret, redirectURI)
		if err != nil {
			log.LogError("Failed to configure Google flow: %v", err)
			os.Exit(1)
		}
	} else {
		log.LogWarn("Google flow not configured, google routes disabled")
	}

	issuer := devbackend.NewTokenIssuer([]byte(secret), *tokenTTL)
	router := devbackend.NewRouter(devbackend.NewHandlers(users, issuer, google))

	log.LogInfoWithFields("main", "Starting authfront-devbackend", map[string]any{
		"version": BuildVersion,
		"addr":    *addr,
		"db":      *dbPath,
	})

	if err := http.ListenAndServe(*addr, router); err != nil {
		log.LogError("Server error: %v", err)
		os.Exit(1)
	}
}
