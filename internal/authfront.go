// Package internal wires the authentication front end together: session
// store, status notifier, flow establisher, and the HTTP surface.
package internal

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/authfront/authfront/internal/backend"
	"github.com/authfront/authfront/internal/config"
	"github.com/authfront/authfront/internal/crypto"
	"github.com/authfront/authfront/internal/establish"
	"github.com/authfront/authfront/internal/idp"
	"github.com/authfront/authfront/internal/log"
	"github.com/authfront/authfront/internal/notify"
	"github.com/authfront/authfront/internal/server"
	"github.com/authfront/authfront/internal/stateguard"
	"github.com/authfront/authfront/internal/store"
)

// AuthFront represents the complete authentication front end application
type AuthFront struct {
	config     config.Config
	httpServer *server.HTTPServer
	store      store.Store
	notifier   *notify.Notifier
}

// NewAuthFront creates the application with all dependencies built
func NewAuthFront(ctx context.Context, cfg config.Config) (*AuthFront, error) {
	log.LogInfoWithFields("authfront", "Building authentication front end", map[string]any{
		"baseURL": cfg.Front.BaseURL,
		"storage": string(cfg.Front.Storage),
		"google":  cfg.Google != nil,
		"hosted":  cfg.Hosted != nil,
	})

	st, err := setupStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to setup session store: %w", err)
	}

	notifier, err := notify.NewNotifier(ctx, st)
	if err != nil {
		return nil, fmt.Errorf("failed to start status notifier: %w", err)
	}

	guard := stateguard.NewGuard([]byte(cfg.Front.SigningKey))
	backendClient := backend.NewClient(cfg.Backend.BaseURL)

	var hosted establish.Hosted
	if cfg.Hosted != nil {
		hosted = idp.NewHostedProvider(cfg.Hosted.BaseURL, string(cfg.Hosted.APIKey), cfg.Hosted.OAuthBackend)
	}

	var google *idp.GoogleAuthorizer
	if cfg.Google != nil {
		google = idp.NewGoogleAuthorizer(cfg.Google.ClientID, cfg.Google.RedirectURI)
	}

	establisher := establish.NewEstablisher(guard, st, backendClient, hosted, google)

	authHandlers := server.NewAuthHandlers(
		establisher,
		notifier,
		cfg.Front.BaseURL,
		cfg.Google != nil,
		cfg.Hosted != nil,
		cfg.Front.ExchangeTimeout,
	)

	httpServer := server.NewHTTPServer(server.NewRouter(authHandlers), cfg.Front.Addr)

	return &AuthFront{
		config:     cfg,
		httpServer: httpServer,
		store:      st,
		notifier:   notifier,
	}, nil
}

// setupStore builds the configured session store backend
func setupStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	switch cfg.Front.Storage {
	case config.StorageFirestore:
		encryptor, err := crypto.NewAESEncryptor([]byte(cfg.Front.EncryptionKey))
		if err != nil {
			return nil, fmt.Errorf("creating session encryptor: %w", err)
		}
		return store.NewFirestoreStore(ctx, cfg.Front.GCPProject, cfg.Front.FirestoreDatabase, cfg.Front.FirestoreCollection, encryptor)
	default:
		return store.NewMemoryStore(), nil
	}
}

// Run starts the application and blocks until a shutdown signal or a
// server error
func (a *AuthFront) Run() error {
	log.LogInfoWithFields("authfront", "Starting authentication front end", map[string]any{
		"addr": a.config.Front.Addr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.httpServer.Start(); err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.LogInfoWithFields("authfront", "Starting graceful shutdown", map[string]any{
			"timeout": "30s",
		})

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return a.httpServer.Stop(shutdownCtx)
	})

	err := g.Wait()

	a.notifier.Close()
	if closer, ok := a.store.(interface{ Close() error }); ok {
		if closeErr := closer.Close(); closeErr != nil {
			log.LogErrorWithFields("authfront", "Session store close error", map[string]any{
				"error": closeErr.Error(),
			})
		}
	}

	if err != nil {
		log.LogErrorWithFields("authfront", "Application stopped with error", map[string]any{
			"error": err.Error(),
		})
		return err
	}

	log.LogInfoWithFields("authfront", "Application shutdown complete", nil)
	return nil
}
