// Package devbackend is a self-contained stand-in for the credential
// backend: user registration and password verification over a local
// sqlite database, HS256 bearer tokens, and the server-side half of the
// Google code exchange. It exists so the front end can be developed and
// demoed without the real backend deployment.
package devbackend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	_ "modernc.org/sqlite"
)

// Auth methods recorded per user. A user who registered locally and later
// signed in with Google holds "both".
const (
	AuthMethodLocal  = "local"
	AuthMethodGoogle = "google"
	AuthMethodBoth   = "both"
)

var (
	// ErrUserExists means the username or email is already registered
	ErrUserExists = errors.New("user already registered")

	// ErrInvalidCredentials covers both unknown users and wrong passwords
	ErrInvalidCredentials = errors.New("incorrect username or password")

	// ErrUserNotFound means no user matched the lookup
	ErrUserNotFound = errors.New("user not found")
)

// User is a stored account
type User struct {
	ID             string
	Username       string
	Email          string
	HashedPassword string
	GoogleID       string
	Name           string
	Picture        string
	AuthMethod     string
	IsActive       bool
}

// UserStore persists accounts in sqlite
type UserStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id              TEXT PRIMARY KEY,
    username        TEXT NOT NULL UNIQUE,
    email           TEXT,
    hashed_password TEXT,
    google_id       TEXT,
    name            TEXT,
    picture         TEXT,
    auth_method     TEXT NOT NULL DEFAULT 'local',
    is_active       INTEGER NOT NULL DEFAULT 1
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_users_google_id ON users(google_id) WHERE google_id != '';
CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
`

// OpenUserStore opens (or creates) the user database at path. Use
// ":memory:" for an ephemeral store.
func OpenUserStore(path string) (*UserStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening user database: %w", err)
	}

	// sqlite allows one writer; serializing through a single connection
	// avoids SQLITE_BUSY under concurrent handlers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating user schema: %w", err)
	}
	return &UserStore{db: db}, nil
}

// Close closes the underlying database
func (s *UserStore) Close() error {
	return s.db.Close()
}

// CreateUser registers a username/password account
func (s *UserStore) CreateUser(ctx context.Context, username, email, password string) (*User, error) {
	if existing, err := s.ByUsername(ctx, username); err == nil && existing != nil {
		return nil, ErrUserExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user := &User{
		ID:             uuid.NewString(),
		Username:       username,
		Email:          email,
		HashedPassword: string(hash),
		AuthMethod:     AuthMethodLocal,
		IsActive:       true,
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, email, hashed_password, google_id, name, picture, auth_method, is_active)
		 VALUES (?, ?, ?, ?, '', '', '', ?, 1)`,
		user.ID, user.Username, user.Email, user.HashedPassword, user.AuthMethod)
	if err != nil {
		return nil, fmt.Errorf("inserting user: %w", err)
	}
	return user, nil
}

// Authenticate verifies a username/password pair. Unknown users and wrong
// passwords are indistinguishable to the caller.
func (s *UserStore) Authenticate(ctx context.Context, username, password string) (*User, error) {
	user, err := s.ByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			// Burn comparable time so a missing user is not detectable
			// through response latency
			bcrypt.CompareHashAndPassword([]byte("$2a$10$0000000000000000000000uGZwCcaqrYk8lHYbKBGYnFTEYOZVyAbG"), []byte(password))
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.IsActive || user.HashedPassword == "" {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// ByUsername finds a user by username
func (s *UserStore) ByUsername(ctx context.Context, username string) (*User, error) {
	return s.queryOne(ctx, `SELECT id, username, email, hashed_password, google_id, name, picture, auth_method, is_active
		FROM users WHERE username = ?`, username)
}

// ByGoogleID finds a user by their Google subject ID
func (s *UserStore) ByGoogleID(ctx context.Context, googleID string) (*User, error) {
	return s.queryOne(ctx, `SELECT id, username, email, hashed_password, google_id, name, picture, auth_method, is_active
		FROM users WHERE google_id = ?`, googleID)
}

// ByEmail finds a user by email
func (s *UserStore) ByEmail(ctx context.Context, email string) (*User, error) {
	return s.queryOne(ctx, `SELECT id, username, email, hashed_password, google_id, name, picture, auth_method, is_active
		FROM users WHERE email = ?`, email)
}

// UpsertGoogleUser resolves the local account for a Google sign-in:
// match on google_id first, then link an existing account by email
// (recording that both methods now work), else create a fresh account.
func (s *UserStore) UpsertGoogleUser(ctx context.Context, googleID, email, name, picture string) (*User, error) {
	if user, err := s.ByGoogleID(ctx, googleID); err == nil {
		return user, nil
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	if email != "" {
		if user, err := s.ByEmail(ctx, email); err == nil {
			_, err := s.db.ExecContext(ctx,
				`UPDATE users SET google_id = ?, name = ?, picture = ?, auth_method = ? WHERE id = ?`,
				googleID, name, picture, AuthMethodBoth, user.ID)
			if err != nil {
				return nil, fmt.Errorf("linking google account: %w", err)
			}
			return s.ByEmail(ctx, email)
		} else if !errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
	}

	user := &User{
		ID:         uuid.NewString(),
		Username:   usernameFromEmail(email, googleID),
		Email:      email,
		GoogleID:   googleID,
		Name:       name,
		Picture:    picture,
		AuthMethod: AuthMethodGoogle,
		IsActive:   true,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, email, hashed_password, google_id, name, picture, auth_method, is_active)
		 VALUES (?, ?, ?, '', ?, ?, ?, ?, 1)`,
		user.ID, user.Username, user.Email, user.GoogleID, user.Name, user.Picture, user.AuthMethod)
	if err != nil {
		return nil, fmt.Errorf("inserting google user: %w", err)
	}
	return user, nil
}

func (s *UserStore) queryOne(ctx context.Context, query string, arg any) (*User, error) {
	var user User
	var isActive int
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID, &user.Username, &user.Email, &user.HashedPassword,
		&user.GoogleID, &user.Name, &user.Picture, &user.AuthMethod, &isActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	user.IsActive = isActive != 0
	return &user, nil
}
