package store

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/authfront/authfront/internal/crypto"
	"github.com/authfront/authfront/internal/log"
	"github.com/authfront/authfront/internal/session"
)

// Fixed document IDs inside the configured collection: one slot for the
// JSON-encoded record, one for the raw bearer token
const (
	sessionDocID = "session"
	bearerDocID  = "bearer"
)

// Ensure FirestoreStore implements the Store interface
var _ Store = (*FirestoreStore)(nil)

// FirestoreStore persists the session slot to Google Cloud Firestore so it
// survives process restarts, with tokens encrypted at rest.
//
// Error handling strategy follows the split the rest of the system relies
// on: reads fail loud (a session that cannot be loaded must surface as
// "none", not a crash), writes log and continue (the in-process slot stays
// authoritative for notification ordering, so a transient Firestore outage
// degrades durability, not correctness).
type FirestoreStore struct {
	local      *MemoryStore
	client     *firestore.Client
	collection string
	encryptor  crypto.Encryptor
}

// sessionDoc is the Firestore layout of a session record. Token fields
// hold ciphertext.
type sessionDoc struct {
	AccessToken  string    `firestore:"access_token"`
	RefreshToken string    `firestore:"refresh_token,omitempty"`
	TokenType    string    `firestore:"token_type"`
	ExpiresAt    time.Time `firestore:"expires_at"`
	SubjectID    string    `firestore:"subject_id,omitempty"`
	SubjectEmail string    `firestore:"subject_email,omitempty"`
	Method       string    `firestore:"method,omitempty"`
	Origin       string    `firestore:"origin,omitempty"`
	UpdatedAt    time.Time `firestore:"updated_at"`
}

// bearerDoc holds the quick-access raw token under its own key
type bearerDoc struct {
	Token     string    `firestore:"token"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

// NewFirestoreStore creates a Firestore-backed session store and hydrates
// the local slot from any record a previous process run left behind
func NewFirestoreStore(ctx context.Context, projectID, database, collection string, encryptor crypto.Encryptor) (*FirestoreStore, error) {
	if encryptor == nil {
		return nil, fmt.Errorf("encryptor is required")
	}
	if collection == "" {
		collection = "authfront_sessions"
	}

	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	s := &FirestoreStore{
		local:      NewMemoryStore(),
		client:     client,
		collection: collection,
		encryptor:  encryptor,
	}

	if err := s.hydrate(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}

	return s, nil
}

// hydrate loads the persisted record into the local slot. Absence and
// corruption both normalize to an empty slot.
func (s *FirestoreStore) hydrate(ctx context.Context) error {
	snap, err := s.client.Collection(s.collection).Doc(sessionDocID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil
		}
		return fmt.Errorf("reading session document: %w", err)
	}

	var doc sessionDoc
	if err := snap.DataTo(&doc); err != nil {
		log.LogWarnWithFields("store", "Stored session is unreadable, treating as none", map[string]any{
			"error": err.Error(),
		})
		return nil
	}

	rec, err := s.fromDoc(&doc)
	if err != nil {
		log.LogWarnWithFields("store", "Stored session failed decryption, treating as none", map[string]any{
			"error": err.Error(),
		})
		return nil
	}

	// Hydration restores state rather than changing it; bypass publish
	s.local.mu.Lock()
	s.local.rec = rec
	s.local.bearer = rec.AccessToken
	s.local.mu.Unlock()

	log.LogInfoWithFields("store", "Restored persisted session", map[string]any{
		"subject": rec.SubjectEmail,
		"method":  string(rec.Method),
	})
	return nil
}

// Save writes through: local slot first (which notifies subscribers), then
// the remote documents
func (s *FirestoreStore) Save(ctx context.Context, rec *session.Session) error {
	if err := s.local.Save(ctx, rec); err != nil {
		return err
	}

	doc, err := s.toDoc(rec)
	if err != nil {
		log.LogErrorWithFields("store", "Failed to encrypt session for persistence", map[string]any{
			"error": err.Error(),
		})
		return nil
	}

	if _, err := s.client.Collection(s.collection).Doc(sessionDocID).Set(ctx, doc); err != nil {
		log.LogErrorWithFields("store", "Failed to persist session document", map[string]any{
			"error": err.Error(),
		})
		return nil
	}

	encBearer, err := s.encryptor.Encrypt(rec.AccessToken)
	if err == nil {
		_, err = s.client.Collection(s.collection).Doc(bearerDocID).Set(ctx, bearerDoc{
			Token:     encBearer,
			UpdatedAt: time.Now(),
		})
	}
	if err != nil {
		log.LogErrorWithFields("store", "Failed to persist bearer document", map[string]any{
			"error": err.Error(),
		})
	}
	return nil
}

// Load returns the locally held record; the slot was hydrated at startup
func (s *FirestoreStore) Load(ctx context.Context) (*session.Session, error) {
	return s.local.Load(ctx)
}

// BearerToken returns the raw access token, or "" when unauthenticated
func (s *FirestoreStore) BearerToken(ctx context.Context) (string, error) {
	return s.local.BearerToken(ctx)
}

// Clear removes the record locally (notifying subscribers) and deletes the
// remote documents; remote failures are logged, never blocking
func (s *FirestoreStore) Clear(ctx context.Context) error {
	if err := s.local.Clear(ctx); err != nil {
		return err
	}

	for _, docID := range []string{sessionDocID, bearerDocID} {
		if _, err := s.client.Collection(s.collection).Doc(docID).Delete(ctx); err != nil {
			log.LogErrorWithFields("store", "Failed to delete persisted document", map[string]any{
				"doc":   docID,
				"error": err.Error(),
			})
		}
	}
	return nil
}

// Subscribe registers a change listener on the local slot
func (s *FirestoreStore) Subscribe() (<-chan Event, func()) {
	return s.local.Subscribe()
}

// Close releases the Firestore client
func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

func (s *FirestoreStore) toDoc(rec *session.Session) (*sessionDoc, error) {
	encAccess, err := s.encryptor.Encrypt(rec.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("encrypting access token: %w", err)
	}

	doc := &sessionDoc{
		AccessToken:  encAccess,
		TokenType:    rec.TokenType,
		ExpiresAt:    rec.ExpiresAt,
		SubjectID:    rec.SubjectID,
		SubjectEmail: rec.SubjectEmail,
		Method:       string(rec.Method),
		Origin:       string(rec.Origin),
		UpdatedAt:    time.Now(),
	}

	if rec.RefreshToken != "" {
		encRefresh, err := s.encryptor.Encrypt(rec.RefreshToken)
		if err != nil {
			return nil, fmt.Errorf("encrypting refresh token: %w", err)
		}
		doc.RefreshToken = encRefresh
	}
	return doc, nil
}

func (s *FirestoreStore) fromDoc(doc *sessionDoc) (*session.Session, error) {
	accessToken, err := s.encryptor.Decrypt(doc.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("decrypting access token: %w", err)
	}

	rec := &session.Session{
		AccessToken:  accessToken,
		TokenType:    doc.TokenType,
		ExpiresAt:    doc.ExpiresAt,
		SubjectID:    doc.SubjectID,
		SubjectEmail: doc.SubjectEmail,
		Method:       session.Method(doc.Method),
		Origin:       session.Origin(doc.Origin),
	}

	if doc.RefreshToken != "" {
		refreshToken, err := s.encryptor.Decrypt(doc.RefreshToken)
		if err != nil {
			return nil, fmt.Errorf("decrypting refresh token: %w", err)
		}
		rec.RefreshToken = refreshToken
	}
	return rec, nil
}
