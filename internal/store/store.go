// Package store owns the persisted session record. At most one record is
// active; a save replaces whatever was there. The store publishes change
// events so consumers (the status notifier among possibly many) observe
// login and logout without polling - the cross-tab storage signal of the
// browser world.
package store

import (
	"context"
	"errors"

	"github.com/authfront/authfront/internal/session"
)

// ErrNoSession is used internally by backends to signal an absent record.
// Load never returns it to callers: absence is normalized to (nil, nil).
var ErrNoSession = errors.New("no session stored")

// Event describes an authentication state change. It carries only the
// derived view, never raw tokens.
type Event struct {
	Authenticated bool
	Identity      *session.Identity
}

// Store is the single mutable session slot.
//
// Save replaces any existing record and notifies subscribers. Load returns
// the current record, or nil when absent or unreadable (a corrupt stored
// value is treated as "none", never as an error). Clear removes the record
// and notifies subscribers of the unauthenticated state. BearerToken is
// the quick-access raw token kept under its own key for plain HTTP calls.
//
// Concurrent writers race benignly: the last save wins, and every record
// is a valid self-consistent replacement for any prior one.
type Store interface {
	Save(ctx context.Context, rec *session.Session) error
	Load(ctx context.Context) (*session.Session, error)
	BearerToken(ctx context.Context) (string, error)
	Clear(ctx context.Context) error

	// Subscribe registers a change listener. The returned cancel func
	// must be called to release it.
	Subscribe() (<-chan Event, func())
}
