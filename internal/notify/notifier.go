// Package notify derives the authenticated/unauthenticated view consumers
// render from, and fans out changes to every listener. Each open browser
// tab holds one subscription (over the SSE endpoint), so a logout in one
// tab reaches the others within one event dispatch.
package notify

import (
	"context"
	"sync"

	"github.com/authfront/authfront/internal/log"
	"github.com/authfront/authfront/internal/session"
	"github.com/authfront/authfront/internal/store"
)

// Status is the derived authentication state. It never carries tokens.
type Status struct {
	IsAuthenticated bool              `json:"isAuthenticated"`
	User            *session.Identity `json:"user,omitempty"`
	Loading         bool              `json:"loading"`
}

// Notifier tracks the current Status and broadcasts changes
type Notifier struct {
	mu          sync.RWMutex
	status      Status
	subscribers map[int]chan Status
	nextSubID   int
	unsubscribe func()
}

// NewNotifier builds a notifier over the session store. Loading starts
// true and becomes false exactly once, here, after the first synchronous
// check of the persisted state - no network call is involved.
func NewNotifier(ctx context.Context, st store.Store) (*Notifier, error) {
	n := &Notifier{
		status:      Status{Loading: true},
		subscribers: make(map[int]chan Status),
	}

	rec, err := st.Load(ctx)
	if err != nil {
		return nil, err
	}
	n.status = Status{
		IsAuthenticated: rec.Established(),
		User:            session.IdentityOf(rec),
		Loading:         false,
	}

	events, cancel := st.Subscribe()
	n.unsubscribe = cancel
	go n.run(events)

	return n, nil
}

// Status returns the current derived state
func (n *Notifier) Status() Status {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.status
}

// Subscribe registers a listener for status changes. The returned cancel
// func must be called to release it.
func (n *Notifier) Subscribe() (<-chan Status, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextSubID
	n.nextSubID++
	ch := make(chan Status, 16)
	n.subscribers[id] = ch

	cancel := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if sub, ok := n.subscribers[id]; ok {
			delete(n.subscribers, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Close detaches the notifier from the store
func (n *Notifier) Close() {
	if n.unsubscribe != nil {
		n.unsubscribe()
	}
}

// run applies store events to the derived status and fans them out
func (n *Notifier) run(events <-chan store.Event) {
	for ev := range events {
		n.mu.Lock()
		n.status = Status{
			IsAuthenticated: ev.Authenticated,
			User:            ev.Identity,
			Loading:         false,
		}
		current := n.status
		listeners := len(n.subscribers)

		// Fan out under the lock so a concurrent cancel cannot close a
		// channel mid-send; sends never block
		for _, ch := range n.subscribers {
			select {
			case ch <- current:
			default:
				// Slow listener misses an update; it still holds a
				// consistent earlier status and the next event catches
				// it up
			}
		}
		n.mu.Unlock()

		log.LogDebugWithFields("notify", "Auth status changed", map[string]any{
			"authenticated": current.IsAuthenticated,
			"listeners":     listeners,
		})
	}
}
