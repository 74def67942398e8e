package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authfront/authfront/internal/session"
)

func testSession(token string) *session.Session {
	return &session.Session{
		AccessToken:  token,
		TokenType:    "bearer",
		ExpiresAt:    time.Now().Add(time.Hour),
		SubjectEmail: "user@example.com",
		Method:       session.MethodLocal,
	}
}

func TestMemoryStoreSaveLoadRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	rec := testSession("abc123")
	require.NoError(t, s.Save(ctx, rec))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	bearer, err := s.BearerToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc123", bearer)
}

func TestMemoryStoreLoadEmpty(t *testing.T) {
	s := NewMemoryStore()

	got, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)

	bearer, err := s.BearerToken(context.Background())
	require.NoError(t, err)
	assert.Empty(t, bearer)
}

func TestMemoryStoreSaveOverwrites(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, testSession("first")))
	require.NoError(t, s.Save(ctx, testSession("second")))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", got.AccessToken)
}

func TestMemoryStoreClear(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, testSession("abc123")))
	require.NoError(t, s.Clear(ctx))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	bearer, err := s.BearerToken(ctx)
	require.NoError(t, err)
	assert.Empty(t, bearer)
}

func TestMemoryStorePublishesEvents(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	events, cancel := s.Subscribe()
	defer cancel()

	require.NoError(t, s.Save(ctx, testSession("abc123")))

	select {
	case ev := <-events:
		assert.True(t, ev.Authenticated)
		require.NotNil(t, ev.Identity)
		assert.Equal(t, "user@example.com", ev.Identity.Email)
	case <-time.After(time.Second):
		t.Fatal("no event after save")
	}

	require.NoError(t, s.Clear(ctx))

	select {
	case ev := <-events:
		assert.False(t, ev.Authenticated)
		assert.Nil(t, ev.Identity)
	case <-time.After(time.Second):
		t.Fatal("no event after clear")
	}
}

func TestMemoryStoreEventsNeverCarryTokens(t *testing.T) {
	s := NewMemoryStore()

	events, cancel := s.Subscribe()
	defer cancel()

	require.NoError(t, s.Save(context.Background(), testSession("abc123")))

	ev := <-events
	require.NotNil(t, ev.Identity)
	// Identity is the derived display view only
	assert.Equal(t, "user@example.com", ev.Identity.Email)
	assert.Equal(t, session.MethodLocal, ev.Identity.Method)
}

func TestMemoryStoreMultipleSubscribers(t *testing.T) {
	s := NewMemoryStore()

	chA, cancelA := s.Subscribe()
	defer cancelA()
	chB, cancelB := s.Subscribe()
	defer cancelB()

	require.NoError(t, s.Clear(context.Background()))

	for name, ch := range map[string]<-chan Event{"A": chA, "B": chB} {
		select {
		case ev := <-ch:
			assert.False(t, ev.Authenticated)
		case <-time.After(time.Second):
			t.Fatalf("subscriber %s saw no event", name)
		}
	}
}

func TestMemoryStoreCancelledSubscriberStopsReceiving(t *testing.T) {
	s := NewMemoryStore()

	ch, cancel := s.Subscribe()
	cancel()

	require.NoError(t, s.Clear(context.Background()))

	_, open := <-ch
	assert.False(t, open, "channel should be closed after cancel")
}
