package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEstablished(t *testing.T) {
	assert.False(t, (*Session)(nil).Established())
	assert.False(t, (&Session{}).Established())
	assert.True(t, (&Session{AccessToken: "tok"}).Established())
}

func TestExpired(t *testing.T) {
	now := time.Now()

	assert.False(t, (*Session)(nil).Expired(now))
	assert.False(t, (&Session{AccessToken: "tok"}).Expired(now), "no reported expiry never expires")
	assert.False(t, (&Session{ExpiresAt: now.Add(time.Hour)}).Expired(now))
	assert.True(t, (&Session{ExpiresAt: now.Add(-time.Second)}).Expired(now))
}

func TestIdentityOf(t *testing.T) {
	assert.Nil(t, IdentityOf(nil))
	assert.Nil(t, IdentityOf(&Session{}))

	id := IdentityOf(&Session{
		AccessToken:  "tok",
		SubjectID:    "7",
		SubjectEmail: "alice@example.com",
		Method:       MethodLocal,
	})
	assert.Equal(t, "7", id.SubjectID)
	assert.Equal(t, "alice@example.com", id.Email)
	assert.Equal(t, MethodLocal, id.Method)
}
