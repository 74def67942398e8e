package crypto

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSecureToken(t *testing.T) {
	token, err := GenerateSecureToken()
	assert.NoError(t, err)
	assert.NotEmpty(t, token)

	// Each call generates a unique token
	token2, err := GenerateSecureToken()
	assert.NoError(t, err)
	assert.NotEqual(t, token, token2)

	// base64 encoding of 32 bytes should be at least 40 chars
	assert.GreaterOrEqual(t, len(token), 40)
}

func TestSignData(t *testing.T) {
	key := []byte("test-signing-key-0123456789abcdef")

	sig := SignData("hello", key)
	assert.NotEmpty(t, sig)

	assert.True(t, ValidateSignedData("hello", sig, key))
	assert.False(t, ValidateSignedData("hellp", sig, key))
	assert.False(t, ValidateSignedData("hello", sig, []byte("another-key-0123456789abcdefghij")))
	assert.False(t, ValidateSignedData("hello", "not base64 !!!", key))
}

func TestTokenSignerRoundTrip(t *testing.T) {
	signer := NewTokenSigner([]byte("test-signing-key-0123456789abcdef"), time.Minute)

	type payload struct {
		State string `json:"state"`
	}

	token, err := signer.Sign(payload{State: "abc"})
	require.NoError(t, err)

	var got payload
	require.NoError(t, signer.Verify(token, &got))
	assert.Equal(t, "abc", got.State)
}

func TestTokenSignerRejectsTampering(t *testing.T) {
	signer := NewTokenSigner([]byte("test-signing-key-0123456789abcdef"), time.Minute)

	token, err := signer.Sign(map[string]string{"state": "abc"})
	require.NoError(t, err)

	var got map[string]string
	assert.Error(t, signer.Verify(token+"x", &got))
	assert.Error(t, signer.Verify("garbage", &got))
}

func TestTokenSignerExpiry(t *testing.T) {
	signer := NewTokenSigner([]byte("test-signing-key-0123456789abcdef"), -time.Second)

	token, err := signer.Sign(map[string]string{"state": "abc"})
	require.NoError(t, err)

	var got map[string]string
	err = signer.Verify(token, &got)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expired")
}

func TestAESEncryptorRoundTrip(t *testing.T) {
	enc, err := NewAESEncryptor([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	ciphertext, err := enc.Encrypt("bearer-token-value")
	require.NoError(t, err)
	assert.NotEqual(t, "bearer-token-value", ciphertext)

	plaintext, err := enc.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "bearer-token-value", plaintext)

	// Same plaintext encrypts differently each time due to random nonce
	ciphertext2, err := enc.Encrypt("bearer-token-value")
	require.NoError(t, err)
	assert.NotEqual(t, ciphertext, ciphertext2)
}

func TestAESEncryptorRejectsBadInput(t *testing.T) {
	_, err := NewAESEncryptor([]byte("short"))
	assert.Error(t, err)

	enc, err := NewAESEncryptor([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	_, err = enc.Decrypt("not base64 !!!")
	assert.Error(t, err)

	_, err = enc.Decrypt("c2hvcnQ=")
	assert.Error(t, err)
}
