package security

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialCipher_EncryptDecryptRoundTrip(t *testing.T) {
	t.Parallel()

	c, err := NewCredentialCipher([]byte("01234567890123456789012345678901"))
	require.NoError(t, err)

	plaintext := []byte(`{"apiKey":"sk-test-secret"}`)
	blob, err := c.Encrypt(plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, blob)

	got, err := c.Decrypt(blob)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestCredentialCipher_EncryptIsRandomized(t *testing.T) {
	t.Parallel()

	c, err := NewCredentialCipher([]byte("01234567890123456789012345678901"))
	require.NoError(t, err)

	plaintext := []byte("same plaintext")
	a, err := c.Encrypt(plaintext)
	require.NoError(t, err)
	b, err := c.Encrypt(plaintext)
	require.NoError(t, err)

	assert.NotEqual(t, a, b, "distinct random IVs must produce distinct ciphertexts")
}

func TestNewCredentialCipher_RejectsWrongKeyLength(t *testing.T) {
	t.Parallel()

	_, err := NewCredentialCipher([]byte("too-short"))
	assert.Error(t, err)
}

func TestCredentialCipher_Decrypt_RejectsShortBlob(t *testing.T) {
	t.Parallel()

	c, err := NewCredentialCipher([]byte("01234567890123456789012345678901"))
	require.NoError(t, err)

	_, err = c.Decrypt([]byte("short"))
	assert.ErrorIs(t, err, ErrCiphertextTooShort)
}

func TestCredentialCipher_Decrypt_RejectsTamperedBlob(t *testing.T) {
	t.Parallel()

	c, err := NewCredentialCipher([]byte("01234567890123456789012345678901"))
	require.NoError(t, err)

	blob, err := c.Encrypt([]byte("some plaintext value"))
	require.NoError(t, err)
	blob[len(blob)-1] ^= 0xFF

	_, err = c.Decrypt(blob)
	assert.Error(t, err)
}

func TestAPIKeySigner_SignVerifyRoundTrip(t *testing.T) {
	t.Parallel()

	s := NewAPIKeySigner([]byte("hmac-secret"))
	tag := s.Sign("key-123")
	assert.True(t, s.Verify("key-123", tag))
}

func TestAPIKeySigner_Verify_RejectsWrongKeyOrTag(t *testing.T) {
	t.Parallel()

	s := NewAPIKeySigner([]byte("hmac-secret"))
	tag := s.Sign("key-123")

	assert.False(t, s.Verify("key-456", tag))
	assert.False(t, s.Verify("key-123", strings.ToUpper(tag)))
	assert.False(t, s.Verify("key-123", "not-a-real-tag"))
}

func TestMediaTokenIssuer_IssueVerifyRoundTrip(t *testing.T) {
	t.Parallel()

	issuer, err := NewMediaTokenIssuer([]byte("jwt-secret"))
	require.NoError(t, err)

	token, err := issuer.Issue("call-abc")
	require.NoError(t, err)

	assert.NoError(t, issuer.Verify(token, "call-abc"))
}

func TestMediaTokenIssuer_Verify_RejectsWrongCallID(t *testing.T) {
	t.Parallel()

	issuer, err := NewMediaTokenIssuer([]byte("jwt-secret"))
	require.NoError(t, err)

	token, err := issuer.Issue("call-abc")
	require.NoError(t, err)

	assert.Error(t, issuer.Verify(token, "call-xyz"))
}

func TestMediaTokenIssuer_Verify_RejectsExpiredToken(t *testing.T) {
	t.Parallel()

	issuer, err := NewMediaTokenIssuer([]byte("jwt-secret"))
	require.NoError(t, err)
	issuer.ttl = -time.Second

	token, err := issuer.Issue("call-abc")
	require.NoError(t, err)

	assert.Error(t, issuer.Verify(token, "call-abc"))
}

func TestMediaTokenIssuer_Verify_RejectsWrongSecret(t *testing.T) {
	t.Parallel()

	issuer, err := NewMediaTokenIssuer([]byte("jwt-secret"))
	require.NoError(t, err)
	token, err := issuer.Issue("call-abc")
	require.NoError(t, err)

	other, err := NewMediaTokenIssuer([]byte("different-secret"))
	require.NoError(t, err)

	assert.Error(t, other.Verify(token, "call-abc"))
}

func TestMediaTokenIssuer_Verify_RejectsGarbageToken(t *testing.T) {
	t.Parallel()

	issuer, err := NewMediaTokenIssuer([]byte("jwt-secret"))
	require.NoError(t, err)

	assert.Error(t, issuer.Verify("not-a-jwt", "call-abc"))
}
