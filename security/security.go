// Package security implements three cryptographic primitives: AES-256-CBC
// at-rest encryption of provider-credential blobs, HMAC-signed tenant API
// keys, and short-lived JOSE-signed media tokens binding a WebSocket
// connection to one callId.
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

// ErrCiphertextTooShort is returned when a credential blob is shorter than
// one AES block (too short to contain the IV prefix).
var ErrCiphertextTooShort = errors.New("security: ciphertext shorter than IV")

// CredentialCipher encrypts/decrypts provider-credential blobs with
// AES-256-CBC, storing a 16-byte random IV as the ciphertext prefix. See
// DESIGN.md for why this stays on crypto/aes + crypto/cipher rather than a
// third-party library.
type CredentialCipher struct {
	block cipher.Block
}

// NewCredentialCipher builds a CredentialCipher from a 32-byte AES-256 key
// (the ENCRYPTION_KEY environment variable,).
func NewCredentialCipher(key []byte) (*CredentialCipher, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("security: ENCRYPTION_KEY must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("security: new cipher: %w", err)
	}
	return &CredentialCipher{block: block}, nil
}

// Encrypt pads plaintext with PKCS#7, prefixes a random IV, and returns the
// combined blob.
func (c *CredentialCipher) Encrypt(plaintext []byte) ([]byte, error) {
	padded := pkcs7Pad(plaintext, aes.BlockSize)

	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("security: generate iv: %w", err)
	}

	ciphertext := make([]byte, len(padded))
	mode := cipher.NewCBCEncrypter(c.block, iv)
	mode.CryptBlocks(ciphertext, padded)

	return append(iv, ciphertext...), nil
}

// Decrypt reverses Encrypt: strips the 16-byte IV prefix, decrypts, and
// removes the PKCS#7 padding.
func (c *CredentialCipher) Decrypt(blob []byte) ([]byte, error) {
	if len(blob) < aes.BlockSize {
		return nil, ErrCiphertextTooShort
	}
	iv, ciphertext := blob[:aes.BlockSize], blob[aes.BlockSize:]
	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, errors.New("security: ciphertext is not a multiple of the block size")
	}

	plaintext := make([]byte, len(ciphertext))
	mode := cipher.NewCBCDecrypter(c.block, iv)
	mode.CryptBlocks(plaintext, ciphertext)

	return pkcs7Unpad(plaintext)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padding := make([]byte, padLen)
	for i := range padding {
		padding[i] = byte(padLen)
	}
	return append(append([]byte{}, data...), padding...)
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("security: empty plaintext")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > aes.BlockSize || padLen > len(data) {
		return nil, errors.New("security: invalid pkcs7 padding")
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, errors.New("security: invalid pkcs7 padding")
		}
	}
	return data[:len(data)-padLen], nil
}

// APIKeySigner produces and verifies HMAC-SHA256 tenant API keys from the
// API_KEY_SECRET configuration value.
type APIKeySigner struct {
	secret []byte
}

// NewAPIKeySigner builds a signer from the API_KEY_SECRET environment
// value.
func NewAPIKeySigner(secret []byte) *APIKeySigner {
	return &APIKeySigner{secret: secret}
}

// Sign returns the hex-encoded HMAC-SHA256 tag for keyID, which callers
// concatenate with keyID to form the distributed API key.
func (s *APIKeySigner) Sign(keyID string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(keyID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether tag is the correct HMAC-SHA256 tag for keyID,
// using a constant-time comparison.
func (s *APIKeySigner) Verify(keyID, tag string) bool {
	expected := s.Sign(keyID)
	return hmac.Equal([]byte(expected), []byte(tag))
}

// MediaTokenClaims is the JWT payload bound to one call's media socket.
type MediaTokenClaims struct {
	jwt.Claims
	CallID string `json:"callId"`
}

// MediaTokenIssuer mints and verifies short-lived JOSE-signed tokens that
// gate access to a call's WebSocket.
type MediaTokenIssuer struct {
	signer jose.Signer
	key    []byte
	ttl    time.Duration
}

// DefaultMediaTokenTTL bounds how long a media token remains valid after
// issuance — long enough to cover WS upgrade latency, short enough that a
// leaked token can't be replayed against a future call.
const DefaultMediaTokenTTL = 2 * time.Minute

// NewMediaTokenIssuer builds an issuer from the JWT_SECRET environment
// value (HS256).
func NewMediaTokenIssuer(secret []byte) (*MediaTokenIssuer, error) {
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: secret}, nil)
	if err != nil {
		return nil, fmt.Errorf("security: new signer: %w", err)
	}
	return &MediaTokenIssuer{signer: signer, key: secret, ttl: DefaultMediaTokenTTL}, nil
}

// Issue mints a token bound to callID, valid for the issuer's TTL.
func (i *MediaTokenIssuer) Issue(callID string) (string, error) {
	now := time.Now()
	claims := MediaTokenClaims{
		Claims: jwt.Claims{
			Subject:  callID,
			IssuedAt: jwt.NewNumericDate(now),
			Expiry:   jwt.NewNumericDate(now.Add(i.ttl)),
		},
		CallID: callID,
	}
	return jwt.Signed(i.signer).Claims(claims).Serialize()
}

// Verify checks a media token's signature and expiry, and that it is bound
// to callID. The WS upgrade handler must call this before accepting the
// connection.
func (i *MediaTokenIssuer) Verify(token, callID string) error {
	parsed, err := jwt.ParseSigned(token, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return fmt.Errorf("security: parse media token: %w", err)
	}

	var claims MediaTokenClaims
	if err := parsed.Claims(i.key, &claims); err != nil {
		return fmt.Errorf("security: verify media token: %w", err)
	}

	if err := claims.Claims.ValidateWithLeeway(jwt.Expected{Time: time.Now()}, 0); err != nil {
		return fmt.Errorf("security: media token expired or not yet valid: %w", err)
	}

	if claims.CallID != callID {
		return errors.New("security: media token not bound to this call")
	}
	return nil
}
