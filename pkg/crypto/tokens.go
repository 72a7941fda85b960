// Package crypto encrypts data source credentials at rest.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrInvalidKey is returned when the encryption key is empty.
	ErrInvalidKey = errors.New("invalid encryption key: must not be empty")
	// ErrDecryptionFailed is returned for malformed ciphertext, a wrong key, or a
	// ciphertext that was sealed for a different data source.
	ErrDecryptionFailed = errors.New("decryption failed: invalid ciphertext or wrong key")
)

// TokenCipher seals provider tokens with AES-256-GCM. Each ciphertext is bound
// to its data source id as additional data, so a token copied onto another
// row will not decrypt.
type TokenCipher struct {
	gcm cipher.AEAD
}

// NewTokenCipher builds a cipher from a base64-encoded 32-byte key
// (openssl rand -base64 32). Any other non-empty input is treated as a
// passphrase and hashed to 32 bytes with SHA-256.
func NewTokenCipher(keyInput string) (*TokenCipher, error) {
	if keyInput == "" {
		return nil, ErrInvalidKey
	}

	key, err := base64.StdEncoding.DecodeString(keyInput)
	if err != nil || len(key) != 32 {
		sum := sha256.Sum256([]byte(keyInput))
		key = sum[:]
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &TokenCipher{gcm: gcm}, nil
}

// Seal encrypts a token for one data source and returns base64(nonce || ciphertext || tag).
// An empty token stays empty.
func (c *TokenCipher) Seal(dataSourceID uuid.UUID, token string) (string, error) {
	if token == "" {
		return "", nil
	}

	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := c.gcm.Seal(nonce, nonce, []byte(token), dataSourceID[:])
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal for the same data source id. An empty input stays empty.
func (c *TokenCipher) Open(dataSourceID uuid.UUID, sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}

	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("%w: base64 decode failed", ErrDecryptionFailed)
	}

	nonceSize := c.gcm.NonceSize()
	if len(data) < nonceSize+c.gcm.Overhead() {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecryptionFailed)
	}

	plaintext, err := c.gcm.Open(nil, data[:nonceSize], data[nonceSize:], dataSourceID[:])
	if err != nil {
		return "", fmt.Errorf("%w: authentication failed", ErrDecryptionFailed)
	}
	return string(plaintext), nil
}
