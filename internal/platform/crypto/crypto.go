// Package crypto seals secret platform settings at rest with AES-256-GCM.
// The setting key is bound as associated data so a ciphertext cannot be
// replayed under another key.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

var ErrCiphertextTooShort = errors.New("ciphertext too short")

type Service interface {
	Seal(key, plaintext string) (string, error)
	Open(key, ciphertext string) (string, error)
}

type AesGcmService struct {
	gcm cipher.AEAD
}

func NewAesGcmService(hexKey string) (*AesGcmService, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &AesGcmService{gcm: gcm}, nil
}

// Seal returns hex(nonce || ciphertext || tag).
func (c *AesGcmService) Seal(key, plaintext string) (string, error) {
	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := c.gcm.Seal(nonce, nonce, []byte(plaintext), []byte(key))
	return hex.EncodeToString(sealed), nil
}

func (c *AesGcmService) Open(key, ciphertext string) (string, error) {
	buffer, err := hex.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("failed to decode hex: %w", err)
	}

	nonceSize := c.gcm.NonceSize()
	if len(buffer) < nonceSize {
		return "", ErrCiphertextTooShort
	}

	nonce, sealed := buffer[:nonceSize], buffer[nonceSize:]
	plain, err := c.gcm.Open(nil, nonce, sealed, []byte(key))
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}

	return string(plain), nil
}
