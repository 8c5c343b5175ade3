package integrations

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	encryptedPrefix = "enc:v1:"
	keyContext      = "beacon-integration-config"
)

var (
	ErrDecryptionFailed     = errors.New("decryption failed")
	ErrInvalidCiphertext    = errors.New("invalid ciphertext")
	ErrEncryptionKeyMissing = errors.New("stored config is encrypted but no encryption key is configured")
)

// Encryptor seals config blobs with AES-GCM. A nil *Encryptor is valid and
// leaves blobs in plain JSON.
type Encryptor struct {
	aead cipher.AEAD
}

// NewEncryptor derives an AES-256 key from a base64 master key with HKDF.
// An empty master key returns nil (encryption disabled).
func NewEncryptor(masterKeyB64 string) (*Encryptor, error) {
	if masterKeyB64 == "" {
		return nil, nil
	}

	masterKey, err := base64.StdEncoding.DecodeString(masterKeyB64)
	if err != nil {
		return nil, fmt.Errorf("decode master key: %w", err)
	}
	if len(masterKey) < 16 {
		return nil, errors.New("master key must be at least 16 bytes")
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, masterKey, nil, []byte(keyContext)), key); err != nil {
		return nil, fmt.Errorf("derive encryption key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM cipher: %w", err)
	}
	return &Encryptor{aead: aead}, nil
}

// Enabled reports whether blobs are encrypted on write.
func (e *Encryptor) Enabled() bool {
	return e != nil && e.aead != nil
}

// Seal encrypts plaintext and returns a prefixed base64 string. The nonce is
// prepended to the ciphertext.
func (e *Encryptor) Seal(plaintext []byte) (string, error) {
	if !e.Enabled() {
		return string(plaintext), nil
	}

	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := e.aead.Seal(nonce, nonce, plaintext, nil)
	return encryptedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. Unprefixed input is returned unchanged so rows written
// before encryption was enabled stay readable.
func (e *Encryptor) Open(stored string) ([]byte, error) {
	if !strings.HasPrefix(stored, encryptedPrefix) {
		return []byte(stored), nil
	}
	if !e.Enabled() {
		return nil, ErrEncryptionKeyMissing
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, encryptedPrefix))
	if err != nil {
		return nil, fmt.Errorf("%w: base64 decode failed", ErrInvalidCiphertext)
	}

	nonceSize := e.aead.NonceSize()
	if len(data) < nonceSize+e.aead.Overhead() {
		return nil, fmt.Errorf("%w: data too short", ErrInvalidCiphertext)
	}

	plaintext, err := e.aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrDecryptionFailed, err.Error())
	}
	return plaintext, nil
}
