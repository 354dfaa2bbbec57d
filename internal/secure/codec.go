/**
 * @description
 * This file implements the payload codec: authenticated encryption of JSON
 * request/response bodies under the per-user session key negotiated by the
 * key exchange. The wire format is a single versioned framing so future
 * format changes can coexist behind the version byte.
 *
 * Wire format (v1), base64 standard encoding of:
 *   version(1) || nonce(12) || AES-256-GCM ciphertext with 16-byte tag
 *
 * @notes
 * - Decrypt failures (bad tag, wrong key, malformed framing) all surface as
 *   ErrDecryptFailed. The boundary reports these generically and never
 *   echoes key material or plaintext fragments.
 */

package secure

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

const (
	payloadVersion1 = 0x01
	nonceSize       = 12
	keySize         = 32
)

var (
	// ErrDecryptFailed is returned for any authentication or framing failure.
	ErrDecryptFailed = errors.New("payload decryption failed")
	// ErrInvalidKey is returned when the key is not a valid AES-256 key.
	ErrInvalidKey = errors.New("key must be 32 bytes")
)

// Encrypt seals plaintext under the given AES-256 key and returns the
// base64-encoded versioned payload.
func Encrypt(plaintext, key []byte) (string, error) {
	if len(key) != keySize {
		return "", ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("cipher init failed: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("gcm init failed: %w", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce generation failed: %w", err)
	}

	out := make([]byte, 0, 1+nonceSize+len(plaintext)+gcm.Overhead())
	out = append(out, payloadVersion1)
	out = append(out, nonce...)
	out = gcm.Seal(out, nonce, plaintext, nil)

	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt opens a base64-encoded payload produced by Encrypt. Any tampering,
// key mismatch, or framing problem returns ErrDecryptFailed.
func Decrypt(payload string, key []byte) ([]byte, error) {
	if len(key) != keySize {
		return nil, ErrInvalidKey
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	if len(raw) < 1+nonceSize {
		return nil, ErrDecryptFailed
	}
	if raw[0] != payloadVersion1 {
		return nil, ErrDecryptFailed
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher init failed: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm init failed: %w", err)
	}

	nonce := raw[1 : 1+nonceSize]
	ciphertext := raw[1+nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}
