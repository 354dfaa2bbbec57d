package secure

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"testing"
)

func randomKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("key generation failed: %v", err)
	}
	return key
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	tests := []struct {
		name      string
		plaintext []byte
	}{
		{name: "json object", plaintext: []byte(`{"amount":300,"destination_account_id":"1234567890123456"}`)},
		{name: "empty body", plaintext: []byte{}},
		{name: "unicode", plaintext: []byte("café €500")},
	}

	key := randomKey(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := Encrypt(tt.plaintext, key)
			if err != nil {
				t.Fatalf("encrypt failed: %v", err)
			}
			got, err := Decrypt(payload, key)
			if err != nil {
				t.Fatalf("decrypt failed: %v", err)
			}
			if !bytes.Equal(got, tt.plaintext) {
				t.Fatalf("round trip mismatch: got %q want %q", got, tt.plaintext)
			}
		})
	}
}

func TestDecryptWrongKeyFails(t *testing.T) {
	k1 := randomKey(t)
	k2 := randomKey(t)

	payload, err := Encrypt([]byte(`{"secret":true}`), k1)
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}

	if _, err := Decrypt(payload, k2); !errors.Is(err, ErrDecryptFailed) {
		t.Fatalf("expected ErrDecryptFailed, got %v", err)
	}
}

func TestDecryptTamperedPayloadFails(t *testing.T) {
	key := randomKey(t)
	payload, err := Encrypt([]byte(`{"amount":100}`), key)
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}

	raw, _ := base64.StdEncoding.DecodeString(payload)
	raw[len(raw)-1] ^= 0x01
	tampered := base64.StdEncoding.EncodeToString(raw)

	if _, err := Decrypt(tampered, key); !errors.Is(err, ErrDecryptFailed) {
		t.Fatalf("expected ErrDecryptFailed, got %v", err)
	}
}

func TestDecryptMalformedFraming(t *testing.T) {
	key := randomKey(t)
	tests := []struct {
		name    string
		payload string
	}{
		{name: "not base64", payload: "%%%not-base64%%%"},
		{name: "too short", payload: base64.StdEncoding.EncodeToString([]byte{payloadVersion1, 1, 2})},
		{name: "unknown version", payload: base64.StdEncoding.EncodeToString(append([]byte{0x7f}, make([]byte, 40)...))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decrypt(tt.payload, key); !errors.Is(err, ErrDecryptFailed) {
				t.Fatalf("expected ErrDecryptFailed, got %v", err)
			}
		})
	}
}

func TestEncryptRejectsBadKeyLength(t *testing.T) {
	if _, err := Encrypt([]byte("x"), make([]byte, 16)); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
	if _, err := Decrypt("ignored", make([]byte, 31)); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}
