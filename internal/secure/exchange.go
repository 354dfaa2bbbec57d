/**
 * @description
 * This file implements the two key-negotiation modes that establish a
 * per-session AES-256 key in the KeyStore.
 *
 * - ECDH mode (dashboard): the client posts its P-256 public key, the server
 *   replies with an ephemeral public key and stores the derived shared
 *   secret. Completes in a single request, so no pending state exists.
 * - RSA mode (mobile): step one issues a 2048-bit RSA public key PEM and
 *   parks the private key in the KeyStore under a short TTL; step two
 *   accepts the client's OAEP-wrapped AES key, unwraps it with a single-use
 *   fetch of the private key, and stores the AES key. The private key is
 *   consumed on first use, so a second unwrap attempt fails.
 *
 * @dependencies
 * - crypto/ecdh, crypto/rsa, crypto/sha256: key agreement and unwrapping.
 * - internal/secure KeyStore: shared storage for established and parked keys.
 */

package secure

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
)

const (
	rsaKeyBits = 2048
	// rsaPendingPrefix namespaces parked private keys away from established
	// AES keys so a half-finished exchange can never decrypt payloads.
	rsaPendingPrefix = "rsa:"
)

var (
	// ErrExchangeNotFound is returned when no pending RSA exchange exists
	// for the identity, including when the parked key was already consumed.
	ErrExchangeNotFound = errors.New("no pending key exchange")
	// ErrBadClientKey is returned when client-supplied key material cannot
	// be parsed or has the wrong shape.
	ErrBadClientKey = errors.New("invalid client key material")
)

// Exchange negotiates session keys and records them in the KeyStore. Parked
// RSA private keys live in a separate pending store, which typically carries
// a much shorter TTL than established session keys.
type Exchange struct {
	store   KeyStore
	pending KeyStore
}

// NewExchange creates a key exchange service backed by the given stores.
// A nil pending store falls back to the session store.
func NewExchange(store, pending KeyStore) *Exchange {
	if pending == nil {
		pending = store
	}
	return &Exchange{store: store, pending: pending}
}

// NegotiateECDH derives a shared AES-256 key from the client's P-256 public
// key (base64 of the uncompressed point) and stores it under id. It returns
// the server's ephemeral public key, base64-encoded, for the client to derive
// the same secret.
func (e *Exchange) NegotiateECDH(ctx context.Context, id, clientPublicKeyB64 string) (string, error) {
	clientRaw, err := base64.StdEncoding.DecodeString(clientPublicKeyB64)
	if err != nil {
		return "", ErrBadClientKey
	}
	curve := ecdh.P256()
	clientPub, err := curve.NewPublicKey(clientRaw)
	if err != nil {
		return "", ErrBadClientKey
	}

	serverPriv, err := curve.GenerateKey(rand.Reader)
	if err != nil {
		return "", fmt.Errorf("ecdh keygen failed: %w", err)
	}
	secret, err := serverPriv.ECDH(clientPub)
	if err != nil {
		return "", ErrBadClientKey
	}

	// P-256 shared secrets are 32 bytes, exactly an AES-256 key.
	if err := e.store.Set(ctx, id, secret); err != nil {
		return "", fmt.Errorf("key store write failed: %w", err)
	}
	return base64.StdEncoding.EncodeToString(serverPriv.PublicKey().Bytes()), nil
}

// BeginRSA generates an ephemeral RSA keypair for the identity, parks the
// private key in the store, and returns the public key PEM for the client.
// A repeated call overwrites the previous pending keypair.
func (e *Exchange) BeginRSA(ctx context.Context, id string) (string, error) {
	priv, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return "", fmt.Errorf("rsa keygen failed: %w", err)
	}

	privDER := x509.MarshalPKCS1PrivateKey(priv)
	if err := e.pending.Set(ctx, rsaPendingPrefix+id, privDER); err != nil {
		return "", fmt.Errorf("key store write failed: %w", err)
	}

	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return "", fmt.Errorf("public key marshal failed: %w", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	return string(pubPEM), nil
}

// CompleteRSA unwraps the client's AES-256 key (base64 of the OAEP-SHA256
// ciphertext) using the parked private key and stores it under id. The
// private key is consumed atomically, so the keypair is single-use: a second
// completion attempt returns ErrExchangeNotFound.
func (e *Exchange) CompleteRSA(ctx context.Context, id, encryptedKeyB64 string) error {
	wrapped, err := base64.StdEncoding.DecodeString(encryptedKeyB64)
	if err != nil {
		return ErrBadClientKey
	}

	privDER, err := e.pending.GetDelete(ctx, rsaPendingPrefix+id)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return ErrExchangeNotFound
		}
		return fmt.Errorf("key store read failed: %w", err)
	}
	priv, err := x509.ParsePKCS1PrivateKey(privDER)
	if err != nil {
		return fmt.Errorf("parked key parse failed: %w", err)
	}

	aesKey, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, wrapped, nil)
	if err != nil {
		return ErrBadClientKey
	}
	if len(aesKey) != keySize {
		return ErrBadClientKey
	}

	if err := e.store.Set(ctx, id, aesKey); err != nil {
		return fmt.Errorf("key store write failed: %w", err)
	}
	return nil
}
