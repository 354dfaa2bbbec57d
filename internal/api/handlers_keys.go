/**
 * @description
 * Key exchange endpoints. Two paths negotiate an AES session key:
 *
 *   - ECDH (one round trip): the client posts its P-256 public key and gets
 *     the server's back; both sides derive the same 32-byte key. Staff only.
 *   - RSA (two round trips): the server hands out a fresh 2048-bit public
 *     key, the client generates the AES key and posts it back RSA-encrypted.
 *     The parked private key is consumed on first use, so a keypair can
 *     unwrap exactly one session key.
 *
 * The RSA path also runs unauthenticated, keyed by email, so registration
 * payloads can be encrypted before an identity exists.
 */

package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/vaultbank/ledger-service/internal/domain"
	"github.com/vaultbank/ledger-service/internal/secure"
)

type ecdhRequest struct {
	PublicKey string `json:"public_key"`
}

type ecdhResponse struct {
	ServerPublicKey string `json:"server_public_key"`
}

type rsaBeginResponse struct {
	PublicKeyPEM string `json:"public_key_pem"`
}

type rsaCompleteRequest struct {
	EncryptedKey string `json:"encrypted_key"`
}

type registerKeyRequest struct {
	Email string `json:"email"`
}

type registerCompleteRequest struct {
	Email        string `json:"email"`
	EncryptedKey string `json:"encrypted_key"`
}

func mapExchangeError(err error) *domain.Error {
	switch {
	case errors.Is(err, secure.ErrBadClientKey):
		return domain.ValidationError("bad_client_key", "client key material is invalid", "")
	case errors.Is(err, secure.ErrExchangeNotFound):
		return domain.NotFoundError("no_pending_exchange", "no pending key exchange for caller")
	default:
		return domain.InternalError("key exchange failed")
	}
}

// NegotiateECDHHandler completes an ECDH exchange in one round trip. The
// derived key is stored under the caller's user id.
func (h *Handlers) NegotiateECDHHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	var req ecdhRequest
	if err := decodeBody(r, &req); err != nil {
		serviceError(w, err)
		return
	}

	serverPublicKey, err := h.exchange.NegotiateECDH(r.Context(), claims.UserID.String(), req.PublicKey)
	if err != nil {
		writeError(w, mapExchangeError(err))
		return
	}
	h.writeJSON(w, r, http.StatusOK, ecdhResponse{ServerPublicKey: serverPublicKey})
}

// BeginRSAHandler starts an RSA exchange for an authenticated caller.
func (h *Handlers) BeginRSAHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	publicKeyPEM, err := h.exchange.BeginRSA(r.Context(), claims.UserID.String())
	if err != nil {
		writeError(w, mapExchangeError(err))
		return
	}
	h.writeJSON(w, r, http.StatusOK, rsaBeginResponse{PublicKeyPEM: publicKeyPEM})
}

// CompleteRSAHandler receives the RSA-encrypted AES key and installs it as
// the caller's session key.
func (h *Handlers) CompleteRSAHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	var req rsaCompleteRequest
	if err := decodeBody(r, &req); err != nil {
		serviceError(w, err)
		return
	}
	if err := h.exchange.CompleteRSA(r.Context(), claims.UserID.String(), req.EncryptedKey); err != nil {
		writeError(w, mapExchangeError(err))
		return
	}
	h.writeJSON(w, r, http.StatusOK, map[string]string{"status": "key installed"})
}

// RegisterKeyHandler starts an RSA exchange keyed by email, before any
// identity exists. The same email must later arrive in the registration
// envelope.
func (h *Handlers) RegisterKeyHandler(w http.ResponseWriter, r *http.Request) {
	var req registerKeyRequest
	if err := decodeBody(r, &req); err != nil {
		serviceError(w, err)
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		writeError(w, domain.ValidationError("invalid_email", "a valid email is required", "email"))
		return
	}
	if err := h.service.EmailAvailable(r.Context(), email); err != nil {
		serviceError(w, err)
		return
	}

	publicKeyPEM, err := h.exchange.BeginRSA(r.Context(), email)
	if err != nil {
		writeError(w, mapExchangeError(err))
		return
	}
	h.writeJSON(w, r, http.StatusOK, rsaBeginResponse{PublicKeyPEM: publicKeyPEM})
}

// RegisterCompleteKeyHandler installs the registration session key for an
// email.
func (h *Handlers) RegisterCompleteKeyHandler(w http.ResponseWriter, r *http.Request) {
	var req registerCompleteRequest
	if err := decodeBody(r, &req); err != nil {
		serviceError(w, err)
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		writeError(w, domain.ValidationError("invalid_email", "a valid email is required", "email"))
		return
	}
	if err := h.exchange.CompleteRSA(r.Context(), email, req.EncryptedKey); err != nil {
		writeError(w, mapExchangeError(err))
		return
	}
	h.writeJSON(w, r, http.StatusOK, map[string]string{"status": "key installed"})
}
