/**
 * @description
 * This file contains the HTTP handlers for identity endpoints (registration,
 * login, logout, profile) and the response helpers shared by all handlers.
 * Handlers parse incoming requests, call the application service, and write
 * the response. When the request arrived on an encrypted channel, the
 * response body is encrypted with the same session key.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/secure: Service logic, models, payload codec.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/vaultbank/ledger-service/internal/app"
	"github.com/vaultbank/ledger-service/internal/auth"
	"github.com/vaultbank/ledger-service/internal/domain"
	"github.com/vaultbank/ledger-service/internal/secure"
)

// Handlers holds the application service and crypto components the HTTP
// layer needs.
type Handlers struct {
	service  *app.Service
	exchange *secure.Exchange
	keys     secure.KeyStore
	tokenTTL time.Duration
}

// NewHandlers creates a new instance of Handlers.
func NewHandlers(service *app.Service, exchange *secure.Exchange, keys secure.KeyStore, tokenTTL time.Duration) *Handlers {
	return &Handlers{service: service, exchange: exchange, keys: keys, tokenTTL: tokenTTL}
}

// writeError writes a structured error response. Error bodies are never
// encrypted so clients can always read them, even when the channel is broken.
func writeError(w http.ResponseWriter, err *domain.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.HTTPStatus())
	if encodeErr := json.NewEncoder(w).Encode(err); encodeErr != nil {
		log.Printf("level=error component=api msg=\"failed to encode error response\" err=%v", encodeErr)
	}
}

// serviceError maps any service-layer error onto the wire.
func serviceError(w http.ResponseWriter, err error) {
	var domainErr *domain.Error
	if errors.As(err, &domainErr) {
		writeError(w, domainErr)
		return
	}
	log.Printf("level=error component=api msg=\"unclassified service error\" err=%v", err)
	writeError(w, domain.InternalError("unexpected internal error"))
}

// writeJSON writes a response body. When the caller holds a negotiated
// session key, the body is encrypted under it and wrapped in an envelope
// regardless of whether the request itself arrived encrypted.
func (h *Handlers) writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")

	key, encrypted := sessionKeyFromContext(r.Context())
	if !encrypted {
		w.WriteHeader(status)
		if err := json.NewEncoder(w).Encode(v); err != nil {
			log.Printf("level=error component=api msg=\"failed to encode response\" err=%v", err)
		}
		return
	}

	plaintext, err := json.Marshal(v)
	if err != nil {
		log.Printf("level=error component=api msg=\"failed to marshal response\" err=%v", err)
		writeError(w, domain.InternalError("failed to build response"))
		return
	}
	payload, err := secure.Encrypt(plaintext, key)
	if err != nil {
		log.Printf("level=error component=api msg=\"failed to encrypt response\" err=%v", err)
		writeError(w, domain.InternalError("failed to build response"))
		return
	}
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(secureEnvelope{Payload: payload}); err != nil {
		log.Printf("level=error component=api msg=\"failed to encode envelope\" err=%v", err)
	}
}

func decodeBody(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.ValidationError("bad_request_body", "request body is not valid JSON", "")
	}
	return nil
}

func requireClaims(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	claims, ok := GetClaims(r.Context())
	if !ok {
		writeError(w, domain.UnauthorizedError("missing_token", "authentication required"))
		return nil, false
	}
	return claims, true
}

// RegisterHandler creates a new user with their checking account. The body
// normally arrives encrypted under the key negotiated for the email.
func (h *Handlers) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.RegistrationRequest
	if err := decodeBody(r, &req); err != nil {
		serviceError(w, err)
		return
	}

	user, err := h.service.Register(r.Context(), req)
	if err != nil {
		serviceError(w, err)
		return
	}
	h.writeJSON(w, r, http.StatusCreated, user)
}

type loginResponse struct {
	Token string       `json:"token"`
	User  *domain.User `json:"user"`
}

// LoginHandler verifies credentials, issues a token, and additionally sets
// it as an httpOnly cookie for browser clients.
func (h *Handlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := decodeBody(r, &req); err != nil {
		serviceError(w, err)
		return
	}

	token, user, err := h.service.Login(r.Context(), req)
	if err != nil {
		serviceError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.tokenTTL.Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
	h.writeJSON(w, r, http.StatusOK, loginResponse{Token: token, User: user})
}

// LogoutHandler revokes the presented token and clears the cookie.
func (h *Handlers) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	if err := h.service.Logout(r.Context(), claims); err != nil {
		serviceError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
	h.writeJSON(w, r, http.StatusOK, map[string]string{"status": "logged out"})
}

// MeHandler returns the caller's own profile.
func (h *Handlers) MeHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	user, err := h.service.GetUser(r.Context(), claims.UserID)
	if err != nil {
		serviceError(w, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, user)
}

// CloseUserHandler soft-deletes the caller and deactivates their account.
func (h *Handlers) CloseUserHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	if err := h.service.CloseUser(r.Context(), claims.UserID); err != nil {
		serviceError(w, err)
		return
	}
	if err := h.service.Logout(r.Context(), claims); err != nil {
		log.Printf("level=warn component=api msg=\"failed to revoke token on account closure\" user_id=%s err=%v", claims.UserID, err)
	}
	h.writeJSON(w, r, http.StatusOK, map[string]string{"status": "closed"})
}
