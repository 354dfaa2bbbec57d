/**
 * @description
 * This file contains custom middleware for the HTTP router: JWT
 * authentication and the encrypted payload envelope. Middlewares process
 * requests before they reach the final handler, adding the authenticated
 * claims and the negotiated session key to the request context.
 *
 * @notes
 * - The envelope middleware is tolerant of plaintext: a body without a
 *   `payload` field passes through untouched, so clients can adopt the
 *   encrypted channel endpoint by endpoint.
 * - Decryption failures are answered 401 without detail. A distinguishable
 *   padding/tag error would hand an attacker an oracle.
 *
 * @dependencies
 * - context, net/http, strings: Standard Go libraries.
 * - internal/auth: Token validation.
 * - internal/secure: Key store and payload codec.
 */

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/vaultbank/ledger-service/internal/auth"
	"github.com/vaultbank/ledger-service/internal/domain"
	"github.com/vaultbank/ledger-service/internal/secure"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	claimsContextKey     contextKey = "authClaims"
	sessionKeyContextKey contextKey = "sessionKey"
)

// TokenCookieName is the httpOnly cookie the login handler sets; the auth
// middleware accepts it as an alternative to the Authorization header.
const TokenCookieName = "vb_token"

// GetClaims returns the authenticated claims stored by AuthMiddleware.
func GetClaims(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*auth.Claims)
	return claims, ok
}

func sessionKeyFromContext(ctx context.Context) ([]byte, bool) {
	key, ok := ctx.Value(sessionKeyContextKey).([]byte)
	return key, ok
}

// AuthMiddleware validates the bearer token (header or cookie) and stores
// the claims in the request context. Revoked and expired tokens are rejected.
func AuthMiddleware(tokens *auth.TokenManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := ""
			if authHeader := r.Header.Get("Authorization"); authHeader != "" {
				tokenString = strings.TrimPrefix(authHeader, "Bearer ")
				if tokenString == authHeader {
					writeError(w, domain.UnauthorizedError("bad_auth_header", "invalid Authorization header format"))
					return
				}
			} else if cookie, err := r.Cookie(TokenCookieName); err == nil {
				tokenString = cookie.Value
			}
			if tokenString == "" {
				writeError(w, domain.UnauthorizedError("missing_token", "authentication required"))
				return
			}

			claims, err := tokens.Validate(r.Context(), tokenString)
			if err != nil {
				writeError(w, domain.UnauthorizedError("invalid_token", "token is invalid, expired, or revoked"))
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SupervisorOnly rejects callers whose token does not carry a staff role.
// Runs after AuthMiddleware.
func SupervisorOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := GetClaims(r.Context())
		if !ok {
			writeError(w, domain.UnauthorizedError("missing_token", "authentication required"))
			return
		}
		if claims.Role != domain.RoleAdmin && claims.Role != domain.RoleEmployee {
			writeError(w, domain.ForbiddenError("not_supervisor", "operation requires a staff role"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureEnvelope is the wire shape of an encrypted request body. Email names
// the key negotiated before registration; authenticated requests use the
// token subject instead.
type secureEnvelope struct {
	Email   string `json:"email,omitempty"`
	Payload string `json:"payload,omitempty"`
}

// negotiatedKey resolves the authenticated caller's session key, when one
// exists, and returns a request whose context carries it so the response is
// encrypted on the same channel. Requests without a negotiated key pass
// through unchanged.
func negotiatedKey(r *http.Request, keys secure.KeyStore) *http.Request {
	claims, ok := GetClaims(r.Context())
	if !ok {
		return r
	}
	key, err := keys.Get(r.Context(), claims.UserID.String())
	if err != nil {
		return r
	}
	return r.WithContext(context.WithValue(r.Context(), sessionKeyContextKey, key))
}

// SecureEnvelopeMiddleware unwraps encrypted request bodies. When the body
// carries a `payload` field, the session key is looked up (by email for
// pre-auth flows, by token subject otherwise), the payload is decrypted, and
// the plaintext replaces the body. The key stays in the context so the
// response can be encrypted on the same channel. Bodyless and plaintext
// requests still get the caller's negotiated key attached, so GETs and
// unencrypted POSTs from a key-holding client receive encrypted responses.
func SecureEnvelopeMiddleware(keys secure.KeyStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body == nil || r.ContentLength == 0 {
				next.ServeHTTP(w, negotiatedKey(r, keys))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				writeError(w, domain.ValidationError("unreadable_body", "failed to read request body", ""))
				return
			}
			r.Body.Close()

			var envelope secureEnvelope
			if err := json.Unmarshal(body, &envelope); err != nil || envelope.Payload == "" {
				// Plaintext request; hand the original body back.
				r.Body = io.NopCloser(bytes.NewReader(body))
				next.ServeHTTP(w, negotiatedKey(r, keys))
				return
			}

			keyID := strings.ToLower(strings.TrimSpace(envelope.Email))
			if keyID == "" {
				claims, ok := GetClaims(r.Context())
				if !ok {
					writeError(w, domain.AuthFailureError("no_session_key", "no key identity for encrypted payload"))
					return
				}
				keyID = claims.UserID.String()
			}

			key, err := keys.Get(r.Context(), keyID)
			if err != nil {
				writeError(w, domain.AuthFailureError("no_session_key", "no negotiated key for caller"))
				return
			}

			plaintext, err := secure.Decrypt(envelope.Payload, key)
			if err != nil {
				writeError(w, domain.AuthFailureError("decrypt_failed", "payload could not be decrypted"))
				return
			}

			ctx := context.WithValue(r.Context(), sessionKeyContextKey, key)
			r.Body = io.NopCloser(bytes.NewReader(plaintext))
			r.ContentLength = int64(len(plaintext))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
