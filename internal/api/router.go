/**
 * @description
 * This file sets up the HTTP router for the ledger-service. It defines the
 * API endpoints, associates them with their corresponding handlers, and
 * applies middleware for logging, panic recovery, CORS, authentication, and
 * the encrypted payload envelope.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS middleware for browser clients.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/vaultbank/ledger-service/internal/auth"
	"github.com/vaultbank/ledger-service/internal/secure"
)

// Routes creates and returns the router for the ledger service.
func Routes(h *Handlers, tokens *auth.TokenManager, keys secure.KeyStore, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Pre-auth flows: key negotiation for registration, registration itself,
	// and login. The envelope middleware resolves keys by email here.
	r.Group(func(r chi.Router) {
		r.Use(SecureEnvelopeMiddleware(keys))

		r.Post("/auth/register/key", h.RegisterKeyHandler)
		r.Post("/auth/register/aes-key", h.RegisterCompleteKeyHandler)
		r.Post("/auth/register", h.RegisterHandler)
		r.Post("/auth/login", h.LoginHandler)
	})

	// Authenticated endpoints. Auth runs first so the envelope middleware
	// can resolve the session key from the token subject.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(tokens))
		r.Use(SecureEnvelopeMiddleware(keys))

		r.Post("/auth/logout", h.LogoutHandler)
		r.Get("/users/me", h.MeHandler)
		r.Delete("/users/me", h.CloseUserHandler)

		// Session key negotiation
		r.Post("/keys/rsa", h.BeginRSAHandler)
		r.Post("/keys/rsa/aes", h.CompleteRSAHandler)
		r.With(SupervisorOnly).Post("/keys/ecdh", h.NegotiateECDHHandler)

		// Ledger
		r.Post("/transfers", h.TransferHandler)
		r.Get("/accounts/{accountID}", h.GetAccountHandler)
		r.Get("/accounts/{accountID}/transactions", h.ListTransactionsHandler)
		r.With(SupervisorOnly).Post("/cash/deposit", h.CashDepositHandler)
		r.With(SupervisorOnly).Post("/cash/withdraw", h.CashWithdrawHandler)

		// Admin correction tools (service enforces the admin role)
		r.Patch("/transactions/{transactionID}", h.EditTransactionHandler)
		r.Delete("/transactions/{transactionID}", h.DeleteTransactionHandler)

		// Cards
		r.Post("/cards", h.CreateCardHandler)
		r.Get("/cards", h.ListCardsHandler)
		r.Delete("/cards/{cardID}", h.DeleteCardHandler)
		r.Post("/cards/deposit", h.CardDepositHandler)
		r.Post("/cards/withdraw", h.CardWithdrawHandler)

		// Bills
		r.Post("/bills", h.IssueBillHandler)
		r.Get("/bills", h.ListBillsHandler)
		r.Post("/bills/pay", h.PayBillHandler)

		// Beneficiaries
		r.Post("/beneficiaries", h.RequestBeneficiaryHandler)
		r.Get("/beneficiaries", h.ListBeneficiariesHandler)
		r.Post("/beneficiaries/{beneficiaryID}/accept", h.AcceptBeneficiaryHandler)
	})

	return r
}
