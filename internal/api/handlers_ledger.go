/**
 * @description
 * Handlers for the ledger endpoints: transfers, supervisor cash movements,
 * account and transaction reads, and the admin correction tools.
 */

package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/vaultbank/ledger-service/internal/domain"
)

// TransferHandler initiates a transfer out of the caller's account.
func (h *Handlers) TransferHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	var req domain.TransferRequest
	if err := decodeBody(r, &req); err != nil {
		serviceError(w, err)
		return
	}

	transaction, err := h.service.Transfer(r.Context(), claims.UserID, req)
	if err != nil {
		serviceError(w, err)
		return
	}
	h.writeJSON(w, r, http.StatusCreated, transaction)
}

// CashDepositHandler credits an account with counter cash. Staff only.
func (h *Handlers) CashDepositHandler(w http.ResponseWriter, r *http.Request) {
	h.cashHandler(w, r, h.service.CashDeposit)
}

// CashWithdrawHandler debits an account for counter cash. Staff only.
func (h *Handlers) CashWithdrawHandler(w http.ResponseWriter, r *http.Request) {
	h.cashHandler(w, r, h.service.CashWithdraw)
}

func (h *Handlers) cashHandler(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, supervisorID uuid.UUID, req domain.CashRequest) (*domain.CashTransaction, error)) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	var req domain.CashRequest
	if err := decodeBody(r, &req); err != nil {
		serviceError(w, err)
		return
	}

	cash, err := op(r.Context(), claims.UserID, req)
	if err != nil {
		serviceError(w, err)
		return
	}
	h.writeJSON(w, r, http.StatusCreated, cash)
}

// GetAccountHandler returns an account visible to the caller.
func (h *Handlers) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	account, err := h.service.GetAccount(r.Context(), claims.UserID, chi.URLParam(r, "accountID"))
	if err != nil {
		serviceError(w, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, account)
}

// ListTransactionsHandler returns the ledger rows touching an account.
func (h *Handlers) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	transactions, err := h.service.ListTransactions(r.Context(), claims.UserID, chi.URLParam(r, "accountID"))
	if err != nil {
		serviceError(w, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, transactions)
}

func transactionIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "transactionID"))
	if err != nil {
		writeError(w, domain.ValidationError("invalid_transaction_id", "transaction id must be a UUID", "transaction_id"))
		return uuid.Nil, false
	}
	return id, true
}

// EditTransactionHandler applies the admin correction tool to a transaction.
func (h *Handlers) EditTransactionHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	transactionID, ok := transactionIDParam(w, r)
	if !ok {
		return
	}
	var req domain.EditTransactionRequest
	if err := decodeBody(r, &req); err != nil {
		serviceError(w, err)
		return
	}

	updated, err := h.service.EditTransaction(r.Context(), claims.UserID, transactionID, req)
	if err != nil {
		serviceError(w, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, updated)
}

// DeleteTransactionHandler reverses a completed transfer.
func (h *Handlers) DeleteTransactionHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	transactionID, ok := transactionIDParam(w, r)
	if !ok {
		return
	}

	reversed, err := h.service.DeleteTransaction(r.Context(), claims.UserID, transactionID)
	if err != nil {
		serviceError(w, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, reversed)
}
