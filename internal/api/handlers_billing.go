/**
 * @description
 * Handlers for card lifecycle, bill issuance and payment, and beneficiary
 * relations.
 */

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/vaultbank/ledger-service/internal/domain"
)

// CreateCardHandler issues a card carved out of the caller's checking account.
func (h *Handlers) CreateCardHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	var req domain.CreateCardRequest
	if err := decodeBody(r, &req); err != nil {
		serviceError(w, err)
		return
	}

	card, err := h.service.CreateCard(r.Context(), claims.UserID, req)
	if err != nil {
		serviceError(w, err)
		return
	}
	h.writeJSON(w, r, http.StatusCreated, card)
}

// ListCardsHandler returns the caller's cards.
func (h *Handlers) ListCardsHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	cards, err := h.service.ListCards(r.Context(), claims.UserID)
	if err != nil {
		serviceError(w, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, cards)
}

type deleteCardResponse struct {
	ReturnedBalance int64 `json:"returned_balance"`
}

// DeleteCardHandler removes a card and returns its balance to the account.
func (h *Handlers) DeleteCardHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	returned, err := h.service.DeleteCard(r.Context(), claims.UserID, chi.URLParam(r, "cardID"))
	if err != nil {
		serviceError(w, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, deleteCardResponse{ReturnedBalance: returned})
}

// CardDepositHandler tops a card up from its linked account.
func (h *Handlers) CardDepositHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	var req domain.CardMoveRequest
	if err := decodeBody(r, &req); err != nil {
		serviceError(w, err)
		return
	}
	card, err := h.service.DepositToCard(r.Context(), claims.UserID, req)
	if err != nil {
		serviceError(w, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, card)
}

// CardWithdrawHandler cashes a card out to its linked account.
func (h *Handlers) CardWithdrawHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	var req domain.CardMoveRequest
	if err := decodeBody(r, &req); err != nil {
		serviceError(w, err)
		return
	}
	card, err := h.service.WithdrawFromCard(r.Context(), claims.UserID, req)
	if err != nil {
		serviceError(w, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, card)
}

// IssueBillHandler creates a pending bill for the calling merchant.
func (h *Handlers) IssueBillHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	var req domain.IssueBillRequest
	if err := decodeBody(r, &req); err != nil {
		serviceError(w, err)
		return
	}
	bill, err := h.service.IssueBill(r.Context(), claims.UserID, req)
	if err != nil {
		serviceError(w, err)
		return
	}
	h.writeJSON(w, r, http.StatusCreated, bill)
}

// ListBillsHandler returns the calling merchant's bills.
func (h *Handlers) ListBillsHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	bills, err := h.service.ListBills(r.Context(), claims.UserID)
	if err != nil {
		serviceError(w, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, bills)
}

// PayBillHandler settles a pending bill with a caller-owned card.
func (h *Handlers) PayBillHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	var req domain.PayBillRequest
	if err := decodeBody(r, &req); err != nil {
		serviceError(w, err)
		return
	}
	bill, err := h.service.PayBill(r.Context(), claims.UserID, req)
	if err != nil {
		serviceError(w, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, bill)
}

// RequestBeneficiaryHandler creates a pending trust relation.
func (h *Handlers) RequestBeneficiaryHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	var req domain.BeneficiaryRequest
	if err := decodeBody(r, &req); err != nil {
		serviceError(w, err)
		return
	}
	beneficiary, err := h.service.RequestBeneficiary(r.Context(), claims.UserID, req)
	if err != nil {
		serviceError(w, err)
		return
	}
	h.writeJSON(w, r, http.StatusCreated, beneficiary)
}

// AcceptBeneficiaryHandler accepts a pending relation. Only the accepting
// party succeeds.
func (h *Handlers) AcceptBeneficiaryHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	beneficiaryID, err := uuid.Parse(chi.URLParam(r, "beneficiaryID"))
	if err != nil {
		writeError(w, domain.ValidationError("invalid_beneficiary_id", "beneficiary id must be a UUID", "beneficiary_id"))
		return
	}
	if err := h.service.AcceptBeneficiary(r.Context(), claims.UserID, beneficiaryID); err != nil {
		serviceError(w, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, map[string]string{"status": "accepted"})
}

// ListBeneficiariesHandler returns relations involving the caller.
func (h *Handlers) ListBeneficiariesHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	beneficiaries, err := h.service.ListBeneficiaries(r.Context(), claims.UserID)
	if err != nil {
		serviceError(w, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, beneficiaries)
}
