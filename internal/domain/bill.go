/**
 * @description
 * This file defines the bill and beneficiary domain models. Bills are issued
 * Pending by a merchant and transition to Paid exactly once, atomically with
 * the payer card's debit and the merchant account's credit. Beneficiaries are
 * trust relations created pending and accepted only by the accepting party.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	BillStatusPending = "pending"
	BillStatusPaid    = "paid"
)

// Bill represents an invoice issued by a merchant. Category is a snapshot of
// the merchant's category at issuance time, not a live reference.
type Bill struct {
	ID                uuid.UUID  `json:"id"`
	MerchantAccountID string     `json:"merchant_account_id"`
	Amount            int64      `json:"amount"` // in cents
	Details           string     `json:"details"`
	Category          string     `json:"category"`
	Status            string     `json:"status"`
	CardID            *string    `json:"card_id,omitempty"` // payer card, set on payment
	PayedAt           *time.Time `json:"payed_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// Beneficiary represents a trust relation between two users. Accepted only
// flips to true through an action by the accepting party.
type Beneficiary struct {
	ID               uuid.UUID `json:"id"`
	RequestingUserID uuid.UUID `json:"requesting_user_id"`
	AcceptingUserID  uuid.UUID `json:"accepting_user_id"`
	Accepted         bool      `json:"accepted"`
	CreatedAt        time.Time `json:"created_at"`
}

// IssueBillRequest is the DTO for merchants issuing a new bill.
type IssueBillRequest struct {
	Amount  int64  `json:"amount"`
	Details string `json:"details"`
}

// PayBillRequest is the DTO for paying a bill with a card. All three card
// checks (CVV, expiry month, expiry year) are enforced.
type PayBillRequest struct {
	BillID      uuid.UUID `json:"bill_id"`
	CardID      string    `json:"card_id"`
	CVV         string    `json:"cvv"`
	ExpiryMonth int       `json:"expiry_month"`
	ExpiryYear  int       `json:"expiry_year"`
}

// BeneficiaryRequest is the DTO for requesting a beneficiary relation.
type BeneficiaryRequest struct {
	AcceptingUserEmail string `json:"accepting_user_email"`
}
