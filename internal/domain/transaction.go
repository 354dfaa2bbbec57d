/**
 * @description
 * This file defines the ledger record models: transfers between two accounts
 * and single-leg cash movements performed by a supervisor. Both follow the
 * same Pending -> Completed/Failed lifecycle; a completed transfer may later
 * be edited (with compensating balance adjustments) or reversed (Deleted).
 *
 * @notes
 * - A row is created Pending before any balance moves, and is flipped to
 *   Completed only inside the same database transaction that applies both
 *   balance legs. Any failure after creation marks the row Failed in a
 *   committed write so no row is left Pending indefinitely.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	TransactionStatusPending   = "pending"
	TransactionStatusCompleted = "completed"
	TransactionStatusFailed    = "failed"
	TransactionStatusDeleted   = "deleted"
)

const (
	TransactionTypeTransfer = "transfer"
	TransactionTypeBillPay  = "bill_payment"
)

const (
	CashTypeDeposit  = "deposit"
	CashTypeWithdraw = "withdraw"
)

// validTransactionTransitions enumerates the allowed status transitions for
// ledger rows. Completed rows can only move to Deleted (reversal).
var validTransactionTransitions = map[string][]string{
	TransactionStatusPending:   {TransactionStatusCompleted, TransactionStatusFailed},
	TransactionStatusCompleted: {TransactionStatusDeleted},
}

// CanTransition reports whether a ledger row may move from one status to another.
func CanTransition(current, target string) bool {
	for _, s := range validTransactionTransitions[current] {
		if s == target {
			return true
		}
	}
	return false
}

// Transaction represents a two-leg ledger entry moving money between two
// accounts. This struct maps directly to the `transactions` table.
type Transaction struct {
	ID                   uuid.UUID `json:"id"`
	Type                 string    `json:"type"`
	SourceAccountID      string    `json:"source_account_id"`
	DestinationAccountID string    `json:"destination_account_id"`
	Amount               int64     `json:"amount"` // in cents
	Status               string    `json:"status"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// CashTransaction represents a single-leg cash movement (deposit or withdraw)
// performed by a supervisor on behalf of an account. Cash enters or leaves
// the system at the counter, so there is no in-system counterpart leg.
type CashTransaction struct {
	ID           uuid.UUID `json:"id"`
	Type         string    `json:"type"`
	AccountID    string    `json:"account_id"`
	Amount       int64     `json:"amount"` // in cents
	SupervisorID uuid.UUID `json:"supervisor_id"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

// TransferRequest is the DTO for initiating a transfer. SourceAccountID may
// be empty, in which case the caller's checking account is used. The
// destination is either a raw account id or an accepted beneficiary, whose
// checking account is resolved server-side.
type TransferRequest struct {
	SourceAccountID      string     `json:"source_account_id,omitempty"`
	DestinationAccountID string     `json:"destination_account_id,omitempty"`
	BeneficiaryUserID    *uuid.UUID `json:"beneficiary_user_id,omitempty"`
	Amount               int64      `json:"amount"`
}

// CashRequest is the DTO for supervisor cash deposits and withdrawals.
type CashRequest struct {
	AccountID string `json:"account_id"`
	Amount    int64  `json:"amount"`
}

// EditTransactionRequest is the DTO for the admin-only ledger correction
// tool. Nil fields are left unchanged.
type EditTransactionRequest struct {
	SourceAccountID      *string `json:"source_account_id,omitempty"`
	DestinationAccountID *string `json:"destination_account_id,omitempty"`
	Amount               *int64  `json:"amount,omitempty"`
}
