/**
 * @description
 * Event payloads published to the message broker after ledger mutations.
 * Downstream consumers (audit sink, notification pipeline) subscribe to
 * these on the `vaultbank.events` topic exchange.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// LedgerEvent is published after every transfer-type status change.
type LedgerEvent struct {
	TransactionID        uuid.UUID `json:"transaction_id"`
	Type                 string    `json:"type"`
	SourceAccountID      string    `json:"source_account_id,omitempty"`
	DestinationAccountID string    `json:"destination_account_id,omitempty"`
	Amount               int64     `json:"amount"`
	Status               string    `json:"status"`
	Timestamp            time.Time `json:"timestamp"`
}

// CashEvent is published after cash deposits and withdrawals.
type CashEvent struct {
	CashTransactionID uuid.UUID `json:"cash_transaction_id"`
	Type              string    `json:"type"`
	AccountID         string    `json:"account_id"`
	Amount            int64     `json:"amount"`
	SupervisorID      uuid.UUID `json:"supervisor_id"`
	Status            string    `json:"status"`
	Timestamp         time.Time `json:"timestamp"`
}

// BillPaidEvent is published when a bill transitions to Paid.
type BillPaidEvent struct {
	BillID            uuid.UUID `json:"bill_id"`
	MerchantAccountID string    `json:"merchant_account_id"`
	CardID            string    `json:"card_id"`
	Amount            int64     `json:"amount"`
	Timestamp         time.Time `json:"timestamp"`
}

// UserRegisteredEvent is published after a successful registration.
type UserRegisteredEvent struct {
	UserID    uuid.UUID `json:"user_id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Timestamp time.Time `json:"timestamp"`
}
