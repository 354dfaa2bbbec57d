/**
 * @description
 * This file defines the account and card domain models. An account's balance
 * is the authoritative ledger balance; a card's balance is a sub-balance
 * carved out of its linked account at creation time and returned on deletion.
 *
 * @notes
 * - Account and card identifiers are 16-digit numeric strings, not integers,
 *   so no sequential ordering leaks through the API.
 * - Amounts are stored as `int64` in the smallest currency unit (cents),
 *   which avoids floating-point inaccuracies with financial data.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	AccountTypeChecking = "checking"
	AccountTypeSavings  = "savings"
)

const (
	AccountStatusActive   = "active"
	AccountStatusInactive = "inactive"
)

// Account represents a balance-bearing account. This struct maps directly to
// the `accounts` table in the database.
type Account struct {
	ID        string    `json:"id"` // 16-digit numeric string
	UserID    uuid.UUID `json:"user_id"`
	Type      string    `json:"type"`
	Balance   int64     `json:"balance"` // in cents
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Card represents a payment card linked to an account. Its balance is a
// carve-out from the linked account, so the sum of a user's card balances
// never exceeds what the account held at carve-out time.
type Card struct {
	ID         string    `json:"id"` // 16-digit numeric string
	AccountID  string    `json:"account_id"`
	CardName   string    `json:"card_name"`
	Balance    int64     `json:"balance"` // in cents
	CVV        string    `json:"-"`
	PIN        string    `json:"-"`
	ExpiryDate time.Time `json:"expiry_date"`
	Physical   bool      `json:"physical"`
	CreatedAt  time.Time `json:"created_at"`
}

// CreateCardRequest is the DTO for card creation.
type CreateCardRequest struct {
	CardName       string `json:"card_name"`
	InitialBalance int64  `json:"initial_balance"`
	Physical       bool   `json:"physical"`
}

// CardMoveRequest is the DTO for topping up or cashing out a card against its
// owning checking account.
type CardMoveRequest struct {
	CardID string `json:"card_id"`
	Amount int64  `json:"amount"`
}
