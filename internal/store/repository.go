/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract
 * for all data access operations required by the ledger-service. By defining
 * an interface, we decouple the application's business logic from the
 * specific database implementation (e.g., PostgreSQL), making the code more
 * modular and easier to test.
 *
 * @notes
 * - Every method performing a multi-row balance mutation must execute as one
 *   database transaction: all balance legs plus the status flip commit
 *   together or not at all.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/vaultbank/ledger-service/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// User methods
	CreateUser(ctx context.Context, user *domain.User) error
	FindUserByEmail(ctx context.Context, email string) (*domain.User, error)
	FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	UpdateUserStatus(ctx context.Context, userID uuid.UUID, status string) error
	// DeleteUserPhysical removes the row outright. Only used to roll back a
	// failed registration; every other removal is a soft delete.
	DeleteUserPhysical(ctx context.Context, userID uuid.UUID) error

	// Account methods
	CreateAccount(ctx context.Context, account *domain.Account) error
	FindAccountByID(ctx context.Context, accountID string) (*domain.Account, error)
	FindCheckingAccountByUserID(ctx context.Context, userID uuid.UUID) (*domain.Account, error)
	DeactivateAccount(ctx context.Context, accountID string) error

	// Card methods. Creation carves the initial balance out of the linked
	// account; deletion returns the remaining card balance to it.
	CreateCardWithCarveOut(ctx context.Context, card *domain.Card) error
	DeleteCardWithReturn(ctx context.Context, cardID string) (int64, error)
	FindCardByID(ctx context.Context, cardID string) (*domain.Card, error)
	ListCardsByAccountID(ctx context.Context, accountID string) ([]domain.Card, error)
	DepositToCard(ctx context.Context, cardID string, amount int64) error
	WithdrawFromCard(ctx context.Context, cardID string, amount int64) error

	// Transaction methods
	CreateTransaction(ctx context.Context, tx *domain.Transaction) error
	// ExecuteTransfer applies both balance legs and flips the row to
	// Completed in one database transaction.
	ExecuteTransfer(ctx context.Context, transactionID uuid.UUID, sourceAccountID, destinationAccountID string, amount int64) error
	MarkTransactionFailed(ctx context.Context, transactionID uuid.UUID) error
	FindTransactionByID(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error)
	ListTransactionsByAccountID(ctx context.Context, accountID string) ([]domain.Transaction, error)
	// EditTransaction applies the admin correction tool: completed rows get
	// compensating balance adjustments, pending/failed rows change fields only.
	EditTransaction(ctx context.Context, transactionID uuid.UUID, req domain.EditTransactionRequest) (*domain.Transaction, error)
	// ReverseTransaction undoes a completed transfer and marks it Deleted.
	ReverseTransaction(ctx context.Context, transactionID uuid.UUID) error

	// Cash methods
	CreateCashTransaction(ctx context.Context, cash *domain.CashTransaction) error
	// ExecuteCashMovement applies the delta (positive deposit, negative
	// withdraw) and flips the row to Completed in one database transaction.
	ExecuteCashMovement(ctx context.Context, cashID uuid.UUID, accountID string, delta int64) error
	MarkCashTransactionFailed(ctx context.Context, cashID uuid.UUID) error

	// Bill methods
	CreateBill(ctx context.Context, bill *domain.Bill) error
	FindBillByID(ctx context.Context, billID uuid.UUID) (*domain.Bill, error)
	ListBillsByMerchantAccountID(ctx context.Context, accountID string) ([]domain.Bill, error)
	// PayBillAtomic flips the bill to Paid, debits the payer card, and
	// credits the merchant account, all in one database transaction.
	PayBillAtomic(ctx context.Context, billID uuid.UUID, cardID string, merchantAccountID string, amount int64) error

	// Beneficiary methods
	CreateBeneficiary(ctx context.Context, beneficiary *domain.Beneficiary) error
	AcceptBeneficiary(ctx context.Context, beneficiaryID uuid.UUID, acceptingUserID uuid.UUID) error
	FindBeneficiaryBetween(ctx context.Context, requestingUserID, acceptingUserID uuid.UUID) (*domain.Beneficiary, error)
	ListBeneficiariesByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Beneficiary, error)

	// SweepStalePending marks Pending transaction and cash rows older than
	// the cutoff as Failed. Run by the background jobs, not the request path.
	SweepStalePending(ctx context.Context, olderThan time.Time) (int64, error)
}
