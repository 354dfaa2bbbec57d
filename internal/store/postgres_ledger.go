/**
 * @description
 * This file contains the atomic multi-row balance mutations of the
 * PostgreSQL repository: transfers, cash movements, card carve-outs, bill
 * payment, and the admin correction operations. Each method runs inside a
 * single database transaction with `SELECT ... FOR UPDATE` row locks, so
 * every balance leg and the status flip commit together or not at all.
 *
 * @notes
 * - Accounts are always locked in ascending id order to avoid deadlocks
 *   between concurrent mutations touching the same pair.
 * - Balance checks happen after the lock is held; ErrInsufficientFunds from
 *   these methods means the check lost against the locked balance, and the
 *   caller is responsible for flipping the ledger row to Failed.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: Transaction and row-lock primitives.
 * - internal/domain: Status constants and the edit request shape.
 */

package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/vaultbank/ledger-service/internal/domain"
)

// lockAccount locks a single account row and returns its balance and status.
func lockAccount(ctx context.Context, tx pgx.Tx, accountID string) (int64, string, error) {
	var balance int64
	var status string
	err := tx.QueryRow(ctx,
		`SELECT balance, status FROM accounts WHERE id = $1 FOR UPDATE`,
		accountID,
	).Scan(&balance, &status)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, "", ErrAccountNotFound
		}
		return 0, "", fmt.Errorf("failed to lock account %s: %w", accountID, err)
	}
	return balance, status, nil
}

// lockAccounts locks the given account rows in ascending id order and
// returns their balances keyed by id. Duplicate ids are locked once.
func lockAccounts(ctx context.Context, tx pgx.Tx, accountIDs ...string) (map[string]int64, error) {
	seen := make(map[string]bool, len(accountIDs))
	ordered := make([]string, 0, len(accountIDs))
	for _, id := range accountIDs {
		if !seen[id] {
			seen[id] = true
			ordered = append(ordered, id)
		}
	}
	sort.Strings(ordered)

	balances := make(map[string]int64, len(ordered))
	for _, id := range ordered {
		balance, status, err := lockAccount(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		if status != domain.AccountStatusActive {
			return nil, ErrAccountInactive
		}
		balances[id] = balance
	}
	return balances, nil
}

func setAccountBalance(ctx context.Context, tx pgx.Tx, accountID string, balance int64) error {
	_, err := tx.Exec(ctx,
		`UPDATE accounts SET balance = $1, updated_at = NOW() WHERE id = $2`,
		balance, accountID,
	)
	if err != nil {
		return fmt.Errorf("failed to update balance of account %s: %w", accountID, err)
	}
	return nil
}

// ExecuteTransfer moves the amount between two accounts and flips the
// transaction row to Completed.
func (r *PostgresRepository) ExecuteTransfer(ctx context.Context, transactionID uuid.UUID, sourceAccountID, destinationAccountID string, amount int64) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	balances, err := lockAccounts(ctx, tx, sourceAccountID, destinationAccountID)
	if err != nil {
		return err
	}
	if balances[sourceAccountID] < amount {
		return ErrInsufficientFunds
	}

	if err := setAccountBalance(ctx, tx, sourceAccountID, balances[sourceAccountID]-amount); err != nil {
		return err
	}
	if err := setAccountBalance(ctx, tx, destinationAccountID, balances[destinationAccountID]+amount); err != nil {
		return err
	}

	result, err := tx.Exec(ctx,
		`UPDATE transactions SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`,
		domain.TransactionStatusCompleted, transactionID, domain.TransactionStatusPending,
	)
	if err != nil {
		return fmt.Errorf("failed to complete transaction record: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}

	return tx.Commit(ctx)
}

// ExecuteCashMovement applies a signed delta to a single account and flips
// the cash row to Completed. Positive deltas are deposits, negative are
// withdrawals.
func (r *PostgresRepository) ExecuteCashMovement(ctx context.Context, cashID uuid.UUID, accountID string, delta int64) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	balance, status, err := lockAccount(ctx, tx, accountID)
	if err != nil {
		return err
	}
	if status != domain.AccountStatusActive {
		return ErrAccountInactive
	}
	if balance+delta < 0 {
		return ErrInsufficientFunds
	}

	if err := setAccountBalance(ctx, tx, accountID, balance+delta); err != nil {
		return err
	}

	result, err := tx.Exec(ctx,
		`UPDATE cash_transactions SET status = $1 WHERE id = $2 AND status = $3`,
		domain.TransactionStatusCompleted, cashID, domain.TransactionStatusPending,
	)
	if err != nil {
		return fmt.Errorf("failed to complete cash record: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}

	return tx.Commit(ctx)
}

// CreateCardWithCarveOut inserts a card and moves its opening balance out of
// the linked account in the same database transaction. On success the
// generated 16-digit card id is written back onto the card.
func (r *PostgresRepository) CreateCardWithCarveOut(ctx context.Context, card *domain.Card) error {
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id, err := generateNumericID()
		if err != nil {
			return fmt.Errorf("card id generation failed: %w", err)
		}

		err = r.createCardAttempt(ctx, card, id)
		if err == nil {
			card.ID = id
			return nil
		}
		if !isUniqueViolation(err) {
			return err
		}
	}
	return fmt.Errorf("card id generation exhausted %d attempts", maxIDAttempts)
}

func (r *PostgresRepository) createCardAttempt(ctx context.Context, card *domain.Card, cardID string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	balance, status, err := lockAccount(ctx, tx, card.AccountID)
	if err != nil {
		return err
	}
	if status != domain.AccountStatusActive {
		return ErrAccountInactive
	}
	if balance < card.Balance {
		return ErrInsufficientFunds
	}

	if err := setAccountBalance(ctx, tx, card.AccountID, balance-card.Balance); err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO cards (id, account_id, card_name, balance, cvv, pin, expiry_date, physical, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
	`, cardID, card.AccountID, card.CardName, card.Balance, card.CVV, card.PIN, card.ExpiryDate, card.Physical)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// lockCard locks a card row and returns its account id and balance.
func lockCard(ctx context.Context, tx pgx.Tx, cardID string) (string, int64, error) {
	var accountID string
	var balance int64
	err := tx.QueryRow(ctx,
		`SELECT account_id, balance FROM cards WHERE id = $1 FOR UPDATE`,
		cardID,
	).Scan(&accountID, &balance)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", 0, ErrCardNotFound
		}
		return "", 0, fmt.Errorf("failed to lock card %s: %w", cardID, err)
	}
	return accountID, balance, nil
}

// DeleteCardWithReturn removes a card and returns its remaining balance to
// the linked account. The returned value is the amount credited back.
func (r *PostgresRepository) DeleteCardWithReturn(ctx context.Context, cardID string) (int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	accountID, cardBalance, err := lockCard(ctx, tx, cardID)
	if err != nil {
		return 0, err
	}

	accountBalance, _, err := lockAccount(ctx, tx, accountID)
	if err != nil {
		return 0, err
	}

	if err := setAccountBalance(ctx, tx, accountID, accountBalance+cardBalance); err != nil {
		return 0, err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM cards WHERE id = $1`, cardID); err != nil {
		return 0, fmt.Errorf("failed to delete card: %w", err)
	}

	return cardBalance, tx.Commit(ctx)
}

// DepositToCard moves the amount from the linked account onto the card.
func (r *PostgresRepository) DepositToCard(ctx context.Context, cardID string, amount int64) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	accountID, cardBalance, err := lockCard(ctx, tx, cardID)
	if err != nil {
		return err
	}

	accountBalance, status, err := lockAccount(ctx, tx, accountID)
	if err != nil {
		return err
	}
	if status != domain.AccountStatusActive {
		return ErrAccountInactive
	}
	if accountBalance < amount {
		return ErrInsufficientFunds
	}

	if err := setAccountBalance(ctx, tx, accountID, accountBalance-amount); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE cards SET balance = $1 WHERE id = $2`, cardBalance+amount, cardID,
	); err != nil {
		return fmt.Errorf("failed to update card balance: %w", err)
	}

	return tx.Commit(ctx)
}

// WithdrawFromCard moves the amount from the card back to the linked account.
func (r *PostgresRepository) WithdrawFromCard(ctx context.Context, cardID string, amount int64) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	accountID, cardBalance, err := lockCard(ctx, tx, cardID)
	if err != nil {
		return err
	}
	if cardBalance < amount {
		return ErrInsufficientFunds
	}

	accountBalance, _, err := lockAccount(ctx, tx, accountID)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE cards SET balance = $1 WHERE id = $2`, cardBalance-amount, cardID,
	); err != nil {
		return fmt.Errorf("failed to update card balance: %w", err)
	}
	if err := setAccountBalance(ctx, tx, accountID, accountBalance+amount); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// PayBillAtomic flips a pending bill to Paid, debits the paying card, and
// credits the merchant account. The bill row lock makes the payment
// at-most-once: a second attempt sees the Paid status and fails before any
// balance moves. A bill_payment transaction row is recorded in the same
// database transaction.
func (r *PostgresRepository) PayBillAtomic(ctx context.Context, billID uuid.UUID, cardID string, merchantAccountID string, amount int64) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var billStatus string
	err = tx.QueryRow(ctx,
		`SELECT status FROM bills WHERE id = $1 FOR UPDATE`, billID,
	).Scan(&billStatus)
	if err != nil {
		if err == pgx.ErrNoRows {
			return ErrBillNotFound
		}
		return fmt.Errorf("failed to lock bill: %w", err)
	}
	if billStatus != domain.BillStatusPending {
		return ErrBillAlreadyPaid
	}

	_, cardBalance, err := lockCard(ctx, tx, cardID)
	if err != nil {
		return err
	}
	if cardBalance < amount {
		return ErrInsufficientFunds
	}

	merchantBalance, merchantStatus, err := lockAccount(ctx, tx, merchantAccountID)
	if err != nil {
		return err
	}
	if merchantStatus != domain.AccountStatusActive {
		return ErrAccountInactive
	}

	if _, err := tx.Exec(ctx,
		`UPDATE cards SET balance = $1 WHERE id = $2`, cardBalance-amount, cardID,
	); err != nil {
		return fmt.Errorf("failed to debit card: %w", err)
	}
	if err := setAccountBalance(ctx, tx, merchantAccountID, merchantBalance+amount); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE bills SET status = $1, card_id = $2, payed_at = NOW() WHERE id = $3
	`, domain.BillStatusPaid, cardID, billID); err != nil {
		return fmt.Errorf("failed to mark bill paid: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO transactions (id, type, source_account_id, destination_account_id, amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
	`, uuid.New(), domain.TransactionTypeBillPay, cardID, merchantAccountID, amount, domain.TransactionStatusCompleted); err != nil {
		return fmt.Errorf("failed to record bill payment: %w", err)
	}

	return tx.Commit(ctx)
}

// EditTransaction applies the admin correction tool. For a Completed
// transfer the original legs are unwound and the corrected legs applied, so
// conservation holds across the edit. Pending and Failed rows only have
// their fields rewritten. Deleted rows cannot be edited.
func (r *PostgresRepository) EditTransaction(ctx context.Context, transactionID uuid.UUID, req domain.EditTransactionRequest) (*domain.Transaction, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var current domain.Transaction
	err = tx.QueryRow(ctx, `
		SELECT id, type, source_account_id, destination_account_id, amount, status, created_at, updated_at
		FROM transactions WHERE id = $1 FOR UPDATE
	`, transactionID).Scan(
		&current.ID, &current.Type, &current.SourceAccountID, &current.DestinationAccountID,
		&current.Amount, &current.Status, &current.CreatedAt, &current.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to lock transaction: %w", err)
	}
	if current.Status == domain.TransactionStatusDeleted {
		return nil, ErrInvalidStatus
	}

	newSource := current.SourceAccountID
	newDestination := current.DestinationAccountID
	newAmount := current.Amount
	if req.SourceAccountID != nil {
		newSource = *req.SourceAccountID
	}
	if req.DestinationAccountID != nil {
		newDestination = *req.DestinationAccountID
	}
	if req.Amount != nil {
		newAmount = *req.Amount
	}

	if current.Status == domain.TransactionStatusCompleted {
		balances, err := lockAccounts(ctx, tx,
			current.SourceAccountID, current.DestinationAccountID, newSource, newDestination)
		if err != nil {
			return nil, err
		}

		// Unwind the original legs, then apply the corrected ones against
		// the working balances.
		balances[current.SourceAccountID] += current.Amount
		balances[current.DestinationAccountID] -= current.Amount
		balances[newSource] -= newAmount
		balances[newDestination] += newAmount

		for id, balance := range balances {
			if balance < 0 {
				return nil, ErrInsufficientFunds
			}
			if err := setAccountBalance(ctx, tx, id, balance); err != nil {
				return nil, fmt.Errorf("failed to adjust account %s: %w", id, err)
			}
		}
	}

	err = tx.QueryRow(ctx, `
		UPDATE transactions
		SET source_account_id = $1, destination_account_id = $2, amount = $3, updated_at = NOW()
		WHERE id = $4
		RETURNING id, type, source_account_id, destination_account_id, amount, status, created_at, updated_at
	`, newSource, newDestination, newAmount, transactionID).Scan(
		&current.ID, &current.Type, &current.SourceAccountID, &current.DestinationAccountID,
		&current.Amount, &current.Status, &current.CreatedAt, &current.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update transaction: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &current, nil
}

// ReverseTransaction undoes a Completed transfer by moving the amount back
// from destination to source and marks the row Deleted. Fails with
// ErrInsufficientFunds when the destination has already spent the money.
func (r *PostgresRepository) ReverseTransaction(ctx context.Context, transactionID uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var current domain.Transaction
	err = tx.QueryRow(ctx, `
		SELECT id, source_account_id, destination_account_id, amount, status
		FROM transactions WHERE id = $1 FOR UPDATE
	`, transactionID).Scan(
		&current.ID, &current.SourceAccountID, &current.DestinationAccountID,
		&current.Amount, &current.Status,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return ErrTransactionNotFound
		}
		return fmt.Errorf("failed to lock transaction: %w", err)
	}
	if !domain.CanTransition(current.Status, domain.TransactionStatusDeleted) {
		return ErrInvalidStatus
	}

	balances, err := lockAccounts(ctx, tx, current.SourceAccountID, current.DestinationAccountID)
	if err != nil {
		return err
	}
	if balances[current.DestinationAccountID] < current.Amount {
		return ErrInsufficientFunds
	}

	if err := setAccountBalance(ctx, tx, current.DestinationAccountID, balances[current.DestinationAccountID]-current.Amount); err != nil {
		return err
	}
	if err := setAccountBalance(ctx, tx, current.SourceAccountID, balances[current.SourceAccountID]+current.Amount); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE transactions SET status = $1, updated_at = NOW() WHERE id = $2`,
		domain.TransactionStatusDeleted, transactionID,
	); err != nil {
		return fmt.Errorf("failed to mark transaction deleted: %w", err)
	}

	return tx.Commit(ctx)
}
