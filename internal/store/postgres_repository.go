/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface for users, accounts, cards, bills, and beneficiaries. The atomic
 * multi-row ledger mutations live in postgres_ledger.go.
 *
 * @dependencies
 * - context, errors, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vaultbank/ledger-service/internal/domain"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrAccountNotFound     = errors.New("account not found")
	ErrAccountInactive     = errors.New("account is not active")
	ErrCardNotFound        = errors.New("card not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrBillNotFound        = errors.New("bill not found")
	ErrBillAlreadyPaid     = errors.New("bill already paid")
	ErrBeneficiaryNotFound = errors.New("beneficiary not found")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrDuplicateEmail      = errors.New("email already registered")
	ErrInvalidStatus       = errors.New("invalid status for operation")
)

const uniqueViolationCode = "23505"

// maxIDAttempts bounds the optimistic retry loop for 16-digit identifier
// generation. Collisions are vanishingly rare, so a handful of retries is
// plenty before treating the failure as systemic.
const maxIDAttempts = 5

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// generateNumericID returns a random 16-digit numeric string with a nonzero
// leading digit, so identifiers leak no sequential ordering.
func generateNumericID() (string, error) {
	digits := make([]byte, 16)
	first, err := rand.Int(rand.Reader, big.NewInt(9))
	if err != nil {
		return "", err
	}
	digits[0] = byte('1' + first.Int64())
	for i := 1; i < 16; i++ {
		d, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		digits[i] = byte('0' + d.Int64())
	}
	return string(digits), nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

// CreateUser inserts a new user row. Duplicate email maps to ErrDuplicateEmail.
func (r *PostgresRepository) CreateUser(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (id, name, email, phone, birthdate, role, status, category, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
	`
	_, err := r.db.Exec(ctx, query,
		user.ID, user.Name, user.Email, user.Phone, user.Birthdate,
		user.Role, user.Status, user.Category, user.PasswordHash,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return err
	}
	return nil
}

// FindUserByEmail retrieves a user from the database by their email.
func (r *PostgresRepository) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	query := `
		SELECT id, name, email, phone, birthdate, role, status, COALESCE(category, ''), password_hash, created_at
		FROM users WHERE lower(email) = lower($1)
	`
	err := r.db.QueryRow(ctx, query, email).Scan(
		&user.ID, &user.Name, &user.Email, &user.Phone, &user.Birthdate,
		&user.Role, &user.Status, &user.Category, &user.PasswordHash, &user.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// FindUserByID retrieves a user from the database by their ID.
func (r *PostgresRepository) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	var user domain.User
	query := `
		SELECT id, name, email, phone, birthdate, role, status, COALESCE(category, ''), password_hash, created_at
		FROM users WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&user.ID, &user.Name, &user.Email, &user.Phone, &user.Birthdate,
		&user.Role, &user.Status, &user.Category, &user.PasswordHash, &user.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// UpdateUserStatus flips a user's status (soft delete, ban, stop).
func (r *PostgresRepository) UpdateUserStatus(ctx context.Context, userID uuid.UUID, status string) error {
	result, err := r.db.Exec(ctx, `UPDATE users SET status = $1 WHERE id = $2`, status, userID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// DeleteUserPhysical removes the user row. Registration rollback only.
func (r *PostgresRepository) DeleteUserPhysical(ctx context.Context, userID uuid.UUID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// CreateAccount inserts a new account, generating a fresh 16-digit id and
// retrying on the unique constraint so the existence check and the insert
// are a single atomic step.
func (r *PostgresRepository) CreateAccount(ctx context.Context, account *domain.Account) error {
	query := `
		INSERT INTO accounts (id, user_id, type, balance, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
	`
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id, err := generateNumericID()
		if err != nil {
			return fmt.Errorf("account id generation failed: %w", err)
		}
		_, err = r.db.Exec(ctx, query, id, account.UserID, account.Type, account.Balance, account.Status)
		if err == nil {
			account.ID = id
			return nil
		}
		if !isUniqueViolation(err) {
			return err
		}
	}
	return fmt.Errorf("account id generation exhausted %d attempts", maxIDAttempts)
}

// FindAccountByID retrieves an account by its 16-digit identifier.
func (r *PostgresRepository) FindAccountByID(ctx context.Context, accountID string) (*domain.Account, error) {
	var account domain.Account
	query := `SELECT id, user_id, type, balance, status, created_at, updated_at FROM accounts WHERE id = $1`
	err := r.db.QueryRow(ctx, query, accountID).Scan(
		&account.ID, &account.UserID, &account.Type, &account.Balance,
		&account.Status, &account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// FindCheckingAccountByUserID retrieves a user's canonical checking account.
func (r *PostgresRepository) FindCheckingAccountByUserID(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	var account domain.Account
	query := `
		SELECT id, user_id, type, balance, status, created_at, updated_at
		FROM accounts WHERE user_id = $1 AND type = $2
	`
	err := r.db.QueryRow(ctx, query, userID, domain.AccountTypeChecking).Scan(
		&account.ID, &account.UserID, &account.Type, &account.Balance,
		&account.Status, &account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// DeactivateAccount soft-deletes an account by flipping its status.
func (r *PostgresRepository) DeactivateAccount(ctx context.Context, accountID string) error {
	result, err := r.db.Exec(ctx,
		`UPDATE accounts SET status = $1, updated_at = NOW() WHERE id = $2`,
		domain.AccountStatusInactive, accountID,
	)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// FindCardByID retrieves a card by its 16-digit identifier.
func (r *PostgresRepository) FindCardByID(ctx context.Context, cardID string) (*domain.Card, error) {
	var card domain.Card
	query := `
		SELECT id, account_id, card_name, balance, cvv, pin, expiry_date, physical, created_at
		FROM cards WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, cardID).Scan(
		&card.ID, &card.AccountID, &card.CardName, &card.Balance,
		&card.CVV, &card.PIN, &card.ExpiryDate, &card.Physical, &card.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrCardNotFound
		}
		return nil, err
	}
	return &card, nil
}

// ListCardsByAccountID retrieves all cards linked to an account.
func (r *PostgresRepository) ListCardsByAccountID(ctx context.Context, accountID string) ([]domain.Card, error) {
	query := `
		SELECT id, account_id, card_name, balance, cvv, pin, expiry_date, physical, created_at
		FROM cards WHERE account_id = $1 ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cards []domain.Card
	for rows.Next() {
		var card domain.Card
		if err := rows.Scan(
			&card.ID, &card.AccountID, &card.CardName, &card.Balance,
			&card.CVV, &card.PIN, &card.ExpiryDate, &card.Physical, &card.CreatedAt,
		); err != nil {
			return nil, err
		}
		cards = append(cards, card)
	}
	return cards, rows.Err()
}

// CreateTransaction inserts a new transaction row, normally status Pending.
func (r *PostgresRepository) CreateTransaction(ctx context.Context, tx *domain.Transaction) error {
	query := `
		INSERT INTO transactions (id, type, source_account_id, destination_account_id, amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
	`
	_, err := r.db.Exec(ctx, query,
		tx.ID, tx.Type, tx.SourceAccountID, tx.DestinationAccountID, tx.Amount, tx.Status,
	)
	return err
}

// MarkTransactionFailed flips a transaction row to Failed. Committed
// independently of any rolled-back balance work so no row stays Pending.
func (r *PostgresRepository) MarkTransactionFailed(ctx context.Context, transactionID uuid.UUID) error {
	result, err := r.db.Exec(ctx,
		`UPDATE transactions SET status = $1, updated_at = NOW() WHERE id = $2`,
		domain.TransactionStatusFailed, transactionID,
	)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// FindTransactionByID retrieves a transaction by id.
func (r *PostgresRepository) FindTransactionByID(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error) {
	var tx domain.Transaction
	query := `
		SELECT id, type, source_account_id, destination_account_id, amount, status, created_at, updated_at
		FROM transactions WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, transactionID).Scan(
		&tx.ID, &tx.Type, &tx.SourceAccountID, &tx.DestinationAccountID,
		&tx.Amount, &tx.Status, &tx.CreatedAt, &tx.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &tx, nil
}

// ListTransactionsByAccountID retrieves transactions touching an account.
func (r *PostgresRepository) ListTransactionsByAccountID(ctx context.Context, accountID string) ([]domain.Transaction, error) {
	query := `
		SELECT id, type, source_account_id, destination_account_id, amount, status, created_at, updated_at
		FROM transactions
		WHERE source_account_id = $1 OR destination_account_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []domain.Transaction
	for rows.Next() {
		var tx domain.Transaction
		if err := rows.Scan(
			&tx.ID, &tx.Type, &tx.SourceAccountID, &tx.DestinationAccountID,
			&tx.Amount, &tx.Status, &tx.CreatedAt, &tx.UpdatedAt,
		); err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

// CreateCashTransaction inserts a new cash transaction row.
func (r *PostgresRepository) CreateCashTransaction(ctx context.Context, cash *domain.CashTransaction) error {
	query := `
		INSERT INTO cash_transactions (id, type, account_id, amount, supervisor_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`
	_, err := r.db.Exec(ctx, query,
		cash.ID, cash.Type, cash.AccountID, cash.Amount, cash.SupervisorID, cash.Status,
	)
	return err
}

// MarkCashTransactionFailed flips a cash row to Failed.
func (r *PostgresRepository) MarkCashTransactionFailed(ctx context.Context, cashID uuid.UUID) error {
	result, err := r.db.Exec(ctx,
		`UPDATE cash_transactions SET status = $1 WHERE id = $2`,
		domain.TransactionStatusFailed, cashID,
	)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// CreateBill inserts a new bill row, status Pending.
func (r *PostgresRepository) CreateBill(ctx context.Context, bill *domain.Bill) error {
	query := `
		INSERT INTO bills (id, merchant_account_id, amount, details, category, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`
	_, err := r.db.Exec(ctx, query,
		bill.ID, bill.MerchantAccountID, bill.Amount, bill.Details, bill.Category, bill.Status,
	)
	return err
}

// FindBillByID retrieves a bill by id.
func (r *PostgresRepository) FindBillByID(ctx context.Context, billID uuid.UUID) (*domain.Bill, error) {
	var bill domain.Bill
	query := `
		SELECT id, merchant_account_id, amount, details, category, status, card_id, payed_at, created_at
		FROM bills WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, billID).Scan(
		&bill.ID, &bill.MerchantAccountID, &bill.Amount, &bill.Details,
		&bill.Category, &bill.Status, &bill.CardID, &bill.PayedAt, &bill.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrBillNotFound
		}
		return nil, err
	}
	return &bill, nil
}

// ListBillsByMerchantAccountID retrieves bills issued by a merchant account.
func (r *PostgresRepository) ListBillsByMerchantAccountID(ctx context.Context, accountID string) ([]domain.Bill, error) {
	query := `
		SELECT id, merchant_account_id, amount, details, category, status, card_id, payed_at, created_at
		FROM bills WHERE merchant_account_id = $1 ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bills []domain.Bill
	for rows.Next() {
		var bill domain.Bill
		if err := rows.Scan(
			&bill.ID, &bill.MerchantAccountID, &bill.Amount, &bill.Details,
			&bill.Category, &bill.Status, &bill.CardID, &bill.PayedAt, &bill.CreatedAt,
		); err != nil {
			return nil, err
		}
		bills = append(bills, bill)
	}
	return bills, rows.Err()
}

// CreateBeneficiary inserts a new trust relation, pending acceptance.
func (r *PostgresRepository) CreateBeneficiary(ctx context.Context, beneficiary *domain.Beneficiary) error {
	query := `
		INSERT INTO beneficiaries (id, requesting_user_id, accepting_user_id, accepted, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`
	_, err := r.db.Exec(ctx, query,
		beneficiary.ID, beneficiary.RequestingUserID, beneficiary.AcceptingUserID, beneficiary.Accepted,
	)
	return err
}

// AcceptBeneficiary flips the accepted flag. Only the accepting party may do
// this, which the WHERE clause enforces.
func (r *PostgresRepository) AcceptBeneficiary(ctx context.Context, beneficiaryID uuid.UUID, acceptingUserID uuid.UUID) error {
	result, err := r.db.Exec(ctx,
		`UPDATE beneficiaries SET accepted = TRUE WHERE id = $1 AND accepting_user_id = $2`,
		beneficiaryID, acceptingUserID,
	)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrBeneficiaryNotFound
	}
	return nil
}

// FindBeneficiaryBetween retrieves the trust relation between two users.
func (r *PostgresRepository) FindBeneficiaryBetween(ctx context.Context, requestingUserID, acceptingUserID uuid.UUID) (*domain.Beneficiary, error) {
	var b domain.Beneficiary
	query := `
		SELECT id, requesting_user_id, accepting_user_id, accepted, created_at
		FROM beneficiaries WHERE requesting_user_id = $1 AND accepting_user_id = $2
	`
	err := r.db.QueryRow(ctx, query, requestingUserID, acceptingUserID).Scan(
		&b.ID, &b.RequestingUserID, &b.AcceptingUserID, &b.Accepted, &b.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrBeneficiaryNotFound
		}
		return nil, err
	}
	return &b, nil
}

// ListBeneficiariesByUserID retrieves relations where the user is either party.
func (r *PostgresRepository) ListBeneficiariesByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Beneficiary, error) {
	query := `
		SELECT id, requesting_user_id, accepting_user_id, accepted, created_at
		FROM beneficiaries
		WHERE requesting_user_id = $1 OR accepting_user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var beneficiaries []domain.Beneficiary
	for rows.Next() {
		var b domain.Beneficiary
		if err := rows.Scan(&b.ID, &b.RequestingUserID, &b.AcceptingUserID, &b.Accepted, &b.CreatedAt); err != nil {
			return nil, err
		}
		beneficiaries = append(beneficiaries, b)
	}
	return beneficiaries, rows.Err()
}

// SweepStalePending marks Pending rows older than the cutoff as Failed in
// both ledger tables.
func (r *PostgresRepository) SweepStalePending(ctx context.Context, olderThan time.Time) (int64, error) {
	var total int64
	result, err := r.db.Exec(ctx,
		`UPDATE transactions SET status = $1, updated_at = NOW() WHERE status = $2 AND created_at < $3`,
		domain.TransactionStatusFailed, domain.TransactionStatusPending, olderThan,
	)
	if err != nil {
		return 0, err
	}
	total += result.RowsAffected()

	result, err = r.db.Exec(ctx,
		`UPDATE cash_transactions SET status = $1 WHERE status = $2 AND created_at < $3`,
		domain.TransactionStatusFailed, domain.TransactionStatusPending, olderThan,
	)
	if err != nil {
		return total, err
	}
	total += result.RowsAffected()
	return total, nil
}
