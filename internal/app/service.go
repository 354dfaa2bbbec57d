/**
 * @description
 * This file contains the core business logic for the ledger-service. The
 * `Service` struct orchestrates all money movement operations, coordinating
 * between the database repository, the token manager, and the message broker.
 *
 * Key features:
 * - Implements the main use cases: transfers, supervisor cash movements, and
 *   the admin correction tools (edit with compensating adjustments, reversal).
 * - Ensures transactional integrity: ledger rows are created Pending and
 *   flipped to Completed only inside the repository transaction that moves
 *   the balances; any failure flips the row to Failed in a committed write.
 * - Publishes events to RabbitMQ for asynchronous processing by other services.
 *
 * @dependencies
 * - context, errors, log, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID generation.
 * - internal/auth, internal/domain, internal/store: Tokens, domain models, data access.
 * - pkg/rabbitmq: For event publishing.
 */

package app

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/vaultbank/ledger-service/internal/auth"
	"github.com/vaultbank/ledger-service/internal/domain"
	"github.com/vaultbank/ledger-service/internal/store"
	"github.com/vaultbank/ledger-service/pkg/rabbitmq"
)

// Service provides the core business logic for the ledger.
type Service struct {
	repo          store.Repository
	tokens        *auth.TokenManager
	eventProducer rabbitmq.Publisher
	limiter       RateLimiter
	loginLimit    int
}

// NewService creates a new ledger service instance.
func NewService(repo store.Repository, tokens *auth.TokenManager, producer rabbitmq.Publisher, limiter RateLimiter, loginLimit int) *Service {
	return &Service{
		repo:          repo,
		tokens:        tokens,
		eventProducer: producer,
		limiter:       limiter,
		loginLimit:    loginLimit,
	}
}

// mapStoreError translates repository sentinel errors into domain errors
// carrying an HTTP-mappable kind. Unknown errors come back as internal.
func mapStoreError(err error) error {
	switch {
	case errors.Is(err, store.ErrUserNotFound):
		return domain.NotFoundError("user_not_found", "user not found")
	case errors.Is(err, store.ErrAccountNotFound):
		return domain.NotFoundError("account_not_found", "account not found")
	case errors.Is(err, store.ErrCardNotFound):
		return domain.NotFoundError("card_not_found", "card not found")
	case errors.Is(err, store.ErrTransactionNotFound):
		return domain.NotFoundError("transaction_not_found", "transaction not found")
	case errors.Is(err, store.ErrBillNotFound):
		return domain.NotFoundError("bill_not_found", "bill not found")
	case errors.Is(err, store.ErrBeneficiaryNotFound):
		return domain.NotFoundError("beneficiary_not_found", "beneficiary not found")
	case errors.Is(err, store.ErrInsufficientFunds):
		return domain.ConflictError("insufficient_funds", "insufficient funds")
	case errors.Is(err, store.ErrAccountInactive):
		return domain.ConflictError("account_inactive", "account is not active")
	case errors.Is(err, store.ErrBillAlreadyPaid):
		return domain.ConflictError("bill_already_paid", "bill has already been paid")
	case errors.Is(err, store.ErrDuplicateEmail):
		return domain.ConflictError("email_taken", "email already registered")
	case errors.Is(err, store.ErrInvalidStatus):
		return domain.ConflictError("invalid_status", "operation not allowed in current status")
	default:
		log.Printf("mapStoreError: unexpected repository error: %v", err)
		return domain.InternalError("unexpected internal error")
	}
}

// resolveSourceAccount returns the account the caller is moving money out
// of: the requested account when given (ownership enforced), otherwise the
// caller's checking account.
func (s *Service) resolveSourceAccount(ctx context.Context, callerID uuid.UUID, requestedAccountID string) (*domain.Account, error) {
	if requestedAccountID == "" {
		account, err := s.repo.FindCheckingAccountByUserID(ctx, callerID)
		if err != nil {
			return nil, mapStoreError(err)
		}
		return account, nil
	}

	account, err := s.repo.FindAccountByID(ctx, requestedAccountID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if account.UserID != callerID {
		return nil, domain.ForbiddenError("not_account_owner", "account does not belong to caller")
	}
	return account, nil
}

// Transfer moves money between two accounts. The ledger row is created
// Pending first; a failed balance move flips it to Failed so the record of
// the attempt survives.
func (s *Service) Transfer(ctx context.Context, callerID uuid.UUID, req domain.TransferRequest) (*domain.Transaction, error) {
	if req.Amount <= 0 {
		return nil, domain.ValidationError("invalid_amount", "amount must be positive", "amount")
	}
	destinationID := req.DestinationAccountID
	if destinationID == "" && req.BeneficiaryUserID != nil {
		resolved, err := s.beneficiaryDestination(ctx, callerID, *req.BeneficiaryUserID)
		if err != nil {
			return nil, err
		}
		destinationID = resolved
	}
	if destinationID == "" {
		return nil, domain.ValidationError("missing_destination", "destination account or beneficiary is required", "destination_account_id")
	}

	source, err := s.resolveSourceAccount(ctx, callerID, req.SourceAccountID)
	if err != nil {
		return nil, err
	}
	if source.ID == destinationID {
		return nil, domain.ValidationError("same_account", "source and destination must differ", "destination_account_id")
	}
	if _, err := s.repo.FindAccountByID(ctx, destinationID); err != nil {
		return nil, mapStoreError(err)
	}

	transaction := &domain.Transaction{
		ID:                   uuid.New(),
		Type:                 domain.TransactionTypeTransfer,
		SourceAccountID:      source.ID,
		DestinationAccountID: destinationID,
		Amount:               req.Amount,
		Status:               domain.TransactionStatusPending,
	}
	if err := s.repo.CreateTransaction(ctx, transaction); err != nil {
		return nil, mapStoreError(err)
	}

	if err := s.repo.ExecuteTransfer(ctx, transaction.ID, source.ID, destinationID, req.Amount); err != nil {
		log.Printf("Transfer: execution failed for %s: %v", transaction.ID, err)
		if markErr := s.repo.MarkTransactionFailed(ctx, transaction.ID); markErr != nil {
			log.Printf("Transfer: failed to mark transaction %s as failed: %v", transaction.ID, markErr)
		}
		transaction.Status = domain.TransactionStatusFailed
		s.publishLedgerEvent(ctx, transaction)
		return nil, mapStoreError(err)
	}
	transaction.Status = domain.TransactionStatusCompleted

	s.publishLedgerEvent(ctx, transaction)
	return transaction, nil
}

// beneficiaryDestination resolves an accepted trust relation into the
// beneficiary's checking account id. The relation may have been requested by
// either party.
func (s *Service) beneficiaryDestination(ctx context.Context, callerID, beneficiaryUserID uuid.UUID) (string, error) {
	relation, err := s.repo.FindBeneficiaryBetween(ctx, callerID, beneficiaryUserID)
	if err != nil {
		relation, err = s.repo.FindBeneficiaryBetween(ctx, beneficiaryUserID, callerID)
	}
	if err != nil {
		return "", mapStoreError(err)
	}
	if !relation.Accepted {
		return "", domain.ConflictError("beneficiary_not_accepted", "beneficiary relation has not been accepted")
	}
	account, err := s.repo.FindCheckingAccountByUserID(ctx, beneficiaryUserID)
	if err != nil {
		return "", mapStoreError(err)
	}
	return account.ID, nil
}

// CashDeposit credits an account with cash taken in at the counter.
// Supervisor roles only.
func (s *Service) CashDeposit(ctx context.Context, supervisorID uuid.UUID, req domain.CashRequest) (*domain.CashTransaction, error) {
	return s.cashMovement(ctx, supervisorID, req, domain.CashTypeDeposit)
}

// CashWithdraw debits an account for cash handed out at the counter.
// Supervisor roles only.
func (s *Service) CashWithdraw(ctx context.Context, supervisorID uuid.UUID, req domain.CashRequest) (*domain.CashTransaction, error) {
	return s.cashMovement(ctx, supervisorID, req, domain.CashTypeWithdraw)
}

func (s *Service) cashMovement(ctx context.Context, supervisorID uuid.UUID, req domain.CashRequest, cashType string) (*domain.CashTransaction, error) {
	if req.Amount <= 0 {
		return nil, domain.ValidationError("invalid_amount", "amount must be positive", "amount")
	}

	supervisor, err := s.repo.FindUserByID(ctx, supervisorID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if !supervisor.IsSupervisor() {
		return nil, domain.ForbiddenError("not_supervisor", "cash operations require a supervisor role")
	}
	if _, err := s.repo.FindAccountByID(ctx, req.AccountID); err != nil {
		return nil, mapStoreError(err)
	}

	cash := &domain.CashTransaction{
		ID:           uuid.New(),
		Type:         cashType,
		AccountID:    req.AccountID,
		Amount:       req.Amount,
		SupervisorID: supervisorID,
		Status:       domain.TransactionStatusPending,
	}
	if err := s.repo.CreateCashTransaction(ctx, cash); err != nil {
		return nil, mapStoreError(err)
	}

	delta := req.Amount
	if cashType == domain.CashTypeWithdraw {
		delta = -req.Amount
	}
	if err := s.repo.ExecuteCashMovement(ctx, cash.ID, req.AccountID, delta); err != nil {
		log.Printf("CashMovement: execution failed for %s: %v", cash.ID, err)
		if markErr := s.repo.MarkCashTransactionFailed(ctx, cash.ID); markErr != nil {
			log.Printf("CashMovement: failed to mark cash transaction %s as failed: %v", cash.ID, markErr)
		}
		cash.Status = domain.TransactionStatusFailed
		s.publishCashEvent(ctx, cash)
		return nil, mapStoreError(err)
	}
	cash.Status = domain.TransactionStatusCompleted

	s.publishCashEvent(ctx, cash)
	return cash, nil
}

// EditTransaction is the admin-only correction tool. Completed transfers get
// compensating balance adjustments inside the repository transaction.
func (s *Service) EditTransaction(ctx context.Context, callerID uuid.UUID, transactionID uuid.UUID, req domain.EditTransactionRequest) (*domain.Transaction, error) {
	if err := s.requireAdmin(ctx, callerID); err != nil {
		return nil, err
	}
	if req.SourceAccountID == nil && req.DestinationAccountID == nil && req.Amount == nil {
		return nil, domain.ValidationError("empty_edit", "at least one field must change", "")
	}
	if req.Amount != nil && *req.Amount <= 0 {
		return nil, domain.ValidationError("invalid_amount", "amount must be positive", "amount")
	}

	current, err := s.repo.FindTransactionByID(ctx, transactionID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if current.Type != domain.TransactionTypeTransfer {
		return nil, domain.ConflictError("not_editable", "only transfers can be edited")
	}
	if req.SourceAccountID != nil {
		if _, err := s.repo.FindAccountByID(ctx, *req.SourceAccountID); err != nil {
			return nil, mapStoreError(err)
		}
	}
	if req.DestinationAccountID != nil {
		if _, err := s.repo.FindAccountByID(ctx, *req.DestinationAccountID); err != nil {
			return nil, mapStoreError(err)
		}
	}

	newSource := current.SourceAccountID
	if req.SourceAccountID != nil {
		newSource = *req.SourceAccountID
	}
	newDestination := current.DestinationAccountID
	if req.DestinationAccountID != nil {
		newDestination = *req.DestinationAccountID
	}
	if newSource == newDestination {
		return nil, domain.ValidationError("same_account", "source and destination must differ", "destination_account_id")
	}

	updated, err := s.repo.EditTransaction(ctx, transactionID, req)
	if err != nil {
		return nil, mapStoreError(err)
	}
	log.Printf("EditTransaction: admin %s edited transaction %s", callerID, transactionID)

	s.publishLedgerEvent(ctx, updated)
	return updated, nil
}

// DeleteTransaction reverses a completed transfer and marks it Deleted.
// Admin only. The reversal fails if the destination has already spent the
// money, so no balance ever goes negative.
func (s *Service) DeleteTransaction(ctx context.Context, callerID uuid.UUID, transactionID uuid.UUID) (*domain.Transaction, error) {
	if err := s.requireAdmin(ctx, callerID); err != nil {
		return nil, err
	}

	if err := s.repo.ReverseTransaction(ctx, transactionID); err != nil {
		return nil, mapStoreError(err)
	}
	log.Printf("DeleteTransaction: admin %s reversed transaction %s", callerID, transactionID)

	reversed, err := s.repo.FindTransactionByID(ctx, transactionID)
	if err != nil {
		return nil, mapStoreError(err)
	}

	s.publishLedgerEvent(ctx, reversed)
	return reversed, nil
}

func (s *Service) requireAdmin(ctx context.Context, callerID uuid.UUID) error {
	caller, err := s.repo.FindUserByID(ctx, callerID)
	if err != nil {
		return mapStoreError(err)
	}
	if caller.Role != domain.RoleAdmin {
		return domain.ForbiddenError("admin_only", "operation requires the admin role")
	}
	return nil
}

// Event publishing is best-effort: a broker outage must not fail a committed
// ledger mutation.
func (s *Service) publishLedgerEvent(ctx context.Context, tx *domain.Transaction) {
	event := domain.LedgerEvent{
		TransactionID:        tx.ID,
		Type:                 tx.Type,
		SourceAccountID:      tx.SourceAccountID,
		DestinationAccountID: tx.DestinationAccountID,
		Amount:               tx.Amount,
		Status:               tx.Status,
		Timestamp:            time.Now().UTC(),
	}
	if err := s.eventProducer.PublishLedgerEvent(ctx, event); err != nil {
		log.Printf("publishLedgerEvent: failed for %s: %v", tx.ID, err)
	}
}

func (s *Service) publishCashEvent(ctx context.Context, cash *domain.CashTransaction) {
	event := domain.CashEvent{
		CashTransactionID: cash.ID,
		Type:              cash.Type,
		AccountID:         cash.AccountID,
		Amount:            cash.Amount,
		SupervisorID:      cash.SupervisorID,
		Status:            cash.Status,
		Timestamp:         time.Now().UTC(),
	}
	if err := s.eventProducer.PublishCashEvent(ctx, event); err != nil {
		log.Printf("publishCashEvent: failed for %s: %v", cash.ID, err)
	}
}
