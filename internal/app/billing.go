/**
 * @description
 * Card and bill use cases. Card balances are carve-outs from the linked
 * checking account, so creating, topping up, cashing out, or deleting a card
 * always moves money against the account inside one repository transaction.
 * Bill payment debits a card and credits the merchant account at most once.
 */

package app

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vaultbank/ledger-service/internal/domain"
)

const cardValidityYears = 4

func randomDigits(n int) (string, error) {
	var b strings.Builder
	for i := 0; i < n; i++ {
		d, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "%d", d.Int64())
	}
	return b.String(), nil
}

// CreateCard issues a new card against the caller's checking account and
// carves the opening balance out of it.
func (s *Service) CreateCard(ctx context.Context, callerID uuid.UUID, req domain.CreateCardRequest) (*domain.Card, error) {
	if req.InitialBalance < 0 {
		return nil, domain.ValidationError("invalid_amount", "initial balance cannot be negative", "initial_balance")
	}
	if strings.TrimSpace(req.CardName) == "" {
		return nil, domain.ValidationError("missing_card_name", "card name is required", "card_name")
	}

	account, err := s.repo.FindCheckingAccountByUserID(ctx, callerID)
	if err != nil {
		return nil, mapStoreError(err)
	}

	cvv, err := randomDigits(3)
	if err != nil {
		log.Printf("CreateCard: cvv generation failed: %v", err)
		return nil, domain.InternalError("failed to generate card credentials")
	}
	pin, err := randomDigits(4)
	if err != nil {
		log.Printf("CreateCard: pin generation failed: %v", err)
		return nil, domain.InternalError("failed to generate card credentials")
	}

	card := &domain.Card{
		AccountID:  account.ID,
		CardName:   strings.TrimSpace(req.CardName),
		Balance:    req.InitialBalance,
		CVV:        cvv,
		PIN:        pin,
		ExpiryDate: time.Now().UTC().AddDate(cardValidityYears, 0, 0),
		Physical:   req.Physical,
	}
	if err := s.repo.CreateCardWithCarveOut(ctx, card); err != nil {
		return nil, mapStoreError(err)
	}
	return card, nil
}

// DeleteCard removes a caller-owned card and returns its remaining balance
// to the linked account. The credited amount is returned.
func (s *Service) DeleteCard(ctx context.Context, callerID uuid.UUID, cardID string) (int64, error) {
	if _, err := s.ownedCard(ctx, callerID, cardID); err != nil {
		return 0, err
	}
	returned, err := s.repo.DeleteCardWithReturn(ctx, cardID)
	if err != nil {
		return 0, mapStoreError(err)
	}
	return returned, nil
}

// DepositToCard tops a card up from its linked account.
func (s *Service) DepositToCard(ctx context.Context, callerID uuid.UUID, req domain.CardMoveRequest) (*domain.Card, error) {
	if req.Amount <= 0 {
		return nil, domain.ValidationError("invalid_amount", "amount must be positive", "amount")
	}
	if _, err := s.ownedCard(ctx, callerID, req.CardID); err != nil {
		return nil, err
	}
	if err := s.repo.DepositToCard(ctx, req.CardID, req.Amount); err != nil {
		return nil, mapStoreError(err)
	}
	card, err := s.repo.FindCardByID(ctx, req.CardID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return card, nil
}

// WithdrawFromCard cashes a card out back to its linked account.
func (s *Service) WithdrawFromCard(ctx context.Context, callerID uuid.UUID, req domain.CardMoveRequest) (*domain.Card, error) {
	if req.Amount <= 0 {
		return nil, domain.ValidationError("invalid_amount", "amount must be positive", "amount")
	}
	if _, err := s.ownedCard(ctx, callerID, req.CardID); err != nil {
		return nil, err
	}
	if err := s.repo.WithdrawFromCard(ctx, req.CardID, req.Amount); err != nil {
		return nil, mapStoreError(err)
	}
	card, err := s.repo.FindCardByID(ctx, req.CardID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return card, nil
}

// ListCards returns the cards linked to the caller's checking account.
func (s *Service) ListCards(ctx context.Context, callerID uuid.UUID) ([]domain.Card, error) {
	account, err := s.repo.FindCheckingAccountByUserID(ctx, callerID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	cards, err := s.repo.ListCardsByAccountID(ctx, account.ID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return cards, nil
}

// ownedCard loads a card and verifies the linked account belongs to the caller.
func (s *Service) ownedCard(ctx context.Context, callerID uuid.UUID, cardID string) (*domain.Card, error) {
	card, err := s.repo.FindCardByID(ctx, cardID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	account, err := s.repo.FindAccountByID(ctx, card.AccountID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if account.UserID != callerID {
		return nil, domain.ForbiddenError("not_card_owner", "card does not belong to caller")
	}
	return card, nil
}

// IssueBill creates a pending bill on behalf of a merchant. The merchant's
// category is snapshotted onto the bill at issuance.
func (s *Service) IssueBill(ctx context.Context, callerID uuid.UUID, req domain.IssueBillRequest) (*domain.Bill, error) {
	if req.Amount <= 0 {
		return nil, domain.ValidationError("invalid_amount", "amount must be positive", "amount")
	}

	merchant, err := s.repo.FindUserByID(ctx, callerID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if merchant.Role != domain.RoleMerchant {
		return nil, domain.ForbiddenError("not_merchant", "only merchants can issue bills")
	}
	account, err := s.repo.FindCheckingAccountByUserID(ctx, callerID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if account.Status != domain.AccountStatusActive {
		return nil, domain.ConflictError("account_inactive", "account is not active")
	}

	bill := &domain.Bill{
		ID:                uuid.New(),
		MerchantAccountID: account.ID,
		Amount:            req.Amount,
		Details:           strings.TrimSpace(req.Details),
		Category:          merchant.Category,
		Status:            domain.BillStatusPending,
	}
	if err := s.repo.CreateBill(ctx, bill); err != nil {
		return nil, mapStoreError(err)
	}
	return bill, nil
}

// PayBill settles a pending bill with a caller-owned card. CVV and both
// expiry components must match the card on record, and the card must not be
// expired. The debit, credit, and status flip are one repository transaction,
// so concurrent payment attempts settle the bill at most once.
func (s *Service) PayBill(ctx context.Context, callerID uuid.UUID, req domain.PayBillRequest) (*domain.Bill, error) {
	bill, err := s.repo.FindBillByID(ctx, req.BillID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if bill.Status != domain.BillStatusPending {
		return nil, domain.ConflictError("bill_already_paid", "bill has already been paid")
	}

	card, err := s.ownedCard(ctx, callerID, req.CardID)
	if err != nil {
		return nil, err
	}
	if card.CVV != req.CVV {
		return nil, domain.ConflictError("invalid_card_details", "card details do not match")
	}
	expiry := card.ExpiryDate.UTC()
	if int(expiry.Month()) != req.ExpiryMonth || expiry.Year() != req.ExpiryYear {
		return nil, domain.ConflictError("invalid_card_details", "card details do not match")
	}
	if time.Now().UTC().After(expiry) {
		return nil, domain.ConflictError("card_expired", "card has expired")
	}

	if err := s.repo.PayBillAtomic(ctx, bill.ID, card.ID, bill.MerchantAccountID, bill.Amount); err != nil {
		return nil, mapStoreError(err)
	}

	paid, err := s.repo.FindBillByID(ctx, bill.ID)
	if err != nil {
		return nil, mapStoreError(err)
	}

	event := domain.BillPaidEvent{
		BillID:            paid.ID,
		MerchantAccountID: paid.MerchantAccountID,
		CardID:            card.ID,
		Amount:            paid.Amount,
		Timestamp:         time.Now().UTC(),
	}
	if err := s.eventProducer.PublishBillPaidEvent(ctx, event); err != nil {
		log.Printf("PayBill: event publish failed for %s: %v", paid.ID, err)
	}
	return paid, nil
}

// ListBills returns the bills issued by the calling merchant.
func (s *Service) ListBills(ctx context.Context, callerID uuid.UUID) ([]domain.Bill, error) {
	account, err := s.repo.FindCheckingAccountByUserID(ctx, callerID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	bills, err := s.repo.ListBillsByMerchantAccountID(ctx, account.ID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return bills, nil
}

// GetAccount returns an account the caller owns, or any account for a
// supervisor.
func (s *Service) GetAccount(ctx context.Context, callerID uuid.UUID, accountID string) (*domain.Account, error) {
	account, err := s.repo.FindAccountByID(ctx, accountID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if account.UserID != callerID {
		caller, err := s.repo.FindUserByID(ctx, callerID)
		if err != nil {
			return nil, mapStoreError(err)
		}
		if !caller.IsSupervisor() {
			return nil, domain.ForbiddenError("not_account_owner", "account does not belong to caller")
		}
	}
	return account, nil
}

// ListTransactions returns the ledger rows touching an account the caller
// may view.
func (s *Service) ListTransactions(ctx context.Context, callerID uuid.UUID, accountID string) ([]domain.Transaction, error) {
	if _, err := s.GetAccount(ctx, callerID, accountID); err != nil {
		return nil, err
	}
	transactions, err := s.repo.ListTransactionsByAccountID(ctx, accountID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return transactions, nil
}
