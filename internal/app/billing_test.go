package app

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/vaultbank/ledger-service/internal/domain"
	"github.com/vaultbank/ledger-service/internal/store"
)

// billingRepoStub models cards as carve-outs of a single checking account
// per user and settles bills exactly once.
type billingRepoStub struct {
	store.Repository
	users    map[uuid.UUID]*domain.User
	accounts map[string]*domain.Account
	cards    map[string]*domain.Card
	bills    map[uuid.UUID]*domain.Bill
	payCalls int
}

func newBillingRepoStub() *billingRepoStub {
	return &billingRepoStub{
		users:    make(map[uuid.UUID]*domain.User),
		accounts: make(map[string]*domain.Account),
		cards:    make(map[string]*domain.Card),
		bills:    make(map[uuid.UUID]*domain.Bill),
	}
}

func (s *billingRepoStub) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	user, ok := s.users[userID]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	return user, nil
}

func (s *billingRepoStub) FindAccountByID(ctx context.Context, accountID string) (*domain.Account, error) {
	account, ok := s.accounts[accountID]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	return account, nil
}

func (s *billingRepoStub) FindCheckingAccountByUserID(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	for _, account := range s.accounts {
		if account.UserID == userID && account.Type == domain.AccountTypeChecking {
			return account, nil
		}
	}
	return nil, store.ErrAccountNotFound
}

func (s *billingRepoStub) FindCardByID(ctx context.Context, cardID string) (*domain.Card, error) {
	card, ok := s.cards[cardID]
	if !ok {
		return nil, store.ErrCardNotFound
	}
	return card, nil
}

func (s *billingRepoStub) CreateCardWithCarveOut(ctx context.Context, card *domain.Card) error {
	account := s.accounts[card.AccountID]
	if account.Balance < card.Balance {
		return store.ErrInsufficientFunds
	}
	account.Balance -= card.Balance
	card.ID = "4000123412341234"
	s.cards[card.ID] = card
	return nil
}

func (s *billingRepoStub) DeleteCardWithReturn(ctx context.Context, cardID string) (int64, error) {
	card := s.cards[cardID]
	account := s.accounts[card.AccountID]
	account.Balance += card.Balance
	delete(s.cards, cardID)
	return card.Balance, nil
}

func (s *billingRepoStub) DepositToCard(ctx context.Context, cardID string, amount int64) error {
	card := s.cards[cardID]
	account := s.accounts[card.AccountID]
	if account.Balance < amount {
		return store.ErrInsufficientFunds
	}
	account.Balance -= amount
	card.Balance += amount
	return nil
}

func (s *billingRepoStub) WithdrawFromCard(ctx context.Context, cardID string, amount int64) error {
	card := s.cards[cardID]
	if card.Balance < amount {
		return store.ErrInsufficientFunds
	}
	account := s.accounts[card.AccountID]
	card.Balance -= amount
	account.Balance += amount
	return nil
}

func (s *billingRepoStub) CreateBill(ctx context.Context, bill *domain.Bill) error {
	cp := *bill
	s.bills[bill.ID] = &cp
	return nil
}

func (s *billingRepoStub) FindBillByID(ctx context.Context, billID uuid.UUID) (*domain.Bill, error) {
	bill, ok := s.bills[billID]
	if !ok {
		return nil, store.ErrBillNotFound
	}
	return bill, nil
}

func (s *billingRepoStub) PayBillAtomic(ctx context.Context, billID uuid.UUID, cardID string, merchantAccountID string, amount int64) error {
	s.payCalls++
	bill := s.bills[billID]
	if bill.Status != domain.BillStatusPending {
		return store.ErrBillAlreadyPaid
	}
	card := s.cards[cardID]
	if card.Balance < amount {
		return store.ErrInsufficientFunds
	}
	card.Balance -= amount
	s.accounts[merchantAccountID].Balance += amount
	bill.Status = domain.BillStatusPaid
	bill.CardID = &cardID
	now := time.Now().UTC()
	bill.PayedAt = &now
	return nil
}

func seedBillingUser(repo *billingRepoStub, role, category, accountID string, balance int64) uuid.UUID {
	userID := uuid.New()
	repo.users[userID] = &domain.User{ID: userID, Role: role, Category: category, Status: domain.UserStatusActive}
	repo.accounts[accountID] = &domain.Account{
		ID:      accountID,
		UserID:  userID,
		Type:    domain.AccountTypeChecking,
		Balance: balance,
		Status:  domain.AccountStatusActive,
	}
	return userID
}

func seedCard(repo *billingRepoStub, accountID string, balance int64) *domain.Card {
	card := &domain.Card{
		ID:         "4000999988887777",
		AccountID:  accountID,
		CardName:   "groceries",
		Balance:    balance,
		CVV:        "123",
		PIN:        "0000",
		ExpiryDate: time.Now().UTC().AddDate(3, 0, 0),
	}
	repo.cards[card.ID] = card
	return card
}

func TestCreateCard_CarvesBalanceOutOfAccount(t *testing.T) {
	repo := newBillingRepoStub()
	owner := seedBillingUser(repo, domain.RoleCustomer, "", "1111222233334444", 10_000)
	svc := newTestService(repo, &publisherStub{})

	card, err := svc.CreateCard(context.Background(), owner, domain.CreateCardRequest{
		CardName:       "travel",
		InitialBalance: 4_000,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if card.Balance != 4_000 {
		t.Fatalf("expected card balance 4000, got %d", card.Balance)
	}
	if got := repo.accounts["1111222233334444"].Balance; got != 6_000 {
		t.Fatalf("expected account balance 6000 after carve-out, got %d", got)
	}
	if len(card.CVV) != 3 || len(card.PIN) != 4 {
		t.Fatalf("expected generated card credentials, got cvv=%q pin=%q", card.CVV, card.PIN)
	}
}

func TestCreateCard_InsufficientAccountBalance(t *testing.T) {
	repo := newBillingRepoStub()
	owner := seedBillingUser(repo, domain.RoleCustomer, "", "1111222233334444", 1_000)
	svc := newTestService(repo, &publisherStub{})

	_, err := svc.CreateCard(context.Background(), owner, domain.CreateCardRequest{
		CardName:       "travel",
		InitialBalance: 4_000,
	})
	var domainErr *domain.Error
	if !asDomainError(err, &domainErr) || domainErr.Kind != domain.KindConflict {
		t.Fatalf("expected conflict error, got %v", err)
	}
	if got := repo.accounts["1111222233334444"].Balance; got != 1_000 {
		t.Fatalf("account balance changed on failed carve-out: %d", got)
	}
}

func TestDeleteCard_ReturnsBalanceToAccount(t *testing.T) {
	repo := newBillingRepoStub()
	owner := seedBillingUser(repo, domain.RoleCustomer, "", "1111222233334444", 6_000)
	card := seedCard(repo, "1111222233334444", 4_000)
	svc := newTestService(repo, &publisherStub{})

	returned, err := svc.DeleteCard(context.Background(), owner, card.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if returned != 4_000 {
		t.Fatalf("expected 4000 returned, got %d", returned)
	}
	if got := repo.accounts["1111222233334444"].Balance; got != 10_000 {
		t.Fatalf("expected account balance 10000, got %d", got)
	}
}

func TestCardMoves_RejectForeignCard(t *testing.T) {
	repo := newBillingRepoStub()
	seedBillingUser(repo, domain.RoleCustomer, "", "1111222233334444", 6_000)
	card := seedCard(repo, "1111222233334444", 1_000)
	stranger := seedBillingUser(repo, domain.RoleCustomer, "", "5555666677778888", 0)
	svc := newTestService(repo, &publisherStub{})

	_, err := svc.DepositToCard(context.Background(), stranger, domain.CardMoveRequest{CardID: card.ID, Amount: 100})
	var domainErr *domain.Error
	if !asDomainError(err, &domainErr) || domainErr.Kind != domain.KindForbidden {
		t.Fatalf("expected forbidden error, got %v", err)
	}
}

func TestIssueBill_MerchantOnlyWithCategorySnapshot(t *testing.T) {
	repo := newBillingRepoStub()
	merchant := seedBillingUser(repo, domain.RoleMerchant, "utilities", "5555666677778888", 0)
	customer := seedBillingUser(repo, domain.RoleCustomer, "", "1111222233334444", 0)
	svc := newTestService(repo, &publisherStub{})

	bill, err := svc.IssueBill(context.Background(), merchant, domain.IssueBillRequest{Amount: 2_000, Details: "march invoice"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bill.Category != "utilities" {
		t.Fatalf("expected category snapshot, got %q", bill.Category)
	}
	if bill.Status != domain.BillStatusPending {
		t.Fatalf("expected pending bill, got %s", bill.Status)
	}

	_, err = svc.IssueBill(context.Background(), customer, domain.IssueBillRequest{Amount: 2_000})
	var domainErr *domain.Error
	if !asDomainError(err, &domainErr) || domainErr.Kind != domain.KindForbidden {
		t.Fatalf("expected forbidden error for non-merchant, got %v", err)
	}
}

func TestIssueBill_RejectsInactiveAccount(t *testing.T) {
	repo := newBillingRepoStub()
	merchant := seedBillingUser(repo, domain.RoleMerchant, "utilities", "5555666677778888", 0)
	repo.accounts["5555666677778888"].Status = domain.AccountStatusInactive
	svc := newTestService(repo, &publisherStub{})

	_, err := svc.IssueBill(context.Background(), merchant, domain.IssueBillRequest{Amount: 2_000})
	var domainErr *domain.Error
	if !asDomainError(err, &domainErr) || domainErr.Kind != domain.KindConflict || domainErr.Code != "account_inactive" {
		t.Fatalf("expected account_inactive conflict, got %v", err)
	}
}

func TestPayBill_SettlesOnceAndMovesMoney(t *testing.T) {
	repo := newBillingRepoStub()
	merchant := seedBillingUser(repo, domain.RoleMerchant, "utilities", "5555666677778888", 0)
	payer := seedBillingUser(repo, domain.RoleCustomer, "", "1111222233334444", 0)
	card := seedCard(repo, "1111222233334444", 5_000)
	producer := &publisherStub{}
	svc := newTestService(repo, producer)

	bill, err := svc.IssueBill(context.Background(), merchant, domain.IssueBillRequest{Amount: 2_000})
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	expiry := card.ExpiryDate.UTC()
	req := domain.PayBillRequest{
		BillID:      bill.ID,
		CardID:      card.ID,
		CVV:         "123",
		ExpiryMonth: int(expiry.Month()),
		ExpiryYear:  expiry.Year(),
	}
	paid, err := svc.PayBill(context.Background(), payer, req)
	if err != nil {
		t.Fatalf("payment failed: %v", err)
	}
	if paid.Status != domain.BillStatusPaid {
		t.Fatalf("expected paid bill, got %s", paid.Status)
	}
	if paid.CardID == nil || *paid.CardID != card.ID {
		t.Fatalf("expected card recorded on bill, got %v", paid.CardID)
	}
	if card.Balance != 3_000 {
		t.Fatalf("expected card balance 3000, got %d", card.Balance)
	}
	if got := repo.accounts["5555666677778888"].Balance; got != 2_000 {
		t.Fatalf("expected merchant balance 2000, got %d", got)
	}
	if len(producer.billEvents) != 1 {
		t.Fatalf("expected one bill event, got %d", len(producer.billEvents))
	}

	// A second settlement attempt must fail without moving money.
	_, err = svc.PayBill(context.Background(), payer, req)
	var domainErr *domain.Error
	if !asDomainError(err, &domainErr) || domainErr.Kind != domain.KindConflict {
		t.Fatalf("expected conflict on repeated payment, got %v", err)
	}
	if card.Balance != 3_000 {
		t.Fatalf("card balance moved on repeated payment: %d", card.Balance)
	}
}

func TestPayBill_CardChecks(t *testing.T) {
	repo := newBillingRepoStub()
	merchant := seedBillingUser(repo, domain.RoleMerchant, "utilities", "5555666677778888", 0)
	payer := seedBillingUser(repo, domain.RoleCustomer, "", "1111222233334444", 0)
	card := seedCard(repo, "1111222233334444", 5_000)
	svc := newTestService(repo, &publisherStub{})

	bill, err := svc.IssueBill(context.Background(), merchant, domain.IssueBillRequest{Amount: 2_000})
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	expiry := card.ExpiryDate.UTC()

	tests := []struct {
		name string
		req  domain.PayBillRequest
	}{
		{
			name: "wrong cvv",
			req: domain.PayBillRequest{
				BillID: bill.ID, CardID: card.ID, CVV: "999",
				ExpiryMonth: int(expiry.Month()), ExpiryYear: expiry.Year(),
			},
		},
		{
			name: "wrong expiry month",
			req: domain.PayBillRequest{
				BillID: bill.ID, CardID: card.ID, CVV: "123",
				ExpiryMonth: int(expiry.Month())%12 + 1, ExpiryYear: expiry.Year(),
			},
		},
		{
			name: "wrong expiry year",
			req: domain.PayBillRequest{
				BillID: bill.ID, CardID: card.ID, CVV: "123",
				ExpiryMonth: int(expiry.Month()), ExpiryYear: expiry.Year() + 1,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.PayBill(context.Background(), payer, tt.req)
			var domainErr *domain.Error
			if !asDomainError(err, &domainErr) || domainErr.Kind != domain.KindConflict || domainErr.Code != "invalid_card_details" {
				t.Fatalf("expected invalid_card_details conflict, got %v", err)
			}
			if repo.payCalls != 0 {
				t.Fatal("failed card check must not reach settlement")
			}
			if card.Balance != 5_000 {
				t.Fatalf("card balance moved on failed check: %d", card.Balance)
			}
		})
	}
}
