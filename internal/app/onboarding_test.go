package app

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/vaultbank/ledger-service/internal/auth"
	"github.com/vaultbank/ledger-service/internal/domain"
	"github.com/vaultbank/ledger-service/internal/store"
	"golang.org/x/crypto/bcrypt"
)

type onboardingRepoStub struct {
	store.Repository
	usersByEmail map[string]*domain.User
	created      []*domain.User
	deleted      []uuid.UUID
	accountErr   error
}

func newOnboardingRepoStub() *onboardingRepoStub {
	return &onboardingRepoStub{usersByEmail: make(map[string]*domain.User)}
}

func (s *onboardingRepoStub) CreateUser(ctx context.Context, user *domain.User) error {
	if _, exists := s.usersByEmail[user.Email]; exists {
		return store.ErrDuplicateEmail
	}
	s.usersByEmail[user.Email] = user
	s.created = append(s.created, user)
	return nil
}

func (s *onboardingRepoStub) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	user, ok := s.usersByEmail[email]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	return user, nil
}

func (s *onboardingRepoStub) CreateAccount(ctx context.Context, account *domain.Account) error {
	if s.accountErr != nil {
		return s.accountErr
	}
	account.ID = "1111222233334444"
	return nil
}

func (s *onboardingRepoStub) DeleteUserPhysical(ctx context.Context, userID uuid.UUID) error {
	s.deleted = append(s.deleted, userID)
	for email, user := range s.usersByEmail {
		if user.ID == userID {
			delete(s.usersByEmail, email)
		}
	}
	return nil
}

// fixedLimiter always reports the given count.
type fixedLimiter struct {
	count int
}

func (l *fixedLimiter) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	return l.count, 30, nil
}

func validRegistration() domain.RegistrationRequest {
	return domain.RegistrationRequest{
		Name:      "Ada Example",
		Email:     "Ada@Example.com",
		Phone:     "+15550100",
		Birthdate: "1990-04-01",
		Role:      domain.RoleCustomer,
		Password:  "correct horse battery",
	}
}

func TestRegister_CreatesUserAndPublishesEvent(t *testing.T) {
	repo := newOnboardingRepoStub()
	producer := &publisherStub{}
	svc := newTestService(repo, producer)

	user, err := svc.Register(context.Background(), validRegistration())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.Email != "ada@example.com" {
		t.Fatalf("expected lowercased email, got %q", user.Email)
	}
	if user.Status != domain.UserStatusActive {
		t.Fatalf("expected active user, got %s", user.Status)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("correct horse battery")); err != nil {
		t.Fatalf("stored hash does not match password: %v", err)
	}
	if len(producer.userEvents) != 1 {
		t.Fatalf("expected one registration event, got %d", len(producer.userEvents))
	}
}

func TestRegister_Validation(t *testing.T) {
	svc := newTestService(newOnboardingRepoStub(), &publisherStub{})

	tests := []struct {
		name   string
		mutate func(*domain.RegistrationRequest)
		kind   domain.ErrorKind
	}{
		{
			name:   "staff roles cannot self-register",
			mutate: func(r *domain.RegistrationRequest) { r.Role = domain.RoleAdmin },
			kind:   domain.KindForbidden,
		},
		{
			name:   "unknown role",
			mutate: func(r *domain.RegistrationRequest) { r.Role = "superuser" },
			kind:   domain.KindValidation,
		},
		{
			name:   "merchant without category",
			mutate: func(r *domain.RegistrationRequest) { r.Role = domain.RoleMerchant; r.Category = "" },
			kind:   domain.KindValidation,
		},
		{
			name:   "short password",
			mutate: func(r *domain.RegistrationRequest) { r.Password = "short" },
			kind:   domain.KindValidation,
		},
		{
			name:   "bad birthdate",
			mutate: func(r *domain.RegistrationRequest) { r.Birthdate = "01/04/1990" },
			kind:   domain.KindValidation,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRegistration()
			tt.mutate(&req)
			_, err := svc.Register(context.Background(), req)
			var domainErr *domain.Error
			if !asDomainError(err, &domainErr) || domainErr.Kind != tt.kind {
				t.Fatalf("expected %s error, got %v", tt.kind, err)
			}
		})
	}
}

func TestRegister_RollsBackUserWhenAccountFails(t *testing.T) {
	repo := newOnboardingRepoStub()
	repo.accountErr = store.ErrAccountNotFound // any repository failure
	svc := newTestService(repo, &publisherStub{})

	_, err := svc.Register(context.Background(), validRegistration())
	if err == nil {
		t.Fatal("expected an error")
	}
	if len(repo.created) != 1 || len(repo.deleted) != 1 {
		t.Fatalf("expected created user to be rolled back, created=%d deleted=%d", len(repo.created), len(repo.deleted))
	}
	if repo.created[0].ID != repo.deleted[0] {
		t.Fatal("rolled back a different user than was created")
	}
}

func seedCredentials(repo *onboardingRepoStub, email, password, status string) *domain.User {
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	user := &domain.User{
		ID:           uuid.New(),
		Email:        email,
		Role:         domain.RoleCustomer,
		Status:       status,
		PasswordHash: string(hash),
	}
	repo.usersByEmail[email] = user
	return user
}

func TestLogin_IssuesValidToken(t *testing.T) {
	repo := newOnboardingRepoStub()
	user := seedCredentials(repo, "ada@example.com", "correct horse battery", domain.UserStatusActive)
	svc := newTestService(repo, &publisherStub{})

	token, got, err := svc.Login(context.Background(), domain.LoginRequest{
		Email:    "Ada@Example.com",
		Password: "correct horse battery",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != user.ID {
		t.Fatal("returned a different user")
	}

	claims, err := svc.tokens.Validate(context.Background(), token)
	if err != nil {
		t.Fatalf("issued token does not validate: %v", err)
	}
	if claims.UserID != user.ID || claims.Role != domain.RoleCustomer {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestLogin_UniformErrorForBadCredentials(t *testing.T) {
	repo := newOnboardingRepoStub()
	seedCredentials(repo, "ada@example.com", "correct horse battery", domain.UserStatusActive)
	svc := newTestService(repo, &publisherStub{})

	tests := []struct {
		name string
		req  domain.LoginRequest
	}{
		{name: "unknown email", req: domain.LoginRequest{Email: "nobody@example.com", Password: "whatever!"}},
		{name: "wrong password", req: domain.LoginRequest{Email: "ada@example.com", Password: "wrong password"}},
	}
	var messages []string
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.Login(context.Background(), tt.req)
			var domainErr *domain.Error
			if !asDomainError(err, &domainErr) || domainErr.Kind != domain.KindAuthFailure {
				t.Fatalf("expected auth failure, got %v", err)
			}
			messages = append(messages, domainErr.Message)
		})
	}
	if len(messages) == 2 && messages[0] != messages[1] {
		t.Fatalf("login errors reveal which emails exist: %q vs %q", messages[0], messages[1])
	}
}

func TestLogin_RejectsInactiveUser(t *testing.T) {
	repo := newOnboardingRepoStub()
	seedCredentials(repo, "ada@example.com", "correct horse battery", domain.UserStatusBanned)
	svc := newTestService(repo, &publisherStub{})

	_, _, err := svc.Login(context.Background(), domain.LoginRequest{
		Email:    "ada@example.com",
		Password: "correct horse battery",
	})
	var domainErr *domain.Error
	if !asDomainError(err, &domainErr) || domainErr.Kind != domain.KindForbidden {
		t.Fatalf("expected forbidden error, got %v", err)
	}
}

func TestLogin_RateLimited(t *testing.T) {
	repo := newOnboardingRepoStub()
	seedCredentials(repo, "ada@example.com", "correct horse battery", domain.UserStatusActive)
	tokens := auth.NewTokenManager([]byte("test-secret"), 30*time.Minute, auth.NewMemoryRevocationStore())
	svc := NewService(repo, tokens, &publisherStub{}, &fixedLimiter{count: 11}, 10)

	_, _, err := svc.Login(context.Background(), domain.LoginRequest{
		Email:    "ada@example.com",
		Password: "correct horse battery",
	})
	var domainErr *domain.Error
	if !asDomainError(err, &domainErr) || domainErr.Code != "rate_limited" {
		t.Fatalf("expected rate limited error, got %v", err)
	}
}

func TestLogout_RevokesToken(t *testing.T) {
	repo := newOnboardingRepoStub()
	user := seedCredentials(repo, "ada@example.com", "correct horse battery", domain.UserStatusActive)
	svc := newTestService(repo, &publisherStub{})

	token, _, err := svc.Login(context.Background(), domain.LoginRequest{
		Email:    "ada@example.com",
		Password: "correct horse battery",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	claims, err := svc.tokens.Validate(context.Background(), token)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if claims.UserID != user.ID {
		t.Fatal("claims belong to a different user")
	}

	if err := svc.Logout(context.Background(), claims); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	if _, err := svc.tokens.Validate(context.Background(), token); err == nil {
		t.Fatal("token still validates after logout")
	}
}

func TestEmailAvailable(t *testing.T) {
	repo := newOnboardingRepoStub()
	seedCredentials(repo, "taken@example.com", "correct horse battery", domain.UserStatusActive)
	svc := newTestService(repo, &publisherStub{})

	if err := svc.EmailAvailable(context.Background(), "fresh@example.com"); err != nil {
		t.Fatalf("fresh email reported unavailable: %v", err)
	}

	err := svc.EmailAvailable(context.Background(), "Taken@Example.com")
	var domErr *domain.Error
	if !asDomainError(err, &domErr) || domErr.Kind != domain.KindConflict {
		t.Fatalf("expected conflict for taken email, got %v", err)
	}
}
