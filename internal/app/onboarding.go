/**
 * @description
 * Identity use cases: registration with its canonical checking account,
 * login with distributed rate limiting, logout (token revocation), account
 * closure, and the beneficiary trust relations.
 *
 * @dependencies
 * - golang.org/x/crypto/bcrypt: Password hashing.
 * - internal/auth: Token issue/revoke.
 */

package app

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vaultbank/ledger-service/internal/auth"
	"github.com/vaultbank/ledger-service/internal/domain"
	"github.com/vaultbank/ledger-service/internal/store"
	"golang.org/x/crypto/bcrypt"
)

const loginRateWindow = time.Minute

// Register creates a new user together with their checking account. The
// account creation failing rolls the user row back so no orphan identity
// remains.
func (s *Service) Register(ctx context.Context, req domain.RegistrationRequest) (*domain.User, error) {
	if err := validateRegistration(req); err != nil {
		return nil, err
	}
	birthdate, err := time.Parse("2006-01-02", req.Birthdate)
	if err != nil {
		return nil, domain.ValidationError("invalid_birthdate", "birthdate must be YYYY-MM-DD", "birthdate")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("Register: bcrypt hash failed: %v", err)
		return nil, domain.InternalError("failed to process credentials")
	}

	user := &domain.User{
		ID:           uuid.New(),
		Name:         strings.TrimSpace(req.Name),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:        strings.TrimSpace(req.Phone),
		Birthdate:    birthdate,
		Role:         req.Role,
		Status:       domain.UserStatusActive,
		Category:     strings.TrimSpace(req.Category),
		PasswordHash: string(hash),
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, mapStoreError(err)
	}

	account := &domain.Account{
		UserID:  user.ID,
		Type:    domain.AccountTypeChecking,
		Balance: 0,
		Status:  domain.AccountStatusActive,
	}
	if err := s.repo.CreateAccount(ctx, account); err != nil {
		log.Printf("Register: account creation failed for user %s, rolling back: %v", user.ID, err)
		if delErr := s.repo.DeleteUserPhysical(ctx, user.ID); delErr != nil {
			log.Printf("Register: rollback of user %s failed: %v", user.ID, delErr)
		}
		return nil, mapStoreError(err)
	}

	event := domain.UserRegisteredEvent{
		UserID:    user.ID,
		Email:     user.Email,
		Role:      user.Role,
		Timestamp: time.Now().UTC(),
	}
	if err := s.eventProducer.PublishUserRegisteredEvent(ctx, event); err != nil {
		log.Printf("Register: event publish failed for %s: %v", user.ID, err)
	}
	return user, nil
}

// EmailAvailable reports whether an email is free to register. Called before
// the registration key exchange so a taken email fails fast, before the
// client wastes an RSA negotiation on it.
func (s *Service) EmailAvailable(ctx context.Context, email string) error {
	_, err := s.repo.FindUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err == nil {
		return domain.ConflictError("email_taken", "an account with this email already exists")
	}
	if errors.Is(err, store.ErrUserNotFound) {
		return nil
	}
	return mapStoreError(err)
}

func validateRegistration(req domain.RegistrationRequest) error {
	if strings.TrimSpace(req.Name) == "" {
		return domain.ValidationError("missing_name", "name is required", "name")
	}
	if strings.TrimSpace(req.Email) == "" || !strings.Contains(req.Email, "@") {
		return domain.ValidationError("invalid_email", "a valid email is required", "email")
	}
	if len(req.Password) < 8 {
		return domain.ValidationError("weak_password", "password must be at least 8 characters", "password")
	}
	switch req.Role {
	case domain.RoleCustomer, domain.RoleMerchant, domain.RoleVendor:
	case domain.RoleAdmin, domain.RoleEmployee:
		// Staff accounts are provisioned operationally, never self-registered.
		return domain.ForbiddenError("role_not_allowed", "staff roles cannot self-register")
	default:
		return domain.ValidationError("invalid_role", "unknown role", "role")
	}
	if req.Role == domain.RoleMerchant && strings.TrimSpace(req.Category) == "" {
		return domain.ValidationError("missing_category", "merchants must declare a business category", "category")
	}
	return nil
}

// Login verifies credentials and issues a signed token. Attempts are rate
// limited per email across all replicas; lookup and compare failures return
// the same auth error so the endpoint does not reveal which emails exist.
func (s *Service) Login(ctx context.Context, req domain.LoginRequest) (string, *domain.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return "", nil, domain.ValidationError("missing_credentials", "email and password are required", "")
	}

	if s.limiter != nil && s.loginLimit > 0 {
		count, retryAfter, err := s.limiter.ConsumeRateLimit(ctx, "login", email, s.loginLimit, loginRateWindow)
		if err != nil {
			log.Printf("Login: rate limiter unavailable, allowing attempt: %v", err)
		} else if count > s.loginLimit {
			log.Printf("Login: rate limited email=%s retry_after=%ds", email, retryAfter)
			return "", nil, domain.ConflictError("rate_limited", "too many login attempts, try again later")
		}
	}

	user, err := s.repo.FindUserByEmail(ctx, email)
	if err != nil {
		return "", nil, domain.AuthFailureError("bad_credentials", "invalid email or password")
	}
	if user.Status != domain.UserStatusActive {
		return "", nil, domain.ForbiddenError("user_not_active", "user account is not active")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return "", nil, domain.AuthFailureError("bad_credentials", "invalid email or password")
	}

	token, err := s.tokens.Issue(user.ID, user.Role)
	if err != nil {
		log.Printf("Login: token issue failed for %s: %v", user.ID, err)
		return "", nil, domain.InternalError("failed to issue token")
	}
	return token, user, nil
}

// Logout revokes the presented token so it is rejected for the rest of its
// lifetime, even though the signature still verifies.
func (s *Service) Logout(ctx context.Context, claims *auth.Claims) error {
	if err := s.tokens.Revoke(ctx, claims); err != nil {
		log.Printf("Logout: revocation failed for token %s: %v", claims.TokenID, err)
		return domain.InternalError("failed to revoke token")
	}
	return nil
}

// CloseUser soft-deletes the caller's identity and deactivates their
// checking account. Balances are preserved for audit.
func (s *Service) CloseUser(ctx context.Context, callerID uuid.UUID) error {
	account, err := s.repo.FindCheckingAccountByUserID(ctx, callerID)
	if err != nil {
		return mapStoreError(err)
	}
	if err := s.repo.DeactivateAccount(ctx, account.ID); err != nil {
		return mapStoreError(err)
	}
	if err := s.repo.UpdateUserStatus(ctx, callerID, domain.UserStatusDeleted); err != nil {
		return mapStoreError(err)
	}
	return nil
}

// GetUser returns the caller's own identity.
func (s *Service) GetUser(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	user, err := s.repo.FindUserByID(ctx, userID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return user, nil
}

// RequestBeneficiary creates a pending trust relation towards another user.
func (s *Service) RequestBeneficiary(ctx context.Context, callerID uuid.UUID, req domain.BeneficiaryRequest) (*domain.Beneficiary, error) {
	accepting, err := s.repo.FindUserByEmail(ctx, strings.ToLower(strings.TrimSpace(req.AcceptingUserEmail)))
	if err != nil {
		return nil, mapStoreError(err)
	}
	if accepting.ID == callerID {
		return nil, domain.ValidationError("self_beneficiary", "cannot add yourself as a beneficiary", "accepting_user_email")
	}
	if _, err := s.repo.FindBeneficiaryBetween(ctx, callerID, accepting.ID); err == nil {
		return nil, domain.ConflictError("beneficiary_exists", "beneficiary relation already requested")
	}

	beneficiary := &domain.Beneficiary{
		ID:               uuid.New(),
		RequestingUserID: callerID,
		AcceptingUserID:  accepting.ID,
		Accepted:         false,
	}
	if err := s.repo.CreateBeneficiary(ctx, beneficiary); err != nil {
		return nil, mapStoreError(err)
	}
	return beneficiary, nil
}

// AcceptBeneficiary flips a pending relation to accepted. Only the accepting
// party can do this.
func (s *Service) AcceptBeneficiary(ctx context.Context, callerID uuid.UUID, beneficiaryID uuid.UUID) error {
	if err := s.repo.AcceptBeneficiary(ctx, beneficiaryID, callerID); err != nil {
		return mapStoreError(err)
	}
	return nil
}

// ListBeneficiaries returns relations where the caller is either party.
func (s *Service) ListBeneficiaries(ctx context.Context, callerID uuid.UUID) ([]domain.Beneficiary, error) {
	beneficiaries, err := s.repo.ListBeneficiariesByUserID(ctx, callerID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return beneficiaries, nil
}
