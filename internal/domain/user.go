/**
 * @description
 * This file defines the user domain model and its role/status vocabularies.
 * Users own accounts and cards; supervisors (Admin/Employee) additionally
 * perform cash operations on behalf of customer accounts.
 *
 * @notes
 * - Account removal is a soft delete (status flip to Deleted). Physical row
 *   deletion only happens when a failed registration is rolled back.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleAdmin    = "admin"
	RoleEmployee = "employee"
	RoleCustomer = "customer"
	RoleMerchant = "merchant"
	RoleVendor   = "vendor"
)

const (
	UserStatusActive  = "active"
	UserStatusDeleted = "deleted"
	UserStatusBanned  = "banned"
	UserStatusStopped = "stopped"
)

// User represents an identity in the system. This struct maps directly to the
// `users` table in the database.
type User struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	Birthdate    time.Time `json:"birthdate"`
	Role         string    `json:"role"`
	Status       string    `json:"status"`
	Category     string    `json:"category,omitempty"` // merchant business category, empty otherwise
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// IsSupervisor reports whether the user may perform cash deposits/withdrawals
// on behalf of other accounts.
func (u *User) IsSupervisor() bool {
	return u.Role == RoleAdmin || u.Role == RoleEmployee
}

// ValidRole reports whether the given role is one of the known roles.
func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleEmployee, RoleCustomer, RoleMerchant, RoleVendor:
		return true
	}
	return false
}

// RegistrationRequest is the DTO carried inside the encrypted registration payload.
type RegistrationRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Birthdate string `json:"birthdate"` // YYYY-MM-DD
	Role      string `json:"role"`
	Category  string `json:"category,omitempty"`
	Password  string `json:"password"`
}

// LoginRequest is the DTO for the login endpoint.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
