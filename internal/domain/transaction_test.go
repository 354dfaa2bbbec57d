package domain

import (
	"net/http"
	"testing"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		current string
		target  string
		want    bool
	}{
		{TransactionStatusPending, TransactionStatusCompleted, true},
		{TransactionStatusPending, TransactionStatusFailed, true},
		{TransactionStatusPending, TransactionStatusDeleted, false},
		{TransactionStatusCompleted, TransactionStatusDeleted, true},
		{TransactionStatusCompleted, TransactionStatusPending, false},
		{TransactionStatusCompleted, TransactionStatusFailed, false},
		{TransactionStatusFailed, TransactionStatusCompleted, false},
		{TransactionStatusFailed, TransactionStatusDeleted, false},
		{TransactionStatusDeleted, TransactionStatusCompleted, false},
		{"bogus", TransactionStatusCompleted, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.current, tc.target); got != tc.want {
			t.Errorf("CanTransition(%q, %q) = %v, want %v", tc.current, tc.target, got, tc.want)
		}
	}
}

func TestErrorHTTPStatus(t *testing.T) {
	cases := []struct {
		err  *Error
		want int
	}{
		{NotFoundError("account_not_found", "account not found"), http.StatusNotFound},
		{ConflictError("bill_already_paid", "bill already paid"), http.StatusConflict},
		{UnauthorizedError("token_invalid", "invalid token"), http.StatusUnauthorized},
		{AuthFailureError("bad_credentials", "invalid email or password"), http.StatusUnauthorized},
		{ForbiddenError("supervisor_required", "supervisor role required"), http.StatusForbidden},
		{ValidationError("amount_invalid", "amount must be positive", "amount"), http.StatusUnprocessableEntity},
		{InternalError("unexpected internal error"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := tc.err.HTTPStatus(); got != tc.want {
			t.Errorf("HTTPStatus() for kind %q = %d, want %d", tc.err.Kind, got, tc.want)
		}
	}
}
