package store

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestGenerateNumericID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := generateNumericID()
		if err != nil {
			t.Fatalf("generateNumericID: %v", err)
		}
		if len(id) != 16 {
			t.Fatalf("id %q has length %d, want 16", id, len(id))
		}
		if id[0] == '0' {
			t.Fatalf("id %q starts with a zero", id)
		}
		for _, c := range id {
			if c < '0' || c > '9' {
				t.Fatalf("id %q contains non-digit %q", id, c)
			}
		}
		if seen[id] {
			t.Fatalf("id %q generated twice in 100 draws", id)
		}
		seen[id] = true
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !isUniqueViolation(&pgconn.PgError{Code: uniqueViolationCode}) {
		t.Error("expected unique violation for code 23505")
	}
	if isUniqueViolation(&pgconn.PgError{Code: "23503"}) {
		t.Error("foreign key violation should not count as unique violation")
	}
	if isUniqueViolation(errors.New("plain error")) {
		t.Error("plain error should not count as unique violation")
	}
}
