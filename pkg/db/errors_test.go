package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

var tokenConstraint = UniqueConstraint{
	Name:    "uq_hardware_reservations_token",
	Table:   "hardware_reservations",
	Columns: []string{"token"},
}

func TestUniqueConstraintMatchesPgError(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: tokenConstraint.Name})
	if !tokenConstraint.Violated(err) {
		t.Fatal("expected pg unique violation to match")
	}

	other := &pgconn.PgError{Code: "23505", ConstraintName: "uq_hardware_items_name"}
	if tokenConstraint.Violated(other) {
		t.Fatal("different constraint must not match")
	}
}

func TestUniqueConstraintMatchesSQLiteMessage(t *testing.T) {
	err := errors.New("UNIQUE constraint failed: hardware_reservations.token")
	if !tokenConstraint.Violated(err) {
		t.Fatal("expected sqlite message to match")
	}

	pair := UniqueConstraint{
		Name:    "uq_hardware_reservations_user_item",
		Table:   "hardware_reservations",
		Columns: []string{"user_id", "item_id"},
	}
	if pair.Violated(err) {
		t.Fatal("token violation must not match the user/item constraint")
	}
	if !pair.Violated(errors.New("UNIQUE constraint failed: hardware_reservations.user_id, hardware_reservations.item_id")) {
		t.Fatal("expected composite sqlite message to match")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if IsUniqueViolation(nil, "") {
		t.Fatal("nil is never a violation")
	}
	if !IsUniqueViolation(errors.New(`ERROR: duplicate key value violates unique constraint "x"`), "") {
		t.Fatal("expected generic pg message to match")
	}
	if !IsUniqueViolation(&pgconn.PgError{Code: "23505", ConstraintName: "x"}, "x") {
		t.Fatal("expected named pg violation to match")
	}
	if IsUniqueViolation(errors.New("connection reset"), "") {
		t.Fatal("unrelated errors must not match")
	}
}
