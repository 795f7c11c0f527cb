package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected", retryable: true},
		{code: CodeInsufficientStock, status: http.StatusConflict, publicMsg: "not enough stock left", detailsOK: true},
		{code: CodeAlreadyReserved, status: http.StatusConflict, publicMsg: "item already reserved"},
		{code: CodeAlreadyTaken, status: http.StatusUnprocessableEntity, publicMsg: "item already taken"},
		{code: CodeNotYetTaken, status: http.StatusUnprocessableEntity, publicMsg: "item has not been taken"},
		{code: CodeNotCancellable, status: http.StatusUnprocessableEntity, publicMsg: "reservation can no longer be cancelled"},
		{code: CodeStoreUnavailable, status: http.StatusServiceUnavailable, publicMsg: "store unavailable", retryable: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing name")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing name" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	detail := map[string]any{"field": "name"}
	base.WithDetails(detail)
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeStoreUnavailable, cause, "begin tx")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeStoreUnavailable {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := New(CodeAlreadyTaken, "taken")
	if got := As(err); got == nil || got.Code() != CodeAlreadyTaken {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestIsCodeLooksThroughWrapping(t *testing.T) {
	err := fmt.Errorf("reserve: %w", New(CodeInsufficientStock, "only 3 left"))
	if !IsCode(err, CodeInsufficientStock) {
		t.Fatalf("expected IsCode to find the typed error")
	}
	if IsCode(err, CodeConflict) {
		t.Fatalf("IsCode matched the wrong code")
	}
	if IsCode(stdErrors.New("plain"), CodeInternal) {
		t.Fatalf("plain errors carry no code")
	}
}

func TestDumpCollectsChain(t *testing.T) {
	err := Wrap(CodeStoreUnavailable, stdErrors.New("connection refused"), "load item")
	dump := Dump(err)
	if dump.Code != CodeStoreUnavailable {
		t.Fatalf("expected dump code, got %s", dump.Code)
	}
	if len(dump.Chain) != 2 {
		t.Fatalf("expected chain of 2, got %v", dump.Chain)
	}
}

func TestDumpReportsPostgresFields(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "uq_hardware_items_name", TableName: "hardware_items"}
	err := Wrap(CodeStoreUnavailable, fmt.Errorf("insert: %w", pgErr), "add items")

	fields := Dump(err).LogFields()
	if fields["pg_code"] != "23505" || fields["pg_constraint"] != "uq_hardware_items_name" {
		t.Fatalf("unexpected log fields: %v", fields)
	}
	if Dump(stdErrors.New("plain")).LogFields() != nil {
		t.Fatalf("expected no fields without a driver error")
	}
}
