package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/labstack/echo/v4"
)

func TestKinds_Is(t *testing.T) {
	tests := []struct {
		err  error
		kind error
	}{
		{NotFound("bed partition not found"), ErrNotFound},
		{Conflict("slot already booked"), ErrConflict},
		{Exhausted("no available beds"), ErrExhausted},
		{Invalid("doctor_id is required"), ErrInvalidInput},
		{Invariant("release on empty partition"), ErrInvariantViolation},
	}
	for _, tt := range tests {
		if !errors.Is(tt.err, tt.kind) {
			t.Errorf("%v: expected kind %v", tt.err, tt.kind)
		}
		wrapped := fmt.Errorf("approve: %w", tt.err)
		if !errors.Is(wrapped, tt.kind) {
			t.Errorf("wrapped %v lost kind %v", wrapped, tt.kind)
		}
	}
}

func TestStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{NotFound("x"), http.StatusNotFound},
		{Conflict("x"), http.StatusConflict},
		{Exhausted("x"), http.StatusConflict},
		{Invalid("x"), http.StatusBadRequest},
		{Invariant("x"), http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := Status(tt.err); got != tt.want {
			t.Errorf("Status(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestFromStorage(t *testing.T) {
	if FromStorage(nil, "slot") != nil {
		t.Error("expected nil for nil error")
	}
	err := FromStorage(pgx.ErrNoRows, "slot")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected NotFound, got %v", err)
	}
	if err.Error() != "slot not found" {
		t.Errorf("unexpected message: %s", err.Error())
	}
	other := FromStorage(errors.New("connection reset"), "slot")
	if errors.Is(other, ErrNotFound) {
		t.Error("unexpected NotFound for storage failure")
	}
}

func TestToHTTP_HidesInternalMessage(t *testing.T) {
	err := ToHTTP(Invariant("occupied_beds already zero"))
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %T", err)
	}
	if he.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", he.Code)
	}
	if he.Message != "internal server error" {
		t.Errorf("expected generic message, got %v", he.Message)
	}
	if !errors.Is(err, ErrInvariantViolation) {
		t.Error("expected internal error to stay reachable")
	}
}

func TestToHTTP_ClientError(t *testing.T) {
	err := ToHTTP(Conflict("slot already booked"))
	he := err.(*echo.HTTPError)
	if he.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", he.Code)
	}
	if he.Message != "slot already booked" {
		t.Errorf("unexpected message %v", he.Message)
	}
}

func TestFromStorage_Constraints(t *testing.T) {
	dup := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "opd_slot_unique"})
	if err := FromStorage(dup, "slot"); !errors.Is(err, ErrConflict) {
		t.Errorf("expected conflict, got %v", err)
	}
	if !IsUniqueViolation(dup) {
		t.Error("expected unique violation to be detected")
	}

	fk := &pgconn.PgError{Code: "23503"}
	if err := FromStorage(fk, "admission"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if IsUniqueViolation(fk) {
		t.Error("foreign key violation is not a unique violation")
	}
}
