// Package apperr defines the error kinds shared by the domain services and
// their translation to HTTP responses.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/labstack/echo/v4"
)

// Error kinds. Services wrap one of these so callers can use errors.Is.
var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrExhausted          = errors.New("capacity exhausted")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvariantViolation = errors.New("invariant violation")
)

// Error carries a caller-facing message and the kind it belongs to.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Kind }

func newf(kind error, format string, args ...interface{}) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...interface{}) error {
	return newf(ErrNotFound, format, args...)
}

func Conflict(format string, args ...interface{}) error {
	return newf(ErrConflict, format, args...)
}

func Exhausted(format string, args ...interface{}) error {
	return newf(ErrExhausted, format, args...)
}

func Invalid(format string, args ...interface{}) error {
	return newf(ErrInvalidInput, format, args...)
}

func Invariant(format string, args ...interface{}) error {
	return newf(ErrInvariantViolation, format, args...)
}

// Postgres SQLSTATE codes the services react to.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// FromStorage maps a missing row to NotFound and a unique violation to
// Conflict, using the given entity name, and wraps anything else.
func FromStorage(err error, entity string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return NotFound("%s not found", entity)
	}
	if IsUniqueViolation(err) {
		return Conflict("%s already exists", entity)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
		return NotFound("%s references a record that does not exist", entity)
	}
	return fmt.Errorf("%s: %w", entity, err)
}

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// failure.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// Status returns the HTTP status code for err.
func Status(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict), errors.Is(err, ErrExhausted):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// ToHTTP converts a service error into an echo HTTP error. Internal errors
// keep the original error attached so the error handler can log it without
// exposing it to the client.
func ToHTTP(err error) error {
	if err == nil {
		return nil
	}
	status := Status(err)
	if status == http.StatusInternalServerError {
		return echo.NewHTTPError(status, "internal server error").SetInternal(err)
	}
	return echo.NewHTTPError(status, err.Error()).SetInternal(err)
}
