// Package otp issues short-lived email verification codes. Only a SHA-256
// hash of the code is stored, with an explicit TTL and an attempt counter.
package otp

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/arogyalink/hms/internal/platform/apperr"
	"github.com/arogyalink/hms/internal/platform/kv"
	"github.com/arogyalink/hms/internal/platform/notification"
)

const (
	CodeLength  = 6
	MaxAttempts = 5
	DefaultTTL  = 5 * time.Minute
)

var (
	ErrExpired     = errors.New("no code issued or code expired")
	ErrMismatch    = errors.New("code does not match")
	ErrMaxAttempts = errors.New("too many attempts")
)

func keyCode(email string) string     { return "otp:" + email }
func keyAttempts(email string) string { return "otp:attempts:" + email }

// Generate returns a zero-padded numeric code of CodeLength digits.
func Generate() (string, error) {
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(CodeLength), nil)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", CodeLength, n), nil
}

func Hash(code string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(code)))
	return hex.EncodeToString(sum[:])
}

// Verify compares code against hash in constant time.
func Verify(hash, code string) error {
	if subtle.ConstantTimeCompare([]byte(hash), []byte(Hash(code))) != 1 {
		return ErrMismatch
	}
	return nil
}

type Notifier interface {
	Notify(msg notification.Message)
}

type Service struct {
	store    kv.Store
	notifier Notifier
	ttl      time.Duration
	generate func() (string, error)
}

func NewService(store kv.Store, notifier Notifier, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{store: store, notifier: notifier, ttl: ttl, generate: Generate}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Request issues a fresh code for email, replacing any earlier one, and
// emails it.
func (s *Service) Request(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return apperr.Invalid("email is required")
	}
	code, err := s.generate()
	if err != nil {
		return err
	}
	if err := s.store.Set(ctx, keyCode(email), Hash(code), s.ttl); err != nil {
		return fmt.Errorf("store code: %w", err)
	}
	if err := s.store.Set(ctx, keyAttempts(email), "0", s.ttl); err != nil {
		return fmt.Errorf("reset attempts: %w", err)
	}
	s.notifier.Notify(notification.Message{
		To:         email,
		TemplateID: notification.TplOTP,
		Data: map[string]string{
			"code":        code,
			"ttl_minutes": strconv.Itoa(int(s.ttl / time.Minute)),
		},
	})
	return nil
}

// Check verifies code for email and consumes it on success.
func (s *Service) Check(ctx context.Context, email, code string) error {
	email = normalizeEmail(email)
	hash, err := s.store.Get(ctx, keyCode(email))
	if errors.Is(err, kv.ErrNotFound) {
		return apperr.Invalid("%s", ErrExpired.Error())
	}
	if err != nil {
		return fmt.Errorf("load code: %w", err)
	}

	attempts := 0
	if v, err := s.store.Get(ctx, keyAttempts(email)); err == nil {
		attempts, _ = strconv.Atoi(v)
	}
	if attempts >= MaxAttempts {
		return apperr.Invalid("%s", ErrMaxAttempts.Error())
	}

	if err := Verify(hash, code); err != nil {
		if _, err := s.store.Incr(ctx, keyAttempts(email)); err != nil {
			return fmt.Errorf("count attempt: %w", err)
		}
		return apperr.Invalid("%s", ErrMismatch.Error())
	}
	return s.store.Del(ctx, keyCode(email), keyAttempts(email))
}
