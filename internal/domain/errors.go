package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")

	// ErrNoReference is returned when no deposit or bonus funds the withdrawal.
	ErrNoReference = errors.New("no deposit/reference event found")

	// ErrConfiguration marks rules with unknown evaluators or malformed config.
	ErrConfiguration = errors.New("rule configuration error")

	// ErrWithdrawalClosed is returned for a paid, rejected or cancelled
	// withdrawal that was never decided here.
	ErrWithdrawalClosed = errors.New("withdrawal already closed")

	// ErrPersistenceConflict is a duplicate snapshot write for the same withdrawal.
	ErrPersistenceConflict = errors.New("snapshot already exists")
)

// FetchErrorKind separates retryable vendor failures from permanent ones.
type FetchErrorKind string

const (
	FetchRateLimited  FetchErrorKind = "rate_limited"
	FetchUnauthorized FetchErrorKind = "unauthorized"
	FetchPermanent    FetchErrorKind = "permanent"
)

// FetchError is an evidence fetch failure reported by the vendor client.
type FetchError struct {
	Op     string
	Kind   FetchErrorKind
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Op, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is transient.
func (e *FetchError) Retryable() bool {
	return e.Kind == FetchRateLimited || e.Kind == FetchUnauthorized
}

// IsRetryable reports whether err wraps a transient vendor failure.
func IsRetryable(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Retryable()
}

// IsUnauthorized reports whether err wraps an expired or rejected vendor session.
func IsUnauthorized(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == FetchUnauthorized
}
