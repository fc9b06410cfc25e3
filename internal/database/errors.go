package database

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

type ErrorClass int

const (
	ErrorClassPermanent ErrorClass = iota
	ErrorClassTransient
	ErrorClassDeadlock
	ErrorClassSerialization
)

func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorClassPermanent
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001":
			return ErrorClassSerialization
		case "40P01":
			return ErrorClassDeadlock
		case "55P03":
			return ErrorClassTransient
		case "23505", "23503", "23502", "23514":
			return ErrorClassPermanent
		}
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrorClassPermanent
	}

	return ErrorClassPermanent
}

func IsRetryable(err error) bool {
	class := ClassifyError(err)
	return class == ErrorClassTransient ||
		class == ErrorClassDeadlock ||
		class == ErrorClassSerialization
}

// IsUniqueViolation reports whether err is a Postgres unique_violation.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// Lookup failures.
var (
	ErrUserNotFound    = errors.New("user not found")
	ErrProductNotFound = errors.New("product not found")
	ErrOrderNotFound   = errors.New("order not found")
)

// Request validation. Rejected before any mutation.
var (
	ErrEmptyOrder      = errors.New("order has no items")
	ErrTooManyItems    = errors.New("order has too many items")
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrDuplicateItem   = errors.New("product listed more than once")
	ErrInvalidAddress  = errors.New("invalid shipping address")
	ErrInvalidPayment  = errors.New("invalid payment details")
	ErrInvalidShipment = errors.New("carrier and tracking number are required")
	ErrInvalidCursor   = errors.New("invalid cursor")
)

// Business-rule conflicts. The triggering transaction is rolled back in full.
var (
	ErrProductUnavailable   = errors.New("product unavailable")
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrInvalidOrderState    = errors.New("invalid order state")
	ErrAlreadyPaid          = errors.New("order already paid")
	ErrAmountMismatch       = errors.New("payment amount does not match order total")
	ErrForbidden            = errors.New("forbidden")
	ErrOptimisticLockFailed = errors.New("optimistic lock failed")
	ErrOrderNumberExhausted = errors.New("could not allocate a unique order number")
	// ErrLockTimeout is returned by WithRetry when every attempt ended waiting
	// on a row lock.
	ErrLockTimeout = errors.New("lock timeout")
)
