package ledger

import (
	"errors"
	"strings"
)

// Kind is a stable error classification callers can switch on.
type Kind string

const (
	KindInvalidAmount          Kind = "INVALID_AMOUNT"
	KindSameAccountTransfer    Kind = "SAME_ACCOUNT_TRANSFER"
	KindAccountNotFound        Kind = "ACCOUNT_NOT_FOUND"
	KindForbidden              Kind = "FORBIDDEN"
	KindInsufficientFunds      Kind = "INSUFFICIENT_FUNDS"
	KindConflict               Kind = "CONFLICT"
	KindTimeout                Kind = "TIMEOUT"
	KindReconciliationRequired Kind = "RECONCILIATION_REQUIRED"
)

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrInvalidAmount          = &Error{Kind: KindInvalidAmount}
	ErrSameAccountTransfer    = &Error{Kind: KindSameAccountTransfer}
	ErrAccountNotFound        = &Error{Kind: KindAccountNotFound}
	ErrForbidden              = &Error{Kind: KindForbidden}
	ErrInsufficientFunds      = &Error{Kind: KindInsufficientFunds}
	ErrConflict               = &Error{Kind: KindConflict}
	ErrTimeout                = &Error{Kind: KindTimeout}
	ErrReconciliationRequired = &Error{Kind: KindReconciliationRequired}
)

// Error is a ledger failure with a stable Kind.
type Error struct {
	Kind    Kind
	Op      string // operation that failed, e.g. "transfer"
	Message string
	Err     error // underlying cause, may be nil
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Message != "" {
		b.WriteString(e.Message)
	} else {
		b.WriteString(strings.ToLower(strings.ReplaceAll(string(e.Kind), "_", " ")))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func newError(kind Kind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsRetryable reports whether the caller may retry the same request.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindConflict, KindTimeout:
		return true
	default:
		return false
	}
}
