package id

import (
	"strings"

	"github.com/google/uuid"
)

// AccountNumberLen is the length of an external account number.
const AccountNumberLen = 12

// NewTransactionID returns a fresh transaction id. Ids are generated by the
// caller so an ambiguous commit can be resolved by looking the id up.
func NewTransactionID() string {
	return uuid.NewString()
}

// NewAccountID returns a fresh account id.
func NewAccountID() string {
	return uuid.NewString()
}

// NewAccountNumber returns a 12 character lowercase hex account number
// derived from a random UUID. Callers must still check uniqueness.
func NewAccountNumber() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:AccountNumberLen]
}

// ValidAccountNumber reports whether s looks like an account number.
func ValidAccountNumber(s string) bool {
	if len(s) != AccountNumberLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
