package repository

import (
	"errors"
	"strings"

	"golang.org/x/text/cases"
)

// MaxKeyBytes bounds a normalized location key.
const MaxKeyBytes = 512

// ErrInvalidKey reports an address that normalizes to nothing or is too long.
var ErrInvalidKey = errors.New("invalid location key")

// NormalizeKey trims the address, collapses whitespace runs to one space and
// case-folds it, so "12 Main St" and " 12  main st " share one ledger.
func NormalizeKey(address string) (string, error) {
	key := strings.Join(strings.Fields(address), " ")
	if key == "" {
		return "", ErrInvalidKey
	}
	key = cases.Fold().String(key)
	if len(key) > MaxKeyBytes {
		return "", ErrInvalidKey
	}
	return key, nil
}
