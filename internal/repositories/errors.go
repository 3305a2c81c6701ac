package repositories

import (
	"errors"

	"gorm.io/gorm"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// IsNotFoundError reports whether err denotes a missing record, from either
// this package or the underlying store.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, gorm.ErrRecordNotFound)
}

// IsDuplicateKeyError reports whether err denotes a unique constraint
// violation. Relies on the driver's error translation being enabled.
func IsDuplicateKeyError(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
