package domain

import (
	"errors"
)

var (
	// ErrNotFound signals a missing entry.
	ErrNotFound = errors.New("not found")
	// ErrConflict signals a create with an identifier that is already taken.
	ErrConflict = errors.New("conflict")
	// ErrInvalidQuery signals a malformed query key or an unsupported operator.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrValidation signals an entry body that cannot be stored.
	ErrValidation = errors.New("validation failed")
)

// Reserved keys. Bodies may not carry them; query keys may.
const (
	IDKey      = "__id__"
	UpdatedKey = "__updated__"
)
