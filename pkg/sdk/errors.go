package jsonstore

import (
	"errors"

	"github.com/kailas-cloud/jsonstore/internal/domain"
)

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrNotFound     = domain.ErrNotFound
	ErrConflict     = domain.ErrConflict
	ErrInvalidQuery = domain.ErrInvalidQuery
	ErrValidation   = domain.ErrValidation
)

func isNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
