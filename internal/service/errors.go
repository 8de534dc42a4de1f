package service

import (
	"errors"
	"fmt"
)

// Taxonomia de errores compartida por los servicios del chat.
var (
	ErrAuthRequired = errors.New("authentication required")
	ErrForbidden    = errors.New("forbidden")
	ErrValidation   = errors.New("validation error")
	ErrNotFound     = errors.New("not found")
	ErrStore        = errors.New("store error")
	ErrRateLimited  = errors.New("rate limited")

	ErrEmptyMessage = fmt.Errorf("%w: message body is empty", ErrValidation)
	ErrInvalidOwner = fmt.Errorf("%w: owner id is required", ErrValidation)
)

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStore, op, err)
}
