package service

import (
	"errors"
	"fmt"
)

var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state")
	ErrConflict     = errors.New("conflict")
	ErrInternal     = errors.New("internal error")

	// ErrExpired is a validation failure; errors.Is matches both.
	ErrExpired = fmt.Errorf("%w: token expired", ErrValidation)
)

var errOrderNotFound = fmt.Errorf("%w: order not found", ErrNotFound)
