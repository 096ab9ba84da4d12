package repositories

import (
	"errors"
)

var (
	// ErrNotFound is returned when a campaign or log entry does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a campaign name is already taken.
	ErrConflict = errors.New("already exists")
	// ErrValidation is returned for malformed filter or pagination input.
	ErrValidation = errors.New("invalid input")
)
