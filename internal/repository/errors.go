package repository

import "errors"

var (
	// ErrNotFound indicates an entity was not located.
	ErrNotFound = errors.New("repository: not found")
	// ErrDuplicateEmail indicates a unique email constraint violation.
	ErrDuplicateEmail = errors.New("repository: email already registered")
)
