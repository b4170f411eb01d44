package repository

import "errors"

// Common repository errors
var (
	// ErrNotFound is returned when a record is not found
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateUser is returned when a username or email is already taken
	ErrDuplicateUser = errors.New("user with this username or email already exists")

	// ErrDuplicateToken is returned when a refresh token value collides with
	// an existing row. The unique index is the safety net against random
	// value collisions.
	ErrDuplicateToken = errors.New("refresh token value already exists")

	// ErrDuplicateRole is returned when assigning a role the user already holds
	ErrDuplicateRole = errors.New("user already holds this role")
)
