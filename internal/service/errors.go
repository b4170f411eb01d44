package service

import (
	"errors"
	"strings"
)

// Kind classifies an auth operation failure. Handlers branch on kinds to
// pick HTTP statuses; messages stay generic wherever a specific one could
// leak account existence.
type Kind string

const (
	KindInternal              Kind = "internal_error"
	KindValidation            Kind = "validation_failure"
	KindInvalidCredentials    Kind = "invalid_credentials"
	KindAccountInactive       Kind = "account_inactive"
	KindAccountLocked         Kind = "account_locked"
	KindInvalidRole           Kind = "invalid_role"
	KindRegistrationFailed    Kind = "registration_failed"
	KindRoleAssignmentFailed  Kind = "role_assignment_failed"
	KindInvalidToken          Kind = "invalid_token"
	KindInvalidRefreshToken   Kind = "invalid_refresh_token"
	KindRefreshTokenExpired   Kind = "refresh_token_expired"
	KindRefreshTokenNotActive Kind = "refresh_token_not_active"
	KindUserNotFound          Kind = "user_not_found"
	KindConfirmationFailed    Kind = "confirmation_failed"
	KindPasswordChangeFailed  Kind = "password_change_failed"
	KindResetFailed           Kind = "reset_failed"
)

// Error is the failure envelope every auth operation returns: a kind for
// programmatic branching, a human-readable message and granular detail
// strings. Internal faults are wrapped as KindInternal before crossing the
// service boundary; nothing propagates raw.
type Error struct {
	Kind    Kind
	Message string
	Details []string
}

func (e *Error) Error() string {
	if len(e.Details) == 0 {
		return e.Message
	}
	return e.Message + ": " + strings.Join(e.Details, "; ")
}

// E builds a service error.
func E(kind Kind, message string, details ...string) *Error {
	return &Error{Kind: kind, Message: message, Details: details}
}

// Internal wraps an unexpected fault in the catch-all kind. The underlying
// error is logged by the orchestrator, never surfaced to the caller.
func Internal(message string) *Error {
	return &Error{Kind: KindInternal, Message: message}
}

// AsError extracts a *Error from err, or wraps anything else as internal.
func AsError(err error) *Error {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr
	}
	return Internal("An unexpected error occurred.")
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	return AsError(err).Kind
}
