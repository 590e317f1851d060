package auth

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies authentication failures. NotFound, BadCredential,
// NoMatchingAccount and InvalidProviderToken must look identical to clients.
type Kind string

const (
	KindValidation           Kind = "VALIDATION_ERROR"
	KindNotFound             Kind = "NOT_FOUND"
	KindAccountLocked        Kind = "ACCOUNT_LOCKED"
	KindBadCredential        Kind = "BAD_CREDENTIAL"
	KindInvalidProviderToken Kind = "INVALID_PROVIDER_TOKEN"
	KindNoMatchingAccount    Kind = "NO_MATCHING_ACCOUNT"
	KindInvalidOrExpired     Kind = "INVALID_OR_EXPIRED_TOKEN"
	KindExternalService      Kind = "EXTERNAL_SERVICE_ERROR"
)

type AuthError struct {
	Kind        Kind
	Field       string // offending input for KindValidation
	Message     string
	LockedUntil *time.Time
	Err         error
}

func (e *AuthError) Error() string {
	msg := string(e.Kind)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of an *AuthError in err's chain, or "" if none.
func KindOf(err error) Kind {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Kind
	}
	return ""
}

func newAuthError(kind Kind, err error) *AuthError {
	return &AuthError{Kind: kind, Err: err}
}

func validationError(field string, message string) *AuthError {
	return &AuthError{Kind: KindValidation, Field: field, Message: message}
}
