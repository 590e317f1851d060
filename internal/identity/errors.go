package identity

import "errors"

var (
	ErrNoMatchingAccount    = errors.New("no account matches the external identity")
	ErrInvalidProviderToken = errors.New("invalid provider token")
	ErrEmailNotVerified     = errors.New("provider email is not verified")
	ErrProviderUnavailable  = errors.New("identity provider unavailable")
	ErrUnknownProvider      = errors.New("unknown identity provider")
)
