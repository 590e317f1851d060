package accounts

import "errors"

var (
	ErrAccountNotFound  = errors.New("account not found")
	ErrAccountLocked    = errors.New("account locked")
	ErrBadCredential    = errors.New("bad credential")
	ErrAccountExists    = errors.New("email already registered in tenant")
	ErrInvalidEmail     = errors.New("invalid email address")
	ErrPasswordTooShort = errors.New("password too short")
	ErrNoPasswordSet    = errors.New("account has no password")
)
