package tokens

import "errors"

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrTokenReused  = errors.New("refresh token reuse detected")
)
