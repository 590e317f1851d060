package tenants

import "errors"

var (
	ErrTenantNotFound = errors.New("tenant not found")
	ErrTenantInactive = errors.New("tenant inactive")
	ErrTenantExists   = errors.New("tenant code already registered")
	ErrInvalidCode    = errors.New("invalid tenant code")
	ErrNameEmpty      = errors.New("tenant name cannot be empty")
)
