package rbac

import "errors"

var (
	ErrRoleNotFound       = errors.New("role not found")
	ErrRoleExists         = errors.New("role already exists")
	ErrSystemRole         = errors.New("system roles cannot be deleted")
	ErrPermissionNotFound = errors.New("permission not found")
	ErrPermissionExists   = errors.New("permission already exists")
	ErrInvalidCode        = errors.New("invalid code")
	ErrNameEmpty          = errors.New("name must not be empty")
)
