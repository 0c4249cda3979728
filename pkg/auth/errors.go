package auth

import "errors"

// Sentinel auth errors. The API maps these onto 401/403/409 responses.
var (
	ErrMissingAuthToken   = errors.New("missing authentication token")
	ErrInvalidAuthToken   = errors.New("invalid authentication token")
	ErrRoleNotAuthorized  = errors.New("role not authorized")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountNotActive   = errors.New("account is not active")
	ErrSelfUserManagement = errors.New("users cannot block or remove themselves")
	ErrLastActiveAdmin    = errors.New("cannot block or remove the last active admin")
)
