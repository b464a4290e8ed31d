package auth

import "errors"

var (
	ErrInvalidCredential  = errors.New("invalid credential")
	ErrSelfAuthorization  = errors.New("an admin can't authorize itself")
	ErrNotAuthorized      = errors.New("operation not authorized")
	ErrAuthorizationsFull = errors.New("authorization list is full")
	ErrDuplicateAuth      = errors.New("operation already authorized by this admin")
	ErrUnknownOperation   = errors.New("unknown operation")
	ErrUnknownAdmin       = errors.New("unknown admin")
	ErrAdminIDsExhausted  = errors.New("no admin ids left")
)
