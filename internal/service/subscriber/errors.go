package subscriber

import "errors"

// Sentinel errors for the subscriber service layer.
var (
	ErrNotFound       = errors.New("subscriber not found")
	ErrDuplicateEmail = errors.New("email is already subscribed")
	ErrInvalidEmail   = errors.New("invalid email address")
	ErrInvalidToken   = errors.New("invalid subscription token")
	ErrInvalidStatus  = errors.New("invalid subscriber status")
)
