package password

import "errors"

// Public, stable errors for callers.
var (
	ErrEmptyPassword = errors.New("empty password")
	ErrInvalidHash   = errors.New("invalid password hash")
	ErrConfig        = errors.New("invalid argon2 config")
)
