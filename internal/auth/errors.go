package auth

import "errors"

var (
	// ErrInvalidCredentials is returned when a login does not match the dashboard account.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrTokenInvalid is returned for any token that fails verification.
	ErrTokenInvalid = errors.New("auth: invalid token")

	// ErrInvalidHash is returned when a stored password hash cannot be parsed.
	ErrInvalidHash = errors.New("auth: invalid password hash")
)
