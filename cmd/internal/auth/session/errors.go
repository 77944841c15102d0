package session

import (
	"errors"
)

var (
	// ErrInvalidToken is returned when a refresh token is malformed, has a bad
	// signature, or does not match the stored record. Caller must re-authenticate.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenNotFound is returned when the token's jti is not stored.
	ErrTokenNotFound = errors.New("token not found")

	// ErrTokenExpired is returned when the stored record is past its expiry.
	ErrTokenExpired = errors.New("token expired")

	// ErrReuseDetected is returned when an already revoked refresh token is
	// presented again. It is security-significant and never folded into the
	// other kinds.
	ErrReuseDetected = errors.New("refresh token reuse detected")

	// ErrDeviceKeyUnavailable is returned only when Config.RequireStrongDevice
	// is set and the request resolves to a weak (user-agent) device key.
	ErrDeviceKeyUnavailable = errors.New("strong device key unavailable")

	// ErrJTIConflict is returned by stores when a jti or token digest is inserted twice.
	ErrJTIConflict = errors.New("jti already exists")

	// ErrInvalidInput is returned for missing or malformed arguments.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)

// errorKind returns a stable label for metrics and logs.
func errorKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, ErrTokenNotFound):
		return "token_not_found"
	case errors.Is(err, ErrTokenExpired):
		return "token_expired"
	case errors.Is(err, ErrReuseDetected):
		return "reuse_detected"
	case errors.Is(err, ErrDeviceKeyUnavailable):
		return "device_key_unavailable"
	default:
		return "internal"
	}
}
