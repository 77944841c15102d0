package authapi

import (
	"context"
	"errors"
)

var (
	// ErrInvalidCredentials is returned by a CredentialVerifier for unknown
	// users and wrong passwords alike.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrVerifierUnavailable indicates no credential backend is configured.
	ErrVerifierUnavailable = errors.New("credential verifier unavailable")
)

// CredentialVerifier checks primary credentials and returns the user id.
//
// Password storage and policy belong to the identity service; lodge only
// needs the verified user id to issue a session.
type CredentialVerifier interface {
	Verify(ctx context.Context, username, password string) (userID string, err error)
}

// NoopCredentialVerifier rejects every login with ErrVerifierUnavailable.
type NoopCredentialVerifier struct{}

// Verify implements CredentialVerifier.
func (NoopCredentialVerifier) Verify(context.Context, string, string) (string, error) {
	return "", ErrVerifierUnavailable
}
