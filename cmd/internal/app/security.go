package app

import (
	"errors"
	"fmt"

	"lodge/cmd/security/token"
)

// minHMACKeyBytes is the minimum accepted LODGE_TOKEN_HMAC_KEY length.
const minHMACKeyBytes = 32

// ValidateSecurityConfig enforces lodge's security policy at startup.
//
// With RequireTokenHMAC set, a missing or short LODGE_TOKEN_HMAC_KEY fails
// startup instead of falling back to plain SHA-256 token digests.
func ValidateSecurityConfig(cfg Config) error {
	if !cfg.RequireTokenHMAC {
		return nil
	}

	if _, err := token.HMACKeyFromEnv(minHMACKeyBytes); err != nil {
		switch {
		case errors.Is(err, token.ErrHMACKeyMissing):
			return fmt.Errorf("security policy: LODGE_REQUIRE_TOKEN_HMAC=true but %s is missing: %w", token.HMACEnvKey, err)
		case errors.Is(err, token.ErrHMACKeyTooShort):
			return fmt.Errorf("security policy: LODGE_REQUIRE_TOKEN_HMAC=true but %s is shorter than %d bytes: %w", token.HMACEnvKey, minHMACKeyBytes, err)
		default:
			return err
		}
	}
	return nil
}

// jwtKeyLabel binds the derived HS256 key to its purpose.
const jwtKeyLabel = "lodge/refresh-jwt/v1"

// deriveJWTKey derives the HS256 refresh-token key from LODGE_TOKEN_HMAC_KEY.
// It returns nil when no master key is configured.
func deriveJWTKey() ([]byte, error) {
	master, err := token.HMACKeyFromEnv(minHMACKeyBytes)
	if errors.Is(err, token.ErrHMACKeyMissing) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return token.DeriveKey(master, jwtKeyLabel, 32)
}
