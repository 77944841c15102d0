package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	// HMACEnvKey is the env var name for the token HMAC secret.
	// #nosec G101 -- not a credential; it's an environment variable name.
	HMACEnvKey = "LODGE_TOKEN_HMAC_KEY"

	// DigestHexLen is the length of every digest produced by this package.
	DigestHexLen = 64

	hashLabel = "lodge/refresh-token-hash/v1"
)

// HashSHA256Hex returns a SHA-256 hex digest of s.
func HashSHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashHMACSHA256Hex returns an HMAC-SHA256 hex digest of s using key.
func HashHMACSHA256Hex(s string, key []byte) string {
	m := hmac.New(sha256.New, key)
	_, _ = m.Write([]byte(s))
	return hex.EncodeToString(m.Sum(nil))
}

// HMACKeyFromEnv returns the configured HMAC key bytes (trimmed), enforcing a minimum byte length.
// If the env var is missing/blank -> ErrHMACKeyMissing.
// If too short -> ErrHMACKeyTooShort.
func HMACKeyFromEnv(minBytes int) ([]byte, error) {
	raw := strings.TrimSpace(os.Getenv(HMACEnvKey))
	if raw == "" {
		return nil, ErrHMACKeyMissing
	}
	b := []byte(raw)
	if minBytes > 0 && len(b) < minBytes {
		return nil, ErrHMACKeyTooShort
	}
	return b, nil
}

// HMACEnabled reports whether the env key is present (non-empty after trim).
// Note: This does not enforce minimum length. Use HMACKeyFromEnv for policy checks.
func HMACEnabled() bool {
	return strings.TrimSpace(os.Getenv(HMACEnvKey)) != ""
}

// DeriveKey expands master into n bytes bound to label using HKDF-SHA256.
// Different labels yield independent keys, so one operator secret can back
// several primitives without key reuse.
func DeriveKey(master []byte, label string, n int) ([]byte, error) {
	if len(master) == 0 {
		return nil, ErrHMACKeyMissing
	}
	if n <= 0 || n > 255*sha256.Size {
		return nil, ErrDeriveLength
	}
	out := make([]byte, n)
	r := hkdf.New(sha256.New, master, nil, []byte(label))
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Hasher maps refresh token strings to their persisted digest.
// The zero value hashes with plain SHA-256.
type Hasher struct {
	key []byte
}

// NewHasher returns a Hasher. A nil/empty master selects SHA-256 mode;
// otherwise the HMAC key is derived from master.
func NewHasher(master []byte) (Hasher, error) {
	if len(master) == 0 {
		return Hasher{}, nil
	}
	key, err := DeriveKey(master, hashLabel, sha256.Size)
	if err != nil {
		return Hasher{}, err
	}
	return Hasher{key: key}, nil
}

// NewHasherFromEnv builds a Hasher from LODGE_TOKEN_HMAC_KEY.
// With requireHMAC=true a missing or short (< minBytes) key is an error;
// otherwise a missing key falls back to SHA-256.
func NewHasherFromEnv(requireHMAC bool, minBytes int) (Hasher, error) {
	key, err := HMACKeyFromEnv(minBytes)
	switch {
	case err == nil:
		return NewHasher(key)
	case requireHMAC:
		return Hasher{}, err
	case errors.Is(err, ErrHMACKeyMissing):
		return Hasher{}, nil
	default:
		return Hasher{}, err
	}
}

// Keyed reports whether h is in HMAC mode.
func (h Hasher) Keyed() bool { return len(h.key) > 0 }

// Digest returns the 64-char hex digest of tok.
func (h Hasher) Digest(tok string) string {
	if len(h.key) == 0 {
		return HashSHA256Hex(tok)
	}
	return HashHMACSHA256Hex(tok, h.key)
}

// EqualHex64 compares two expected 64-char hex digests in constant time.
// Anything that is not exactly 64 bytes long never matches.
func EqualHex64(a, b string) bool {
	if len(a) != DigestHexLen || len(b) != DigestHexLen {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
