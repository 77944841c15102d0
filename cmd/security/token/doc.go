// Package token provides refresh-token hashing primitives for lodge.
//
// It is the single source of truth for how a refresh token string is turned
// into the value persisted in lodge.refresh_tokens.token_hash.
//
// Modes:
//   - SHA-256(token) when no HMAC key is configured (dev/back-compat).
//   - HMAC-SHA256(token, key) when LODGE_TOKEN_HMAC_KEY is set.
//
// Output is always 64 lowercase hex characters.
//
// The same master secret can feed other components (e.g. the HS256 signer)
// through DeriveKey, which uses HKDF-SHA256 with a per-purpose label.
package token
