// Package session implements lodge's refresh-token session manager.
//
// It issues, rotates, caps and revokes long-lived refresh credentials for
// users across multiple devices:
//
//   - at most one active credential per (user, device key);
//   - at most Config.MaxDevices active credentials per user, oldest evicted first;
//   - every refresh rotates the credential, linking the successor to its parent jti;
//   - a revoked credential presented again is reported as ErrReuseDetected.
//
// Refresh tokens are signed by a Signer (PASETO v4.public or HS256 JWT) and
// carry a unique jti. Only the jti and a one-way digest of the token string
// are stored (lodge.refresh_tokens).
//
// Every mutation runs in one transaction that first takes a per-user lock,
// so concurrent logins/refreshes for the same user serialize across process
// instances while different users never contend.
//
// Transport (HTTP) integration lives in package authapi.
package session
