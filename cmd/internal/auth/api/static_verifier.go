package authapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"lodge/cmd/security/password"
)

// StaticUsersEnv lists built-in accounts as "username:<argon2id hash>"
// entries separated by ";". Intended for development and demos.
const StaticUsersEnv = "LODGE_AUTH_STATIC_USERS"

// StaticCredentialVerifier checks logins against a fixed set of Argon2id
// hashes. The username doubles as the user id.
type StaticCredentialVerifier struct {
	params password.Params
	users  map[string]string

	// decoy is verified for unknown usernames so both paths cost the same.
	decoy string
}

// NewStaticCredentialVerifier builds a verifier from username -> encoded hash.
func NewStaticCredentialVerifier(params password.Params, users map[string]string) (*StaticCredentialVerifier, error) {
	seed := make([]byte, 16)
	if _, err := rand.Read(seed); err != nil {
		return nil, err
	}
	decoy, err := params.Hash(hex.EncodeToString(seed))
	if err != nil {
		return nil, err
	}

	cp := make(map[string]string, len(users))
	for u, h := range users {
		if _, err := params.Verify(h, ""); err != nil {
			return nil, fmt.Errorf("static user %q: %w", u, err)
		}
		cp[u] = h
	}
	return &StaticCredentialVerifier{params: params, users: cp, decoy: decoy}, nil
}

// StaticCredentialVerifierFromEnv parses StaticUsersEnv. It returns nil
// when the variable is unset.
func StaticCredentialVerifierFromEnv() (*StaticCredentialVerifier, error) {
	raw := strings.TrimSpace(os.Getenv(StaticUsersEnv))
	if raw == "" {
		return nil, nil
	}

	params, err := password.ParamsFromEnv()
	if err != nil {
		return nil, err
	}

	users := make(map[string]string)
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, hash, ok := strings.Cut(entry, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("%s: malformed entry", StaticUsersEnv)
		}
		users[name] = strings.TrimSpace(hash)
	}
	return NewStaticCredentialVerifier(params, users)
}

// Verify implements CredentialVerifier.
func (v *StaticCredentialVerifier) Verify(_ context.Context, username, pw string) (string, error) {
	username = strings.TrimSpace(username)
	hash, known := v.users[username]
	if !known {
		hash = v.decoy
	}

	ok, err := v.params.Verify(hash, pw)
	if err != nil {
		return "", err
	}
	if !known || !ok {
		return "", ErrInvalidCredentials
	}
	return username, nil
}
