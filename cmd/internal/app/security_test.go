package app

import (
	"errors"
	"strings"
	"testing"

	"lodge/cmd/security/token"
)

func TestValidateSecurityConfig(t *testing.T) {
	cases := []struct {
		name    string
		require bool
		key     string
		wantErr error
	}{
		{name: "policy off, no key", require: false, key: ""},
		{name: "policy on, no key", require: true, key: "", wantErr: token.ErrHMACKeyMissing},
		{name: "policy on, short key", require: true, key: "too-short", wantErr: token.ErrHMACKeyTooShort},
		{name: "policy on, good key", require: true, key: strings.Repeat("k", 32)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(token.HMACEnvKey, tc.key)

			err := ValidateSecurityConfig(Config{RequireTokenHMAC: tc.require})
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestDeriveJWTKey(t *testing.T) {
	t.Setenv(token.HMACEnvKey, "")
	key, err := deriveJWTKey()
	if err != nil || key != nil {
		t.Fatalf("no master key: want nil,nil got %x,%v", key, err)
	}

	t.Setenv(token.HMACEnvKey, strings.Repeat("m", 40))
	key, err = deriveJWTKey()
	if err != nil {
		t.Fatalf("deriveJWTKey: %v", err)
	}
	if len(key) != 32 {
		t.Fatalf("expected 32-byte key, got %d", len(key))
	}

	hashKeyed, err := token.NewHasher([]byte(strings.Repeat("m", 40)))
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	if hashKeyed.Digest("x") == token.HashHMACSHA256Hex("x", key) {
		t.Fatalf("jwt key must differ from the token hash key")
	}
}
