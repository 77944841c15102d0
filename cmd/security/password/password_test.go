package password

import (
	"errors"
	"strings"
	"testing"
)

// cheap keeps the suite fast; cost does not change correctness.
func cheap() Params {
	return Params{MemoryKiB: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
}

func TestHashAndVerify(t *testing.T) {
	p := cheap()

	h, err := p.Hash("correct horse battery staple")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !strings.HasPrefix(h, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected encoding: %q", h)
	}

	ok, err := p.Verify(h, "correct horse battery staple")
	if err != nil || !ok {
		t.Fatalf("expected match, got ok=%v err=%v", ok, err)
	}

	ok, err = p.Verify(h, "wrong password")
	if err != nil || ok {
		t.Fatalf("expected mismatch, got ok=%v err=%v", ok, err)
	}
}

func TestHash_EmptyPassword(t *testing.T) {
	if _, err := cheap().Hash(""); !errors.Is(err, ErrEmptyPassword) {
		t.Fatalf("expected ErrEmptyPassword, got %v", err)
	}
}

func TestVerify_InvalidHash(t *testing.T) {
	p := cheap()
	for _, h := range []string{
		"not-a-hash",
		"$argon2i$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0$a2V5a2V5a2V5a2V5a2V5a2V5",
		"$argon2id$v=16$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0$a2V5a2V5a2V5a2V5a2V5a2V5",
		"$argon2id$v=19$m=0,t=1,p=1$c2FsdHNhbHRzYWx0$a2V5a2V5a2V5a2V5a2V5a2V5",
		"$argon2id$v=19$m=8192,t=1,p=1$!!!$a2V5a2V5a2V5a2V5a2V5a2V5",
	} {
		ok, err := p.Verify(h, "whatever")
		if !errors.Is(err, ErrInvalidHash) || ok {
			t.Fatalf("Verify(%q): expected ErrInvalidHash, got ok=%v err=%v", h, ok, err)
		}
	}
}

func TestVerify_RejectsExcessiveCost(t *testing.T) {
	strong := cheap()
	strong.Iterations = 5
	h, err := strong.Hash("pw")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	if _, err := cheap().Verify(h, "pw"); !errors.Is(err, ErrInvalidHash) {
		t.Fatalf("expected cost bound to reject hash, got %v", err)
	}
}

func TestParamsFromEnv(t *testing.T) {
	t.Setenv("LODGE_ARGON2_MEMORY_KIB", "16384")
	t.Setenv("LODGE_ARGON2_ITERATIONS", "2")
	t.Setenv("LODGE_ARGON2_PARALLELISM", "")

	p, err := ParamsFromEnv()
	if err != nil {
		t.Fatalf("ParamsFromEnv: %v", err)
	}
	if p.MemoryKiB != 16384 || p.Iterations != 2 || p.Parallelism != DefaultParams().Parallelism {
		t.Fatalf("unexpected params: %+v", p)
	}

	t.Setenv("LODGE_ARGON2_ITERATIONS", "99")
	if _, err := ParamsFromEnv(); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}
