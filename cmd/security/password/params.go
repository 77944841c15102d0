package password

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Params controls Argon2id hashing cost. MemoryKiB is in KiB as required by
// argon2.IDKey.
type Params struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams returns the interactive-login baseline.
func DefaultParams() Params {
	// Parallelism is clamped to [1..4] to keep container usage predictable.
	threads := min(max(runtime.NumCPU(), 1), 4)

	return Params{
		MemoryKiB:   64 * 1024,
		Iterations:  3,
		Parallelism: uint8(threads), // #nosec G115 -- clamped above.
		SaltLength:  16,
		KeyLength:   32,
	}
}

// ParamsFromEnv overrides DefaultParams from:
//   - LODGE_ARGON2_MEMORY_KIB (8192..1048576)
//   - LODGE_ARGON2_ITERATIONS (1..20)
//   - LODGE_ARGON2_PARALLELISM (1..64)
//
// Invalid values return ErrConfig.
func ParamsFromEnv() (Params, error) {
	p := DefaultParams()

	overrides := []struct {
		key      string
		min, max uint32
		set      func(uint32)
	}{
		{"LODGE_ARGON2_MEMORY_KIB", 8 * 1024, 1024 * 1024, func(v uint32) { p.MemoryKiB = v }},
		{"LODGE_ARGON2_ITERATIONS", 1, 20, func(v uint32) { p.Iterations = v }},
		{"LODGE_ARGON2_PARALLELISM", 1, 64, func(v uint32) { p.Parallelism = uint8(v) }}, // #nosec G115 -- bounded.
	}
	for _, o := range overrides {
		raw := strings.TrimSpace(os.Getenv(o.key))
		if raw == "" {
			continue
		}
		u, err := strconv.ParseUint(raw, 10, 32)
		if err != nil || uint32(u) < o.min || uint32(u) > o.max {
			return Params{}, fmt.Errorf("%s: %w", o.key, ErrConfig)
		}
		o.set(uint32(u))
	}
	return p, nil
}
