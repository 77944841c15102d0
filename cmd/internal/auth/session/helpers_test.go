package session

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	paseto "aidanwoods.dev/go-paseto"

	"lodge/cmd/security/token"
)

var testEpoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.PasetoV4SecretKeyHex = paseto.NewV4AsymmetricSecretKey().ExportHex()
	return cfg
}

func newTestService(t *testing.T, cfg Config, opts ...Option) (*Service, *MemoryStore) {
	t.Helper()

	signer, err := NewSigner(cfg, nil)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	store := NewMemoryStore()
	opts = append([]Option{WithLogger(discardLogger())}, opts...)
	return NewService(cfg, store, signer, token.Hasher{}, opts...), store
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ua(name string) DeviceInputs {
	return DeviceInputs{UserAgent: name}
}

func mustIssue(t *testing.T, svc *Service, now time.Time, userID string, in DeviceInputs) Issued {
	t.Helper()
	issued, err := svc.IssueSession(context.Background(), now, userID, in, false)
	if err != nil {
		t.Fatalf("IssueSession(%q): %v", in.UserAgent, err)
	}
	return issued
}

// activeDevices returns the device keys of userID's active sessions, oldest first.
func activeDevices(t *testing.T, store *MemoryStore, userID string, now time.Time) []string {
	t.Helper()
	active, err := store.ListActive(context.Background(), userID, now)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	out := make([]string, 0, len(active))
	for _, r := range active {
		out = append(out, r.Device())
	}
	return out
}

func recordByJTI(store *MemoryStore, jti string) (Record, bool) {
	for _, r := range store.Snapshot() {
		if r.JTI == jti {
			return r, true
		}
	}
	return Record{}, false
}
