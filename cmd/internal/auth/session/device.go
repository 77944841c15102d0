package session

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// UnknownDeviceKey is the weak key used when neither a device identifier
// nor a user agent is available.
const UnknownDeviceKey = "unknown"

// DeviceInputs is the raw request metadata a device key is resolved from.
type DeviceInputs struct {
	// DeviceID is the client-supplied device identifier header.
	DeviceID  string
	UserAgent string
}

// Empty reports whether the caller supplied no device metadata at all.
func (in DeviceInputs) Empty() bool {
	return strings.TrimSpace(in.DeviceID) == "" && strings.TrimSpace(in.UserAgent) == ""
}

// DeviceKey is the identity credentials are grouped by for the per-device
// uniqueness and per-user device cap.
//
// Weak keys come from the user agent: two physical devices with an
// identical user agent collapse into one logical device.
type DeviceKey struct {
	Value  string
	Strong bool
}

// ResolveDevice derives a device key from request metadata. It never fails.
//
// A device identifier in canonical hyphenated form carrying a random
// (version 4, RFC 4122 variant) UUID becomes a lowercase strong key.
// Anything else falls back to the user agent truncated to maxUALen bytes.
func ResolveDevice(in DeviceInputs, maxUALen int) DeviceKey {
	if id, ok := strictDeviceID(in.DeviceID); ok {
		return DeviceKey{Value: id, Strong: true}
	}

	ua := strings.TrimSpace(in.UserAgent)
	if ua == "" {
		return DeviceKey{Value: UnknownDeviceKey}
	}
	return DeviceKey{Value: truncateUTF8(ua, maxUALen)}
}

func strictDeviceID(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	// uuid.Parse also accepts braces, urn: prefixes and unhyphenated forms.
	if len(raw) != 36 {
		return "", false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", false
	}
	if id.Version() != 4 || id.Variant() != uuid.RFC4122 {
		return "", false
	}
	return id.String(), true
}

func truncateUTF8(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
