package session

import (
	"strings"
	"testing"
)

func TestResolveDevice(t *testing.T) {
	cases := []struct {
		name       string
		in         DeviceInputs
		wantValue  string
		wantStrong bool
	}{
		{
			name:       "v4 uuid is strong and lowercased",
			in:         DeviceInputs{DeviceID: " 3F2504E0-4F89-41D3-9A0C-0305E82C3301 ", UserAgent: "ua"},
			wantValue:  "3f2504e0-4f89-41d3-9a0c-0305e82c3301",
			wantStrong: true,
		},
		{
			name:      "v1 uuid falls back to user agent",
			in:        DeviceInputs{DeviceID: "6ba7b810-9dad-11d1-80b4-00c04fd430c8", UserAgent: "ua"},
			wantValue: "ua",
		},
		{
			name:      "braced form is rejected",
			in:        DeviceInputs{DeviceID: "{3f2504e0-4f89-41d3-9a0c-0305e82c3301}", UserAgent: "ua"},
			wantValue: "ua",
		},
		{
			name:      "unhyphenated form is rejected",
			in:        DeviceInputs{DeviceID: "3f2504e04f8941d39a0c0305e82c3301", UserAgent: "ua"},
			wantValue: "ua",
		},
		{
			name:      "non-RFC variant is rejected",
			in:        DeviceInputs{DeviceID: "3f2504e0-4f89-41d3-ca0c-0305e82c3301", UserAgent: "ua"},
			wantValue: "ua",
		},
		{
			name:      "nothing usable",
			in:        DeviceInputs{DeviceID: "junk", UserAgent: "   "},
			wantValue: UnknownDeviceKey,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ResolveDevice(tc.in, 255)
			if got.Value != tc.wantValue || got.Strong != tc.wantStrong {
				t.Fatalf("expected {%q %v}, got {%q %v}", tc.wantValue, tc.wantStrong, got.Value, got.Strong)
			}
		})
	}
}

func TestResolveDevice_TruncatesUserAgentOnRuneBoundary(t *testing.T) {
	ua := strings.Repeat("é", 20) // 2 bytes each
	got := ResolveDevice(DeviceInputs{UserAgent: ua}, 17)
	if len(got.Value) != 16 {
		t.Fatalf("expected 16 bytes, got %d", len(got.Value))
	}
	if !strings.HasPrefix(ua, got.Value) {
		t.Fatalf("truncation must keep a prefix")
	}
}

func TestDeviceInputs_Empty(t *testing.T) {
	if !(DeviceInputs{DeviceID: " ", UserAgent: "\t"}).Empty() {
		t.Fatalf("whitespace-only inputs must be empty")
	}
	if (DeviceInputs{UserAgent: "x"}).Empty() {
		t.Fatalf("user agent alone is not empty")
	}
}
