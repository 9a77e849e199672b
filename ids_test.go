package tracectx

import (
	"regexp"
	"strings"
	"testing"
)

var lowerHex32 = regexp.MustCompile(`^[0-9a-f]{32}$`)

func TestGenerateSpanID(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := GenerateSpanID()
		if !ValidSpanID(id) {
			t.Fatalf("invalid span id %q", id)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate span id %q after %d calls", id, i)
		}
		seen[id] = struct{}{}
	}
}

func TestNormalizeToTraceID(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "short id is hex encoded and padded",
			raw:  "abc123",
			want: "61626331323300000000000000000000",
		},
		{
			name: "valid trace id is returned unchanged",
			raw:  "4bf92f3577b34da6a3ce929d0e0e4736",
			want: "4bf92f3577b34da6a3ce929d0e0e4736",
		},
		{
			name: "long id is truncated",
			raw:  "0123456789abcdefXYZ",
			want: "30313233343536373839616263646566",
		},
		{
			name: "exactly sixteen bytes fills the id",
			raw:  "ABCDEFGHIJKLMNOP",
			want: "4142434445464748494a4b4c4d4e4f50",
		},
		{
			name: "uppercase hex is not a valid trace id",
			raw:  "4BF92F3577B34DA6A3CE929D0E0E4736",
			want: "34424639324633353737423334444136",
		},
		{
			name: "all zero trace id is re-encoded",
			raw:  strings.Repeat("0", 32),
			want: strings.Repeat("30", 16),
		},
		{
			name: "uuid request id",
			raw:  "9f1c2b7e-3d4a-4b5c-8e9f-0a1b2c3d4e5f",
			want: "39663163326237652d336434612d3462",
		},
		{
			name: "empty id pads to zero",
			raw:  "",
			want: strings.Repeat("0", 32),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeToTraceID(tt.raw)
			if got != tt.want {
				t.Errorf("NormalizeToTraceID(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestNormalizeToTraceIDProperties(t *testing.T) {
	inputs := []string{
		"a", "abc123", "req-42", "日本語のリクエスト", "\x7f\x80\xff",
		strings.Repeat("x", 15), strings.Repeat("x", 16), strings.Repeat("x", 17),
		strings.Repeat("long-request-id-", 20),
	}

	for _, raw := range inputs {
		first := NormalizeToTraceID(raw)
		if !lowerHex32.MatchString(first) {
			t.Errorf("NormalizeToTraceID(%q) = %q, not 32 lowercase hex chars", raw, first)
		}
		if second := NormalizeToTraceID(raw); second != first {
			t.Errorf("NormalizeToTraceID(%q) not deterministic: %q then %q", raw, first, second)
		}
		if again := NormalizeToTraceID(first); again != first {
			t.Errorf("NormalizeToTraceID not idempotent on %q: got %q", first, again)
		}
	}
}

func TestNormalizeToTraceIDCollision(t *testing.T) {
	// Ids sharing the first 16 bytes collide after truncation.
	a := NormalizeToTraceID("0123456789abcdef-first")
	b := NormalizeToTraceID("0123456789abcdef-second")
	if a != b {
		t.Errorf("expected truncation collision, got %q and %q", a, b)
	}
}

func TestValidIDs(t *testing.T) {
	if !ValidTraceID("4bf92f3577b34da6a3ce929d0e0e4736") {
		t.Error("expected valid trace id")
	}
	for _, bad := range []string{"", "abc", strings.Repeat("0", 32), "4bf92f3577b34da6a3ce929d0e0e473g"} {
		if ValidTraceID(bad) {
			t.Errorf("expected %q to be an invalid trace id", bad)
		}
	}
	if !ValidSpanID("00f067aa0ba902b7") {
		t.Error("expected valid span id")
	}
	for _, bad := range []string{"", strings.Repeat("0", 16), "00F067AA0BA902B7", "00f067aa0ba902b7aa"} {
		if ValidSpanID(bad) {
			t.Errorf("expected %q to be an invalid span id", bad)
		}
	}
}
