package tracectx

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

const (
	traceIDHexLen = 32
	spanIDHexLen  = 16
)

// GenerateSpanID returns 8 random bytes as 16 lowercase hex characters.
// The result is never all zero.
func GenerateSpanID() string {
	var b [8]byte
	for {
		// crypto/rand.Read never returns an error on supported platforms.
		_, _ = rand.Read(b[:])
		if b != [8]byte{} {
			return hex.EncodeToString(b[:])
		}
	}
}

// NormalizeToTraceID maps an arbitrary request id onto a 32 character trace id.
//
// A raw id that is already a valid trace id is returned unchanged. Anything
// else is hex encoded, right-padded with '0' and truncated to 32 characters.
// The mapping is deterministic but lossy: long ids sharing a 16 byte prefix
// collapse to the same trace id.
func NormalizeToTraceID(raw string) string {
	if ValidTraceID(raw) {
		return raw
	}

	encoded := hex.EncodeToString([]byte(raw))
	if len(encoded) >= traceIDHexLen {
		return encoded[:traceIDHexLen]
	}
	return encoded + strings.Repeat("0", traceIDHexLen-len(encoded))
}

// ValidTraceID reports whether s is 32 lowercase hex characters and not all zero.
func ValidTraceID(s string) bool {
	_, err := trace.TraceIDFromHex(s)
	return err == nil
}

// ValidSpanID reports whether s is 16 lowercase hex characters and not all zero.
func ValidSpanID(s string) bool {
	_, err := trace.SpanIDFromHex(s)
	return err == nil
}
