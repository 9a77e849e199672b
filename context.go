package tracectx

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// TraceContext identifies one span within a distributed trace.
// It is a value: once built it is never modified, so copies can be handed
// to concurrent downstream calls freely.
type TraceContext struct {
	TraceID      string `json:"trace_id"`
	SpanID       string `json:"span_id"`
	ParentSpanID string `json:"parent_span_id,omitempty"`
	Sampled      bool   `json:"sampled"`
	Remote       bool   `json:"remote"`
}

// IsRoot reports whether the context has no parent span.
func (tc TraceContext) IsRoot() bool {
	return tc.ParentSpanID == ""
}

// Valid reports whether the trace and span ids are well formed and non-zero.
func (tc TraceContext) Valid() bool {
	if !ValidTraceID(tc.TraceID) || !ValidSpanID(tc.SpanID) {
		return false
	}
	return tc.ParentSpanID == "" || ValidSpanID(tc.ParentSpanID)
}

// Traceparent returns the W3C header value for this context, or "" when
// the context is not valid.
func (tc TraceContext) Traceparent() string {
	carrier := MapCarrier{}
	injectTraceparent(tc, carrier)
	return carrier.Get(HeaderTraceparent)
}

// String formats the context for logs.
func (tc TraceContext) String() string {
	if tc.ParentSpanID == "" {
		return fmt.Sprintf("[trace:%s span:%s]", tc.TraceID, tc.SpanID)
	}
	return fmt.Sprintf("[trace:%s span:%s parent:%s]", tc.TraceID, tc.SpanID, tc.ParentSpanID)
}

// spanContext converts to the otel representation used for serialization.
func (tc TraceContext) spanContext() trace.SpanContext {
	traceID, err := trace.TraceIDFromHex(tc.TraceID)
	if err != nil {
		return trace.SpanContext{}
	}
	spanID, err := trace.SpanIDFromHex(tc.SpanID)
	if err != nil {
		return trace.SpanContext{}
	}

	var flags trace.TraceFlags
	if tc.Sampled {
		flags = trace.FlagsSampled
	}
	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: flags,
		Remote:     tc.Remote,
	})
}

// ParseTraceparent parses a W3C traceparent value. The returned context
// describes the sender's span: its SpanID is the span that wrote the header.
// Malformed values report ok == false.
func ParseTraceparent(value string) (TraceContext, bool) {
	if value == "" {
		return TraceContext{}, false
	}
	return parseCarrier(MapCarrier{HeaderTraceparent: value})
}

// parseCarrier reads the traceparent entry of a carrier.
func parseCarrier(carrier Carrier) (TraceContext, bool) {
	if carrier == nil {
		return TraceContext{}, false
	}

	ctx := propagation.TraceContext{}.Extract(context.Background(), carrier)
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return TraceContext{}, false
	}

	return TraceContext{
		TraceID: sc.TraceID().String(),
		SpanID:  sc.SpanID().String(),
		Sampled: sc.IsSampled(),
		Remote:  true,
	}, true
}
