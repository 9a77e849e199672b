// Package tracectx provides a small trace context engine for request
// tracing across a chain of services.
//
// tracectx does not export or sample spans. It answers four questions for
// every unit of work: which trace does it belong to, which span is it,
// what caused it, and how is that identity handed to the next hop.
//
// Core Components:
//   - Engine: Extracts inbound context, starts spans, dispatches finished spans.
//   - TraceContext: Immutable trace identity (trace id, span id, parent).
//   - ActiveSpan: Thread-safe wrapper for an ongoing span.
//   - Collector: Buffers finished spans for inspection or export.
//
// Basic Usage:
//
//	engine := tracectx.New()
//	defer engine.Close()
//
//	// Continue the caller's trace, or seed one from the request id.
//	tc, err := engine.ExtractHTTP(r.Header)
//	if err != nil {
//		// Neither traceparent nor request id was supplied.
//	}
//
//	span := engine.Start("GET /orders", tc, tracectx.Attributes{"http.method": "GET"})
//	defer span.End()
//
//	// Hand the context to the next hop.
//	tracectx.InjectCarrier(span.Context(), propagation.HeaderCarrier(req.Header))
//
// Propagation Format:
//
// Contexts are carried in the W3C traceparent header
// (version-traceid-spanid-flags). When no valid header is present the trace
// id is derived from the caller's request id with NormalizeToTraceID, so the
// same request id always lands in the same trace.
//
// Thread Safety:
//
// Engine is safe for concurrent use by multiple goroutines.
// TraceContext is a value and never changes after construction.
// ActiveSpan operations are safe for concurrent use; End is idempotent.
//
// Resource Cleanup:
//
// Call engine.Close() to stop the span id pool and any async handler workers.
package tracectx

import "go.opentelemetry.io/otel/propagation"

// Header names written and read by the engine.
const (
	HeaderTraceparent = "traceparent"
	HeaderRequestID   = "x-request-id"
	HeaderTraceID     = "x-trace-id"
	HeaderSpanID      = "x-span-id"
)

// Carrier is a string-keyed medium for a serialized TraceContext.
type Carrier = propagation.TextMapCarrier

// MapCarrier is a Carrier backed by a plain map. Lookups are exact and
// case-sensitive: "Traceparent" is not found as "traceparent". Use the
// lowercase header names, or HeaderCarrier when keys come from HTTP.
type MapCarrier = propagation.MapCarrier

// HeaderCarrier is a Carrier backed by http.Header.
type HeaderCarrier = propagation.HeaderCarrier
