package tracectx

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Setter writes one carrier entry, e.g. http.ResponseWriter.Header().Set.
type Setter func(key, value string)

// InjectOption selects the debug headers written next to traceparent.
type InjectOption func(*injectConfig)

type injectConfig struct {
	requestID string
	traceID   bool
	spanID    bool
}

// WithRequestID writes x-request-id with the given value. Empty ids are skipped.
func WithRequestID(id string) InjectOption {
	return func(c *injectConfig) {
		c.requestID = id
	}
}

// WithTraceIDHeader writes x-trace-id.
func WithTraceIDHeader() InjectOption {
	return func(c *injectConfig) {
		c.traceID = true
	}
}

// WithSpanIDHeader writes x-span-id.
func WithSpanIDHeader() InjectOption {
	return func(c *injectConfig) {
		c.spanID = true
	}
}

// Inject serializes tc into a new MapCarrier.
func Inject(tc TraceContext, opts ...InjectOption) MapCarrier {
	carrier := MapCarrier{}
	InjectCarrier(tc, carrier, opts...)
	return carrier
}

// InjectCarrier serializes tc into an existing carrier such as
// propagation.HeaderCarrier(req.Header).
func InjectCarrier(tc TraceContext, carrier Carrier, opts ...InjectOption) {
	InjectIntoResponse(tc, carrier.Set, opts...)
}

// InjectIntoResponse serializes tc through a caller supplied setter, which
// keeps the engine independent of any particular response header API.
// An invalid context writes no traceparent; requested debug headers are
// still written.
func InjectIntoResponse(tc TraceContext, set Setter, opts ...InjectOption) {
	var cfg injectConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	injectTraceparent(tc, setterCarrier(set))

	if cfg.requestID != "" {
		set(HeaderRequestID, cfg.requestID)
	}
	if cfg.traceID && tc.TraceID != "" {
		set(HeaderTraceID, tc.TraceID)
	}
	if cfg.spanID && tc.SpanID != "" {
		set(HeaderSpanID, tc.SpanID)
	}
}

// injectTraceparent writes version 00 of the W3C header.
func injectTraceparent(tc TraceContext, carrier Carrier) {
	sc := tc.spanContext()
	if !sc.IsValid() {
		return
	}
	ctx := trace.ContextWithSpanContext(context.Background(), sc)
	propagation.TraceContext{}.Inject(ctx, carrier)
}

// setterCarrier adapts a write-only Setter to the Carrier interface.
type setterCarrier Setter

func (setterCarrier) Get(string) string { return "" }

func (s setterCarrier) Set(key, value string) { s(key, value) }

func (setterCarrier) Keys() []string { return nil }

// Stringify renders an attribute value as a carrier string.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int8:
		return strconv.FormatInt(int64(val), 10)
	case int16:
		return strconv.FormatInt(int64(val), 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint:
		return strconv.FormatUint(uint64(val), 10)
	case uint8:
		return strconv.FormatUint(uint64(val), 10)
	case uint16:
		return strconv.FormatUint(uint64(val), 10)
	case uint32:
		return strconv.FormatUint(uint64(val), 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case float32:
		return strconv.FormatFloat(float64(val), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case time.Duration:
		return val.String()
	case error:
		return val.Error()
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
