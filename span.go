package tracectx

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Attribute keys set by the engine itself.
const (
	AttrDuration         = "duration"
	AttrExceptionMessage = "exception.message"
	EventException       = "exception"
)

// Attributes maps attribute keys to scalar values.
type Attributes map[string]any

// Status is the outcome of a span.
type Status int

const (
	StatusUnset Status = iota
	StatusOK
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusError:
		return "error"
	default:
		return "unset"
	}
}

// MarshalText renders the status by name in JSON and logs.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Event is a timestamped annotation on a span. Events are never changed
// once appended.
type Event struct {
	Attributes Attributes `json:"attributes,omitempty"`
	Time       time.Time  `json:"time"`
	Name       string     `json:"name"`
}

// Span is a snapshot of one traced operation. Finished spans handed to
// handlers are deep copies and may be retained freely.
//
//nolint:govet // Field order follows JSON output
type Span struct {
	Attributes    Attributes    `json:"attributes,omitempty"`
	Events        []Event       `json:"events,omitempty"`
	StartTime     time.Time     `json:"start_time"`
	EndTime       time.Time     `json:"end_time,omitempty"`
	Duration      time.Duration `json:"duration"`
	Name          string        `json:"name"`
	StatusMessage string        `json:"status_message,omitempty"`
	Context       TraceContext  `json:"context"`
	Status        Status        `json:"status"`
}

// Ended reports whether the span has an end time.
func (s *Span) Ended() bool {
	return !s.EndTime.IsZero()
}

// clone deep copies attributes and events.
func (s *Span) clone() Span {
	c := *s
	c.Attributes = s.Attributes.clone()
	if s.Events != nil {
		c.Events = make([]Event, len(s.Events))
		for i, ev := range s.Events {
			c.Events[i] = Event{Name: ev.Name, Time: ev.Time, Attributes: ev.Attributes.clone()}
		}
	}
	return c
}

func (a Attributes) clone() Attributes {
	if a == nil {
		return nil
	}
	c := make(Attributes, len(a))
	for k, v := range a {
		c[k] = v
	}
	return c
}

// ActiveSpan wraps a Span that is still in progress.
// Safe for concurrent use by multiple goroutines.
type ActiveSpan struct {
	span   *Span
	engine *Engine
	mu     sync.Mutex
}

// Context returns the span's trace context.
func (a *ActiveSpan) Context() TraceContext {
	// Context is fixed at Start; no lock needed.
	return a.span.Context
}

// TraceID returns the trace ID of this span.
func (a *ActiveSpan) TraceID() string {
	return a.span.Context.TraceID
}

// SpanID returns the span ID of this span.
func (a *ActiveSpan) SpanID() string {
	return a.span.Context.SpanID
}

// Name returns the operation name.
func (a *ActiveSpan) Name() string {
	return a.span.Name
}

// Ended reports whether End has been called.
func (a *ActiveSpan) Ended() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.span.Ended()
}

// SetAttributes merges attrs into the span; later keys overwrite earlier ones.
func (a *ActiveSpan) SetAttributes(attrs Attributes) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.span.Ended() {
		return fmt.Errorf("set attributes on %q: %w", a.span.Name, ErrAlreadyEnded)
	}
	if len(attrs) == 0 {
		return nil
	}
	if a.span.Attributes == nil {
		a.span.Attributes = make(Attributes, len(attrs))
	}
	for k, v := range attrs {
		a.span.Attributes[k] = scalar(v)
	}
	return nil
}

// SetAttribute sets a single attribute.
func (a *ActiveSpan) SetAttribute(key string, value any) error {
	return a.SetAttributes(Attributes{key: value})
}

// Attribute reads an attribute value.
func (a *ActiveSpan) Attribute(key string) (any, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	v, ok := a.span.Attributes[key]
	return v, ok
}

// AddEvent appends a named event stamped with the engine clock.
func (a *ActiveSpan) AddEvent(name string, attrs Attributes) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.span.Ended() {
		return fmt.Errorf("add event %q to %q: %w", name, a.span.Name, ErrAlreadyEnded)
	}
	a.span.Events = append(a.span.Events, Event{
		Name:       name,
		Time:       a.engine.clock.Now(),
		Attributes: scalars(attrs),
	})
	return nil
}

// SetStatus sets the span outcome.
func (a *ActiveSpan) SetStatus(status Status, message string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.span.Ended() {
		return fmt.Errorf("set status on %q: %w", a.span.Name, ErrAlreadyEnded)
	}
	a.span.Status = status
	a.span.StatusMessage = message
	return nil
}

// RecordError marks the span as failed and appends an exception event
// carrying the error message. The span stays open. A nil error is ignored.
func (a *ActiveSpan) RecordError(err error) error {
	if err == nil {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.span.Ended() {
		return fmt.Errorf("record error on %q: %w", a.span.Name, ErrAlreadyEnded)
	}
	a.span.Status = StatusError
	a.span.StatusMessage = err.Error()
	a.span.Events = append(a.span.Events, Event{
		Name:       EventException,
		Time:       a.engine.clock.Now(),
		Attributes: Attributes{AttrExceptionMessage: err.Error()},
	})
	return nil
}

// End finishes the span and hands a frozen copy to the engine's handlers.
// Only the first call has any effect, so a cleanup path may call End after
// the normal path already did.
func (a *ActiveSpan) End() {
	a.mu.Lock()
	if a.span.Ended() {
		a.mu.Unlock()
		return
	}

	a.span.EndTime = a.engine.clock.Now()
	a.span.Duration = a.span.EndTime.Sub(a.span.StartTime)
	if a.span.Attributes == nil {
		a.span.Attributes = make(Attributes, 1)
	}
	a.span.Attributes[AttrDuration] = a.span.Duration
	snapshot := a.span.clone()
	a.mu.Unlock()

	a.engine.executeHandlers(snapshot)
}

// Snapshot returns a deep copy of the span's current state.
func (a *ActiveSpan) Snapshot() Span {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.span.clone()
}

// scalar keeps scalar values and stringifies anything else.
func scalar(v any) any {
	switch v.(type) {
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, time.Duration:
		return v
	default:
		return Stringify(v)
	}
}

func scalars(attrs Attributes) Attributes {
	if len(attrs) == 0 {
		return nil
	}
	out := make(Attributes, len(attrs))
	for k, v := range attrs {
		out[k] = scalar(v)
	}
	return out
}

// spanKeyType is a private type for context keys to avoid collisions.
type spanKeyType struct{}

var spanKey spanKeyType

// ContextWithSpan returns a copy of ctx carrying span.
func ContextWithSpan(ctx context.Context, span *ActiveSpan) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, spanKey, span)
}

// SpanFromContext extracts the current span from a context.
// Returns nil if no span is present.
func SpanFromContext(ctx context.Context) *ActiveSpan {
	if ctx == nil {
		return nil
	}
	span, _ := ctx.Value(spanKey).(*ActiveSpan)
	return span
}

// TraceContextFromContext returns the trace context of the span in ctx.
func TraceContextFromContext(ctx context.Context) (TraceContext, bool) {
	span := SpanFromContext(ctx)
	if span == nil {
		return TraceContext{}, false
	}
	return span.Context(), true
}
