package tracectx

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/clockz"
)

// fakeClock is the part of the clockz fake clock the tests drive.
type fakeClock interface {
	clockz.Clock
	Advance(d time.Duration)
}

func newTestEngine(t *testing.T) (*Engine, fakeClock) {
	t.Helper()
	clock := clockz.NewFakeClock()
	engine := New(WithClock(clock))
	t.Cleanup(engine.Close)
	return engine, clock
}

func rootContext(t *testing.T, engine *Engine) TraceContext {
	t.Helper()
	tc, err := engine.Extract(nil, "abc123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return tc
}

func TestStartSpan(t *testing.T) {
	engine, clock := newTestEngine(t)
	tc := rootContext(t, engine)

	span := engine.Start("GET /health", tc, Attributes{"http.method": "GET"})

	snap := span.Snapshot()
	if snap.Name != "GET /health" {
		t.Errorf("Expected name 'GET /health', got %s", snap.Name)
	}
	if snap.Context != tc {
		t.Errorf("Expected context %v, got %v", tc, snap.Context)
	}
	if !snap.StartTime.Equal(clock.Now()) {
		t.Errorf("Expected start time %v, got %v", clock.Now(), snap.StartTime)
	}
	if snap.Status != StatusUnset {
		t.Errorf("Expected unset status, got %s", snap.Status)
	}
	if snap.Attributes["http.method"] != "GET" {
		t.Errorf("Expected http.method attribute, got %v", snap.Attributes)
	}
	if span.Ended() {
		t.Error("New span must not be ended")
	}
}

func TestSetAttributesMerge(t *testing.T) {
	engine, _ := newTestEngine(t)
	span := engine.Start("op", rootContext(t, engine), Attributes{"a": 1, "b": "x"})

	if err := span.SetAttributes(Attributes{"b": "y", "c": true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := span.SetAttribute("d", []string{"p", "q"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	attrs := span.Snapshot().Attributes
	if attrs["a"] != 1 || attrs["b"] != "y" || attrs["c"] != true {
		t.Errorf("Unexpected merged attributes %v", attrs)
	}
	if attrs["d"] != "[p q]" {
		t.Errorf("Expected non-scalar to be stringified, got %#v", attrs["d"])
	}
	if v, ok := span.Attribute("b"); !ok || v != "y" {
		t.Errorf("Expected b=y, got %v", v)
	}
}

func TestAddEvent(t *testing.T) {
	engine, clock := newTestEngine(t)
	span := engine.Start("op", rootContext(t, engine), nil)

	attrs := Attributes{"order.id": "o-1"}
	if err := span.AddEvent("order.published", attrs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	attrs["order.id"] = "mutated"

	clock.Advance(5 * time.Millisecond)
	if err := span.AddEvent("second", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	events := span.Snapshot().Events
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}
	if events[0].Name != "order.published" || events[0].Attributes["order.id"] != "o-1" {
		t.Errorf("Unexpected first event %+v", events[0])
	}
	if !events[1].Time.After(events[0].Time) {
		t.Error("Expected events in time order")
	}
}

func TestRecordError(t *testing.T) {
	engine, _ := newTestEngine(t)
	span := engine.Start("op", rootContext(t, engine), nil)

	if err := span.RecordError(nil); err != nil {
		t.Errorf("nil error should be ignored, got %v", err)
	}
	if err := span.RecordError(errors.New("database save failed")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := span.Snapshot()
	if snap.Status != StatusError {
		t.Errorf("Expected error status, got %s", snap.Status)
	}
	if snap.StatusMessage != "database save failed" {
		t.Errorf("Expected status message, got %s", snap.StatusMessage)
	}
	if len(snap.Events) != 1 || snap.Events[0].Name != EventException ||
		snap.Events[0].Attributes[AttrExceptionMessage] != "database save failed" {
		t.Errorf("Expected exception event, got %+v", snap.Events)
	}
	if span.Ended() {
		t.Error("RecordError must not end the span")
	}
}

func TestEndIdempotent(t *testing.T) {
	engine, clock := newTestEngine(t)

	var calls []Span
	engine.OnSpanEnd(func(s Span) { calls = append(calls, s) })

	span := engine.Start("op", rootContext(t, engine), nil)
	clock.Advance(120 * time.Millisecond)
	span.End()
	firstEnd := span.Snapshot().EndTime

	clock.Advance(time.Second)
	span.End()

	snap := span.Snapshot()
	if !snap.EndTime.Equal(firstEnd) {
		t.Errorf("Expected end time from first End %v, got %v", firstEnd, snap.EndTime)
	}
	if snap.Duration != 120*time.Millisecond {
		t.Errorf("Expected duration 120ms, got %v", snap.Duration)
	}
	if snap.Attributes[AttrDuration] != 120*time.Millisecond {
		t.Errorf("Expected duration attribute, got %v", snap.Attributes[AttrDuration])
	}
	if len(calls) != 1 {
		t.Errorf("Expected handler to run once, ran %d times", len(calls))
	}
}

func TestMutationAfterEnd(t *testing.T) {
	engine, _ := newTestEngine(t)
	span := engine.Start("op", rootContext(t, engine), nil)
	span.End()

	if err := span.AddEvent("late", nil); !errors.Is(err, ErrAlreadyEnded) {
		t.Errorf("AddEvent: expected ErrAlreadyEnded, got %v", err)
	}
	if err := span.SetAttributes(Attributes{"late": true}); !errors.Is(err, ErrAlreadyEnded) {
		t.Errorf("SetAttributes: expected ErrAlreadyEnded, got %v", err)
	}
	if err := span.SetStatus(StatusOK, ""); !errors.Is(err, ErrAlreadyEnded) {
		t.Errorf("SetStatus: expected ErrAlreadyEnded, got %v", err)
	}
	if err := span.RecordError(errors.New("late")); !errors.Is(err, ErrAlreadyEnded) {
		t.Errorf("RecordError: expected ErrAlreadyEnded, got %v", err)
	}

	snap := span.Snapshot()
	if _, ok := snap.Attributes["late"]; ok {
		t.Error("Attributes changed after end")
	}
	if len(snap.Events) != 0 {
		t.Error("Events changed after end")
	}
}

func TestConcurrentEnd(t *testing.T) {
	engine, _ := newTestEngine(t)

	var mu sync.Mutex
	count := 0
	engine.OnSpanEnd(func(Span) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	span := engine.Start("op", rootContext(t, engine), nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			span.End()
		}()
	}
	wg.Wait()

	if count != 1 {
		t.Errorf("Expected exactly one dispatch, got %d", count)
	}
}

func TestConcurrentAttributeSetting(t *testing.T) {
	engine, _ := newTestEngine(t)
	span := engine.Start("op", rootContext(t, engine), nil)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_ = span.SetAttribute(fmt.Sprintf("key-%d", idx), idx)
		}(i)
	}
	wg.Wait()

	if n := len(span.Snapshot().Attributes); n != 100 {
		t.Errorf("Expected 100 attributes, got %d", n)
	}
}

func TestSnapshotIsolation(t *testing.T) {
	engine, _ := newTestEngine(t)
	span := engine.Start("op", rootContext(t, engine), Attributes{"k": "v"})

	snap := span.Snapshot()
	snap.Attributes["k"] = "changed"

	if v, _ := span.Attribute("k"); v != "v" {
		t.Errorf("Snapshot shares attribute map with live span: %v", v)
	}
}

func TestSpanContextPropagation(t *testing.T) {
	engine, _ := newTestEngine(t)
	span := engine.Start("op", rootContext(t, engine), nil)

	if SpanFromContext(context.Background()) != nil {
		t.Error("Expected no span in empty context")
	}
	//nolint:staticcheck // nil context handling is part of the contract
	if SpanFromContext(nil) != nil {
		t.Error("Expected no span in nil context")
	}

	ctx := ContextWithSpan(context.Background(), span)
	if SpanFromContext(ctx) != span {
		t.Error("Expected span to be propagated in context")
	}
	tc, ok := TraceContextFromContext(ctx)
	if !ok || tc != span.Context() {
		t.Errorf("Expected trace context %v, got %v", span.Context(), tc)
	}
}

func TestStartChild(t *testing.T) {
	engine, _ := newTestEngine(t)
	parent := engine.Start("POST /place-order", rootContext(t, engine), nil)
	child := engine.StartChild("POST /payment", parent.Context(), nil)

	if child.TraceID() != parent.TraceID() {
		t.Errorf("Expected child TraceID %s, got %s", parent.TraceID(), child.TraceID())
	}
	if child.Context().ParentSpanID != parent.SpanID() {
		t.Errorf("Expected child ParentSpanID %s, got %s", parent.SpanID(), child.Context().ParentSpanID)
	}
	if child.SpanID() == parent.SpanID() {
		t.Error("Expected child to have different SpanID from parent")
	}
	if child.Context().IsRoot() || !parent.Context().IsRoot() {
		t.Error("Unexpected root flags")
	}
}

func TestStatusString(t *testing.T) {
	for status, want := range map[Status]string{StatusUnset: "unset", StatusOK: "ok", StatusError: "error"} {
		if status.String() != want {
			t.Errorf("Expected %s, got %s", want, status.String())
		}
		text, _ := status.MarshalText()
		if string(text) != want {
			t.Errorf("Expected text %s, got %s", want, text)
		}
	}
}
