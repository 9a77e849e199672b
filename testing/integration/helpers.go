package integration

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/zoobzio/tracectx"
	"github.com/zoobzio/tracectx/tracehttp"
)

// MockCollector wraps a real collector with test utilities.
// Provides synchronous collection and verification helpers.
//
//nolint:govet // Field alignment optimized for test helper readability
type MockCollector struct {
	exported []tracectx.Span
	*tracectx.Collector
	t  *testing.T
	mu sync.Mutex
}

// NewMockCollector creates a collector for testing.
func NewMockCollector(t *testing.T, name string, bufferSize int) *MockCollector {
	collector := tracectx.NewCollector(name, bufferSize)
	collector.SetSyncMode(true)
	t.Cleanup(collector.Close)
	return &MockCollector{
		Collector: collector,
		t:         t,
		exported:  make([]tracectx.Span, 0),
	}
}

// Export returns collected spans and clears the buffer.
func (m *MockCollector) Export() []tracectx.Span {
	m.mu.Lock()
	defer m.mu.Unlock()

	spans := m.Collector.Export()
	m.exported = append(m.exported, spans...)
	return spans
}

// GetAll returns every span seen so far, exported or not.
func (m *MockCollector) GetAll() []tracectx.Span {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current := m.Collector.Export(); len(current) > 0 {
		m.exported = append(m.exported, current...)
	}

	all := make([]tracectx.Span, len(m.exported))
	copy(all, m.exported)
	return all
}

// WaitForSpans waits for expected number of spans with timeout.
func (m *MockCollector) WaitForSpans(expected int, timeout time.Duration) []tracectx.Span {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		if spans := m.GetAll(); len(spans) >= expected {
			return spans
		}
		<-ticker.C
	}

	spans := m.GetAll()
	m.t.Errorf("Timeout waiting for spans: expected %d, got %d", expected, len(spans))
	return spans
}

// AssertSpanNamed returns the first span with the given name.
func (m *MockCollector) AssertSpanNamed(name string) *tracectx.Span {
	spans := m.GetAll()
	for i := range spans {
		if spans[i].Name == name {
			return &spans[i]
		}
	}
	m.t.Errorf("Span named '%s' not found", name)
	return nil
}

// AssertParentChild verifies parent-child relationship.
func AssertParentChild(t *testing.T, parent, child *tracectx.Span) {
	t.Helper()
	if parent == nil || child == nil {
		t.Fatalf("missing span: parent=%v child=%v", parent != nil, child != nil)
	}
	if child.Context.ParentSpanID != parent.Context.SpanID {
		t.Errorf("Parent-child relationship broken: %s is not parent of %s. Child ParentSpanID=%s, Parent SpanID=%s",
			parent.Name, child.Name, child.Context.ParentSpanID, parent.Context.SpanID)
	}
	if child.Context.TraceID != parent.Context.TraceID {
		t.Errorf("Trace ID mismatch: parent=%s, child=%s", parent.Context.TraceID, child.Context.TraceID)
	}
}

// Hop is one traced service in a call chain. Each hop has its own engine,
// as separate processes would.
type Hop struct {
	Engine    *tracectx.Engine
	Collector *MockCollector
	Server    *httptest.Server
	Client    *resty.Client
}

// NewHop starts a traced server running handler.
func NewHop(t *testing.T, name string, handler func(hop *Hop, w http.ResponseWriter, r *http.Request)) *Hop {
	t.Helper()

	engine := tracectx.New()
	collector := NewMockCollector(t, name, 1000)
	engine.OnSpanEnd(collector.Handle)

	hop := &Hop{
		Engine:    engine,
		Collector: collector,
		Client:    tracehttp.Instrument(resty.New(), engine),
	}
	hop.Server = httptest.NewServer(tracehttp.Middleware(engine, tracehttp.WithServiceName(name))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handler(hop, w, r)
		}),
	))

	t.Cleanup(func() {
		hop.Server.Close()
		engine.Close()
	})
	return hop
}

const testTimeout = 2 * time.Second
