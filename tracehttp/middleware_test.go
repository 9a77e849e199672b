package tracehttp

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/tracectx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const exampleTraceparent = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"

func newEngine(t *testing.T) (*tracectx.Engine, *tracectx.Collector) {
	t.Helper()
	engine := tracectx.New()
	collector := tracectx.NewCollector("test", 100)
	collector.SetSyncMode(true)
	engine.OnSpanEnd(collector.Handle)
	t.Cleanup(func() {
		engine.Close()
		collector.Close()
	})
	return engine, collector
}

func TestMiddlewareRemoteContext(t *testing.T) {
	engine, collector := newEngine(t)

	var inHandler tracectx.TraceContext
	handler := Middleware(engine)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tc, ok := tracectx.TraceContextFromContext(r.Context())
		require.True(t, ok)
		inHandler = tc
		w.WriteHeader(http.StatusAccepted)
	}))

	req := httptest.NewRequest(http.MethodPost, "/place-order?x=1", nil)
	req.Header.Set("traceparent", exampleTraceparent)
	req.Header.Set("x-request-id", "abc123")
	req.Header.Set("User-Agent", "tests")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", inHandler.TraceID)
	assert.Equal(t, "00f067aa0ba902b7", inHandler.ParentSpanID)
	assert.True(t, inHandler.Remote)

	// Response carries the request span as the new parent.
	assert.Equal(t, inHandler.Traceparent(), rec.Header().Get("traceparent"))
	assert.Equal(t, "abc123", rec.Header().Get("x-request-id"))
	assert.Equal(t, inHandler.TraceID, rec.Header().Get("x-trace-id"))

	spans := collector.Export()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "POST /place-order?x=1", span.Name)
	assert.Equal(t, inHandler, span.Context)
	assert.Equal(t, http.MethodPost, span.Attributes[AttrHTTPMethod])
	assert.Equal(t, "/place-order?x=1", span.Attributes[AttrEndpointName])
	assert.Equal(t, "/place-order", span.Attributes[AttrHTTPRoute])
	assert.Equal(t, "tests", span.Attributes[AttrHTTPUserAgent])
	assert.Equal(t, true, span.Attributes[AttrTraceIsRemote])
	assert.Equal(t, http.StatusAccepted, span.Attributes[AttrHTTPStatusCode])
	assert.Equal(t, tracectx.StatusUnset, span.Status)
}

func TestMiddlewareLocalContext(t *testing.T) {
	engine, collector := newEngine(t)

	handler := Middleware(engine, WithServiceName("order-service"))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("x-request-id", "abc123")
	req.Header.Set("traceparent", "definitely-not-valid")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "61626331323300000000000000000000", rec.Header().Get("x-trace-id"))

	spans := collector.Export()
	require.Len(t, spans, 1)
	assert.False(t, spans[0].Context.Remote)
	assert.Empty(t, spans[0].Context.ParentSpanID)
	assert.Equal(t, false, spans[0].Attributes[AttrTraceIsRemote])
	assert.Equal(t, "order-service", spans[0].Attributes[AttrServiceName])
	assert.Equal(t, http.StatusOK, spans[0].Attributes[AttrHTTPStatusCode])
}

func TestMiddlewareMissingSeed(t *testing.T) {
	engine, collector := newEngine(t)

	called := false
	handler := Middleware(engine)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, called)
	assert.Equal(t, 0, collector.Count())
}

func TestMiddlewareServerError(t *testing.T) {
	engine, collector := newEngine(t)

	handler := Middleware(engine)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))

	req := httptest.NewRequest(http.MethodGet, "/fail", nil)
	req.Header.Set("x-request-id", "abc123")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	spans := collector.Export()
	require.Len(t, spans, 1)
	assert.Equal(t, tracectx.StatusError, spans[0].Status)
	assert.Equal(t, http.StatusBadGateway, spans[0].Attributes[AttrHTTPStatusCode])
}

func TestMiddlewarePanic(t *testing.T) {
	engine, collector := newEngine(t)

	handler := Middleware(engine)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("handler exploded")
	}))

	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	req.Header.Set("x-request-id", "abc123")

	assert.PanicsWithValue(t, "handler exploded", func() {
		handler.ServeHTTP(httptest.NewRecorder(), req)
	})

	spans := collector.Export()
	require.Len(t, spans, 1)
	assert.Equal(t, tracectx.StatusError, spans[0].Status)
	assert.Equal(t, "panic: handler exploded", spans[0].StatusMessage)
}

func TestMiddlewareSkipPathsAndLogging(t *testing.T) {
	engine, collector := newEngine(t)
	core, logs := observer.New(zapcore.InfoLevel)

	handler := Middleware(engine, WithSkipPaths("/metrics"), WithLogger(zap.New(core)))(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}),
	)

	// Untraced path needs no seed.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Header().Get("traceparent"))
	assert.Equal(t, 0, collector.Count())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("x-request-id", "abc123")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.FilterMessage("req").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "61626331323300000000000000000000", fields["trace"])
	assert.Equal(t, int64(http.StatusNoContent), fields["status"])
}

func TestMiddlewareCustomRequestIDHeader(t *testing.T) {
	engine := tracectx.New(tracectx.WithRequestIDHeader("X-Correlation-ID"))
	defer engine.Close()

	handler := Middleware(engine)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Correlation-ID", "abc123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "61626331323300000000000000000000", rec.Header().Get("x-trace-id"))
	assert.Equal(t, "abc123", rec.Header().Get("x-request-id"))
}

func TestMiddlewareRoutePattern(t *testing.T) {
	engine, collector := newEngine(t)

	router := chi.NewRouter()
	router.Use(Middleware(engine))
	router.Get("/orders/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	for _, path := range []string{"/orders/1?nonce=1", "/orders/2?nonce=2", "/missing?nonce=3"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("x-request-id", "abc123")
		router.ServeHTTP(httptest.NewRecorder(), req)
	}

	spans := collector.Export()
	require.Len(t, spans, 3)
	assert.Equal(t, "GET /orders/1?nonce=1", spans[0].Name)
	assert.Equal(t, "/orders/{id}", spans[0].Attributes[AttrHTTPRoute])
	assert.Equal(t, "/orders/{id}", spans[1].Attributes[AttrHTTPRoute])
	assert.Equal(t, "unmatched", spans[2].Attributes[AttrHTTPRoute])
	assert.Equal(t, http.StatusNotFound, spans[2].Attributes[AttrHTTPStatusCode])
}
