package tracectx

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
)

// SpanHandler is called exactly once for every span when it ends.
type SpanHandler func(span Span)

type handlerEntry struct {
	handler SpanHandler
	id      uint64
	async   bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used for span timing.
// Enables clock injection for deterministic testing.
func WithClock(clock clockz.Clock) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithLogger sets the logger for extraction fallbacks and handler panics.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithRequestIDHeader changes the header ExtractHTTP reads the request id from.
func WithRequestIDHeader(name string) Option {
	return func(e *Engine) {
		if name != "" {
			e.requestIDHeader = name
		}
	}
}

// Engine extracts, creates, propagates and finishes trace contexts.
// There is no package level engine; construct one and pass it around.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field order optimized for functionality over memory
type Engine struct {
	handlers        []handlerEntry
	panicHook       func(handlerID uint64, r interface{})
	workers         *workerPool
	spanIDPool      *IDPool
	clock           clockz.Clock
	logger          *zap.Logger
	requestIDHeader string
	handlersLock    sync.RWMutex
	idPoolOnce      sync.Once
	nextID          atomic.Uint64
	droppedSpans    atomic.Uint64
}

// New creates an engine using the real clock and a no-op logger.
func New(opts ...Option) *Engine {
	e := &Engine{
		handlers:        make([]handlerEntry, 0),
		clock:           clockz.RealClock,
		logger:          zap.NewNop(),
		requestIDHeader: HeaderRequestID,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RequestIDHeader returns the header name used for request ids.
func (e *Engine) RequestIDHeader() string {
	return e.requestIDHeader
}

// Extract produces the context for a new unit of work from inbound carrier
// data. A valid traceparent wins; otherwise the trace id is derived from
// requestID. A missing or malformed traceparent is never an error by
// itself; only the absence of both seeds is (ErrMissingTraceSeed).
// The returned SpanID is always freshly generated.
func (e *Engine) Extract(carrier Carrier, requestID string) (TraceContext, error) {
	tc := TraceContext{Sampled: true}

	parent, ok := parseCarrier(carrier)
	switch {
	case ok:
		tc.TraceID = parent.TraceID
		tc.ParentSpanID = parent.SpanID
		tc.Remote = true

	case requestID != "":
		if carrier != nil {
			if raw := carrier.Get(HeaderTraceparent); raw != "" {
				e.logger.Debug("ignoring malformed traceparent",
					zap.String("traceparent", raw),
					zap.String("request_id", requestID),
				)
			}
		}
		tc.TraceID = NormalizeToTraceID(requestID)
		if !ValidTraceID(tc.TraceID) {
			return TraceContext{}, fmt.Errorf("request id %q derives an all-zero trace id: %w", requestID, ErrMissingTraceSeed)
		}

	default:
		return TraceContext{}, ErrMissingTraceSeed
	}

	tc.SpanID = e.generateSpanID()
	return tc, nil
}

// ExtractHTTP runs Extract over request headers, reading the request id
// from the engine's request id header.
func (e *Engine) ExtractHTTP(h http.Header) (TraceContext, error) {
	return e.Extract(HeaderCarrier(h), h.Get(e.requestIDHeader))
}

// Child derives a context for work caused by parent: same trace, a new
// span id, and parent's span as the parent.
func (e *Engine) Child(parent TraceContext) TraceContext {
	return TraceContext{
		TraceID:      parent.TraceID,
		SpanID:       e.generateSpanID(),
		ParentSpanID: parent.SpanID,
		Sampled:      true,
	}
}

// Start opens a span bound to tc. It performs no I/O.
//
// tc must come from Extract or Child (or a stored copy of either). A
// context with missing or malformed ids still gets a span, so request
// handling never fails on it, but it is logged at warn level, and without
// valid trace and span ids nothing is propagated from it.
func (e *Engine) Start(name string, tc TraceContext, attrs Attributes) *ActiveSpan {
	if !tc.Valid() {
		e.logger.Warn("starting span with invalid trace context",
			zap.String("span", name),
			zap.String("trace_id", tc.TraceID),
			zap.String("span_id", tc.SpanID),
		)
	}
	span := &Span{
		Name:       name,
		Context:    tc,
		StartTime:  e.clock.Now(),
		Attributes: scalars(attrs),
		Status:     StatusUnset,
	}
	return &ActiveSpan{span: span, engine: e}
}

// StartChild opens a span for work caused by parent.
func (e *Engine) StartChild(name string, parent TraceContext, attrs Attributes) *ActiveSpan {
	return e.Start(name, e.Child(parent), attrs)
}

// StartFrom extracts a context from carrier and opens a span bound to it.
func (e *Engine) StartFrom(name string, carrier Carrier, requestID string, attrs Attributes) (*ActiveSpan, error) {
	tc, err := e.Extract(carrier, requestID)
	if err != nil {
		return nil, fmt.Errorf("start %q: %w", name, err)
	}
	return e.Start(name, tc, attrs), nil
}

// ensureIDPools initializes the span id pool if not already created.
func (e *Engine) ensureIDPools() {
	e.idPoolOnce.Do(func() {
		// Pool size based on number of CPUs for optimal contention balance.
		e.spanIDPool = NewIDPool(runtime.NumCPU() * 100)
	})
}

// generateSpanID takes a span id from the pool, or generates one directly
// once the engine is closed.
func (e *Engine) generateSpanID() string {
	e.ensureIDPools()
	if e.spanIDPool == nil {
		return GenerateSpanID()
	}
	return e.spanIDPool.Get()
}

// OnSpanEnd registers a synchronous handler called when spans end.
func (e *Engine) OnSpanEnd(handler SpanHandler) uint64 {
	return e.registerHandler(handler, false)
}

// OnSpanEndAsync registers an asynchronous handler called when spans end.
func (e *Engine) OnSpanEndAsync(handler SpanHandler) uint64 {
	return e.registerHandler(handler, true)
}

func (e *Engine) registerHandler(handler SpanHandler, async bool) uint64 {
	if handler == nil {
		return 0
	}

	id := e.nextID.Add(1)

	e.handlersLock.Lock()
	defer e.handlersLock.Unlock()

	e.handlers = append(e.handlers, handlerEntry{
		id:      id,
		handler: handler,
		async:   async,
	})

	return id
}

// RemoveHandler removes a handler by ID.
func (e *Engine) RemoveHandler(id uint64) {
	e.handlersLock.Lock()
	defer e.handlersLock.Unlock()

	// Preserve order
	for i, h := range e.handlers {
		if h.id == id {
			copy(e.handlers[i:], e.handlers[i+1:])
			e.handlers = e.handlers[:len(e.handlers)-1]
			return
		}
	}
}

// SetPanicHook sets a function to be called when a handler panics.
func (e *Engine) SetPanicHook(hook func(handlerID uint64, r interface{})) {
	e.handlersLock.Lock()
	defer e.handlersLock.Unlock()
	e.panicHook = hook
}

// executeHandlers calls all registered handlers with the finished span.
// Every handler gets its own copy.
func (e *Engine) executeHandlers(span Span) {
	e.handlersLock.RLock()
	if len(e.handlers) == 0 {
		e.handlersLock.RUnlock()
		return
	}

	handlers := make([]handlerEntry, len(e.handlers))
	copy(handlers, e.handlers)
	workers := e.workers
	e.handlersLock.RUnlock()

	copies := make([]Span, len(handlers))
	copies[0] = span
	for i := 1; i < len(copies); i++ {
		copies[i] = span.clone()
	}

	for i, h := range handlers {
		s := copies[i]
		if h.async {
			entry := h
			if workers != nil {
				workers.submit(func() {
					e.safeCall(entry, s)
				})
			} else {
				go e.safeCall(entry, s)
			}
		} else {
			e.safeCall(h, s)
		}
	}
}

func (e *Engine) safeCall(entry handlerEntry, span Span) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("span handler panicked",
				zap.Uint64("handler_id", entry.id),
				zap.String("trace_id", span.Context.TraceID),
				zap.String("span_id", span.Context.SpanID),
				zap.Any("panic", r),
			)
			e.handlersLock.RLock()
			hook := e.panicHook
			e.handlersLock.RUnlock()
			if hook != nil {
				hook(entry.id, r)
			}
		}
	}()
	entry.handler(span)
}

// EnableWorkerPool creates a bounded worker pool for async handlers.
func (e *Engine) EnableWorkerPool(workers, queueSize int) error {
	if workers <= 0 {
		return errors.New("workers must be > 0")
	}
	if queueSize <= 0 {
		return errors.New("queueSize must be > 0")
	}

	e.handlersLock.Lock()
	defer e.handlersLock.Unlock()

	if e.workers != nil {
		return errors.New("worker pool already enabled")
	}

	pool := &workerPool{
		tasks:   make(chan func(), queueSize),
		stop:    make(chan struct{}),
		dropped: &e.droppedSpans,
	}

	pool.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go pool.run()
	}
	e.workers = pool

	return nil
}

// DroppedSpans returns the number of spans dropped due to a full worker queue.
func (e *Engine) DroppedSpans() uint64 {
	return e.droppedSpans.Load()
}

// Close shuts down the engine and cleans up resources.
// Spans ended after Close are not dispatched.
func (e *Engine) Close() {
	e.handlersLock.Lock()
	e.handlers = nil
	workers := e.workers
	e.workers = nil
	e.handlersLock.Unlock()

	// Wait for in-flight async tasks
	if workers != nil {
		workers.shutdown()
	}

	// Marks the pool as initialized so a never-used engine does not start one.
	e.idPoolOnce.Do(func() {})
	if e.spanIDPool != nil {
		e.spanIDPool.Close()
	}
}

// workerPool manages a fixed number of workers for processing async handlers.
//
//nolint:govet // Field order optimized for functionality over memory
type workerPool struct {
	tasks   chan func()
	stop    chan struct{}
	dropped *atomic.Uint64
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
}

func (w *workerPool) run() {
	defer w.wg.Done()
	for {
		select {
		case task := <-w.tasks:
			task()
		case <-w.stop:
			// Drain what was queued before shutdown.
			for {
				select {
				case task := <-w.tasks:
					task()
				default:
					return
				}
			}
		}
	}
}

// submit queues task, or counts it as dropped when the queue is full or
// the pool has shut down.
func (w *workerPool) submit(task func()) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		w.dropped.Add(1)
		return
	}
	select {
	case w.tasks <- task:
	default:
		w.dropped.Add(1)
	}
}

// shutdown stops accepting tasks, then waits for the workers to drain
// everything already queued.
func (w *workerPool) shutdown() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.stop)
	w.mu.Unlock()

	w.wg.Wait()
}
