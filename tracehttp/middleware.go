package tracehttp

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/zoobzio/tracectx"
	"go.uber.org/zap"
)

// Span attribute keys written by the middleware.
const (
	AttrHTTPMethod     = "http.method"
	AttrHTTPStatusCode = "http.status_code"
	AttrHTTPUserAgent  = "http.user_agent"
	AttrHTTPURL        = "http.url"
	AttrHTTPRoute      = "http.route"
	AttrHTTPHost       = "http.host"
	AttrEndpointName   = "endpoint.name"
	AttrTraceIsRemote  = "trace.is_remote"
	AttrServiceName    = "service.name"
)

// Option configures Middleware.
type Option func(*options)

type options struct {
	logger    *zap.Logger
	service   string
	skipPaths map[string]struct{}
}

// WithLogger logs a one-line summary per traced request.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithServiceName adds a service.name attribute to request spans.
func WithServiceName(name string) Option {
	return func(o *options) {
		o.service = name
	}
}

// WithSkipPaths leaves the given paths untraced, e.g. /metrics.
func WithSkipPaths(paths ...string) Option {
	return func(o *options) {
		for _, p := range paths {
			o.skipPaths[p] = struct{}{}
		}
	}
}

// Middleware traces every request passing through it.
//
// A request carrying neither a valid traceparent nor a request id cannot be
// traced and is rejected with 400; that is the only case in which tracing
// changes the outcome of a request.
func Middleware(engine *tracectx.Engine, opts ...Option) func(http.Handler) http.Handler {
	o := options{
		logger:    zap.NewNop(),
		skipPaths: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(&o)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, skip := o.skipPaths[r.URL.Path]; skip {
				next.ServeHTTP(w, r)
				return
			}

			tc, err := engine.ExtractHTTP(r.Header)
			if err != nil {
				o.logger.Warn("rejecting untraceable request",
					zap.String("m", r.Method),
					zap.String("path", r.URL.Path),
					zap.Error(err),
				)
				http.Error(w, fmt.Sprintf("supply a %s or %s header", tracectx.HeaderTraceparent, engine.RequestIDHeader()), http.StatusBadRequest)
				return
			}

			requestID := r.Header.Get(engine.RequestIDHeader())
			target := r.URL.RequestURI()

			attrs := tracectx.Attributes{
				AttrHTTPMethod:    r.Method,
				AttrEndpointName:  target,
				AttrHTTPUserAgent: r.UserAgent(),
				AttrTraceIsRemote: tc.Remote,
			}
			if o.service != "" {
				attrs[AttrServiceName] = o.service
			}
			span := engine.Start(r.Method+" "+target, tc, attrs)

			// echo back on response
			tracectx.InjectIntoResponse(tc, w.Header().Set,
				tracectx.WithRequestID(requestID),
				tracectx.WithTraceIDHeader(),
			)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			defer func() {
				_ = span.SetAttribute(AttrHTTPRoute, routePattern(r))

				if rec := recover(); rec != nil {
					_ = span.RecordError(fmt.Errorf("panic: %v", rec))
					span.End()
					panic(rec)
				}

				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				_ = span.SetAttribute(AttrHTTPStatusCode, status)
				if status >= http.StatusInternalServerError {
					_ = span.SetStatus(tracectx.StatusError, http.StatusText(status))
				}
				span.End()

				o.logger.Info("req",
					zap.String("trace", tc.TraceID),
					zap.String("span", tc.SpanID),
					zap.String("m", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", status),
					zap.Int64("ms", time.Since(start).Milliseconds()),
					zap.Int("bytes", ww.BytesWritten()),
				)
			}()

			next.ServeHTTP(ww, r.WithContext(tracectx.ContextWithSpan(r.Context(), span)))
		})
	}
}

// routePattern names the matched route without path parameters or query,
// e.g. /orders/{id}. Outside a chi router it falls back to the bare path.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	if pattern := rctx.RoutePattern(); pattern != "" {
		return pattern
	}
	return "unmatched"
}
