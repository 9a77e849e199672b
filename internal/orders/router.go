package orders

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/zoobzio/tracectx"
	"github.com/zoobzio/tracectx/tracehttp"
	"go.uber.org/zap"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	Logger      *zap.Logger
	Metrics     http.Handler
	ServiceName string
}

// NewRouter mounts the service behind the tracing middleware. /metrics is
// served untraced when a metrics handler is given.
func NewRouter(svc *Service, engine *tracectx.Engine, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	// baseline
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Use(tracehttp.Middleware(engine,
		tracehttp.WithLogger(opts.Logger),
		tracehttp.WithServiceName(opts.ServiceName),
		tracehttp.WithSkipPaths("/metrics"),
	))

	r.Get("/health", svc.Health)
	r.Post("/place-order", svc.PlaceOrder)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	return r
}
