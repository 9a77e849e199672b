// Command orderd runs the traced order service.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/zoobzio/tracectx"
	"github.com/zoobzio/tracectx/internal/config"
	"github.com/zoobzio/tracectx/internal/logging"
	"github.com/zoobzio/tracectx/internal/messaging"
	"github.com/zoobzio/tracectx/internal/metrics"
	"github.com/zoobzio/tracectx/internal/orders"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.NewDefault().Fatal("failed to load config", zap.Error(err))
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		logging.NewDefault().Fatal("failed to build logger", zap.Error(err))
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	engine := tracectx.New(
		tracectx.WithLogger(logger.Named("tracing")),
		tracectx.WithRequestIDHeader(cfg.Tracing.RequestIDHeader),
	)
	defer engine.Close()

	m := metrics.New("orderd")
	engine.OnSpanEnd(m.ObserveSpan)

	spanLog := logging.SpanLogger(logger.Named("spans"), cfg.Tracing.ServiceName)
	if cfg.Tracing.HandlerWorkers > 0 && cfg.Tracing.HandlerQueue > 0 {
		if err := engine.EnableWorkerPool(cfg.Tracing.HandlerWorkers, cfg.Tracing.HandlerQueue); err != nil {
			return err
		}
		engine.OnSpanEndAsync(spanLog)
	} else {
		engine.OnSpanEnd(spanLog)
	}

	svc, err := orders.NewService(orders.Config{
		Engine: engine,
		Store: orders.NewSimulatedStore(cfg.Orders.SaveDelay, cfg.Orders.SaveFailureRate,
			orders.WithStoreLogger(logger.Named("store")),
		),
		Payer:     orders.NewPaymentClient(engine, cfg.Payment.URL, cfg.Payment.Timeout, cfg.Payment.Retries),
		Publisher: messaging.Traced(engine, messaging.NewLogPublisher(logger.Named("messaging")), m.ObservePublish),
		Logger:    logger,
		Service:   cfg.Tracing.ServiceName,
		Topic:     cfg.Messages.OrderTopic,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr: cfg.Server.Addr(),
		Handler: orders.NewRouter(svc, engine, orders.RouterOptions{
			Logger:      logger.Named("http"),
			Metrics:     m.Handler(),
			ServiceName: cfg.Tracing.ServiceName,
		}),
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", srv.Addr), zap.String("service", cfg.Tracing.ServiceName))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case sig := <-sigChan:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errChan:
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return err
	}
	logger.Info("stopped", zap.Uint64("dropped_spans", engine.DroppedSpans()))
	return nil
}
