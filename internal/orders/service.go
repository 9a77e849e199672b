package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/zoobzio/tracectx"
	"github.com/zoobzio/tracectx/internal/messaging"
	"github.com/zoobzio/tracectx/tracehttp"
	"go.uber.org/zap"
)

// EventOrderCreated is the type of the event published for every placed order.
const EventOrderCreated = "ORDER_CREATED"

// Span names used by the handlers.
const (
	SpanHealth     = "GET /health"
	SpanPlaceOrder = "POST /place-order handler"
	SpanSaveOrder  = "db.save order"
)

// EventOrderPublished is added to the order span once the event is sent.
const EventOrderPublished = "order.published"

// OrderCreated is the data of an ORDER_CREATED event.
type OrderCreated struct {
	OrderRefID string `json:"orderRefId"`
}

// PlaceOrderResponse is the body returned by POST /place-order.
type PlaceOrderResponse struct {
	Order         Order  `json:"order"`
	PaymentStatus string `json:"paymentStatus"`
	TraceID       string `json:"traceId"`
	Message       string `json:"message"`
}

// Config wires a Service.
type Config struct {
	Engine    *tracectx.Engine
	Store     Store
	Payer     Payer
	Publisher messaging.Publisher
	Logger    *zap.Logger
	Rand      Rand
	Service   string
	Topic     string
}

// Service handles order requests.
type Service struct {
	engine    *tracectx.Engine
	store     Store
	payer     Payer
	publisher messaging.Publisher
	logger    *zap.Logger
	random    Rand
	service   string
	topic     string
}

// NewService creates a service. Engine, Store, Payer and Publisher are required.
func NewService(cfg Config) (*Service, error) {
	switch {
	case cfg.Engine == nil:
		return nil, errors.New("orders: engine is required")
	case cfg.Store == nil:
		return nil, errors.New("orders: store is required")
	case cfg.Payer == nil:
		return nil, errors.New("orders: payer is required")
	case cfg.Publisher == nil:
		return nil, errors.New("orders: publisher is required")
	}

	s := &Service{
		engine:    cfg.Engine,
		store:     cfg.Store,
		payer:     cfg.Payer,
		publisher: cfg.Publisher,
		logger:    cfg.Logger,
		random:    cfg.Rand,
		service:   cfg.Service,
		topic:     cfg.Topic,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.random == nil {
		s.random = globalRand{}
	}
	if s.service == "" {
		s.service = "order-service"
	}
	if s.topic == "" {
		s.topic = "reports-ms-dev01"
	}
	return s, nil
}

// parent returns the request span's context. Requests that did not pass
// through the tracing middleware are traced from their own headers.
func (s *Service) parent(r *http.Request) (tracectx.TraceContext, error) {
	if tc, ok := tracectx.TraceContextFromContext(r.Context()); ok {
		return tc, nil
	}
	return s.engine.ExtractHTTP(r.Header)
}

func (s *Service) startSpan(r *http.Request, name string) (*tracectx.ActiveSpan, error) {
	parent, err := s.parent(r)
	if err != nil {
		return nil, err
	}
	return s.engine.StartChild(name, parent, tracectx.Attributes{
		tracehttp.AttrServiceName:  s.service,
		tracehttp.AttrEndpointName: name,
	}), nil
}

// Health reports the service as up.
func (s *Service) Health(w http.ResponseWriter, r *http.Request) {
	span, err := s.startSpan(r, SpanHealth)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "untraceable_request", err.Error())
		return
	}
	defer span.End()

	_ = span.SetAttribute("health.status", "success")
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": s.service,
	})
}

// PlaceOrder creates a random order, saves it, charges it and announces it.
func (s *Service) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	span, err := s.startSpan(r, SpanPlaceOrder)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "untraceable_request", err.Error())
		return
	}
	defer span.End()

	order := RandomOrder(s.random)
	_ = span.SetAttributes(order.Attributes())

	ctx := tracectx.ContextWithSpan(r.Context(), span)
	requestID := r.Header.Get(s.engine.RequestIDHeader())

	result, err := s.placeOrder(ctx, span, requestID, order)
	if err != nil {
		_ = span.RecordError(err)
		s.logger.Error("order placement failed",
			zap.String("trace_id", span.TraceID()),
			zap.String("order_id", order.ID),
			zap.Error(err),
		)
		status, code := errorStatus(err)
		writeErr(w, status, code, err.Error())
		return
	}

	_ = span.SetStatus(tracectx.StatusOK, "")
	writeJSON(w, http.StatusOK, PlaceOrderResponse{
		Order:         order,
		PaymentStatus: result.PaymentStatus,
		TraceID:       span.TraceID(),
		Message:       "Order placed successfully with payment status: " + result.PaymentStatus,
	})
}

func (s *Service) placeOrder(ctx context.Context, span *tracectx.ActiveSpan, requestID string, order Order) (PaymentResult, error) {
	if err := s.save(ctx, span, order, "pending"); err != nil {
		return PaymentResult{}, err
	}

	result, err := s.payer.Charge(ctx, requestID, PaymentRequest{OrderID: order.ID, Amount: order.Amount})
	if err != nil {
		return PaymentResult{}, err
	}
	_ = span.SetAttribute("payment.status", result.PaymentStatus)

	if err := s.save(ctx, span, order, "paid"); err != nil {
		return PaymentResult{}, err
	}

	ref := result.OrderID
	if ref == "" {
		ref = order.ID
	}
	payload, err := messaging.NewEnvelope(EventOrderCreated, OrderCreated{OrderRefID: ref}, span.Context()).Encode()
	if err != nil {
		return PaymentResult{}, err
	}
	if err := s.publisher.Publish(ctx, s.topic, payload); err != nil {
		return PaymentResult{}, fmt.Errorf("publish %s: %w", EventOrderCreated, err)
	}
	_ = span.AddEvent(EventOrderPublished, tracectx.Attributes{
		"order.id":              order.ID,
		"messaging.destination": s.topic,
	})

	return result, nil
}

// save writes the order under its own child span.
func (s *Service) save(ctx context.Context, parent *tracectx.ActiveSpan, order Order, stage string) error {
	span := s.engine.StartChild(SpanSaveOrder, parent.Context(), tracectx.Attributes{
		"db.operation": "insert",
		"order.id":     order.ID,
		"order.stage":  stage,
	})
	defer span.End()

	if err := s.store.Save(tracectx.ContextWithSpan(ctx, span), order); err != nil {
		_ = span.RecordError(err)
		return err
	}
	return nil
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ErrSaveFailed):
		return http.StatusInternalServerError, "order_save_failed"
	case errors.Is(err, ErrPaymentRejected):
		return http.StatusBadGateway, "payment_rejected"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "request_cancelled"
	default:
		return http.StatusInternalServerError, "order_failed"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{"code": code, "message": msg},
	})
}
