package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/zoobzio/tracectx"
	"github.com/zoobzio/tracectx/tracehttp"
)

// ErrPaymentRejected is returned when the payment service answers with an
// error status.
var ErrPaymentRejected = errors.New("payment rejected")

// PaymentRequest is the body sent to the payment service.
type PaymentRequest struct {
	OrderID string `json:"orderId"`
	Amount  int    `json:"amount"`
}

// PaymentResult is the payment service's answer.
type PaymentResult struct {
	OrderID       string `json:"orderId"`
	PaymentStatus string `json:"paymentStatus"`
}

// Payer charges orders.
type Payer interface {
	Charge(ctx context.Context, requestID string, req PaymentRequest) (PaymentResult, error)
}

// PaymentClient calls the payment service over HTTP. Calls made with a
// traced context carry a traceparent for a child span of the caller.
type PaymentClient struct {
	client          *resty.Client
	url             string
	requestIDHeader string
}

// NewPaymentClient creates a client posting to url.
func NewPaymentClient(engine *tracectx.Engine, url string, timeout time.Duration, retries int) *PaymentClient {
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(retries).
		SetHeader("Content-Type", "application/json")
	return &PaymentClient{
		client:          tracehttp.Instrument(client, engine),
		url:             url,
		requestIDHeader: engine.RequestIDHeader(),
	}
}

// Charge posts req, forwarding requestID when set.
func (c *PaymentClient) Charge(ctx context.Context, requestID string, req PaymentRequest) (PaymentResult, error) {
	var result PaymentResult

	r := c.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&result)
	if requestID != "" {
		r.SetHeader(c.requestIDHeader, requestID)
	}

	resp, err := r.Post(c.url)
	if err != nil {
		return PaymentResult{}, fmt.Errorf("call payment service: %w", err)
	}
	if resp.IsError() {
		return PaymentResult{}, fmt.Errorf("payment service returned %s: %w", resp.Status(), ErrPaymentRejected)
	}
	return result, nil
}
