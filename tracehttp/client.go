package tracehttp

import (
	"context"
	"net/http"
	"net/url"

	"github.com/go-resty/resty/v2"
	"github.com/zoobzio/tracectx"
)

type clientSpanKeyType struct{}

var clientSpanKey clientSpanKeyType

// Instrument registers hooks on client that trace every request made with
// a context holding a span (see tracectx.ContextWithSpan). Each attempt gets
// a child span of that span, and its traceparent is sent with the request.
// Requests without a span in their context are left alone.
func Instrument(client *resty.Client, engine *tracectx.Engine) *resty.Client {
	client.OnBeforeRequest(func(c *resty.Client, r *resty.Request) error {
		ctx := r.Context()

		// A span left open here belongs to a failed attempt that is being retried.
		if prev := clientSpanFrom(ctx); prev != nil {
			_ = prev.SetAttribute("http.retried", true)
			_ = prev.SetStatus(tracectx.StatusError, "retried")
			prev.End()
		}

		parent, ok := tracectx.TraceContextFromContext(ctx)
		if !ok {
			return nil
		}

		span := engine.StartChild(r.Method+" "+r.URL, parent, tracectx.Attributes{
			AttrHTTPMethod: r.Method,
			AttrHTTPURL:    r.URL,
			AttrHTTPHost:   requestHost(c, r),
			"span.kind":    "client",
		})
		tracectx.InjectIntoResponse(span.Context(), func(k, v string) {
			r.SetHeader(k, v)
		})
		r.SetContext(context.WithValue(ctx, clientSpanKey, span))
		return nil
	})

	client.OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
		span := clientSpanFrom(resp.Request.Context())
		if span == nil {
			return nil
		}
		_ = span.SetAttribute(AttrHTTPStatusCode, resp.StatusCode())
		if resp.StatusCode() >= http.StatusInternalServerError {
			_ = span.SetStatus(tracectx.StatusError, resp.Status())
		}
		span.End()
		return nil
	})

	client.OnError(func(r *resty.Request, err error) {
		span := clientSpanFrom(r.Context())
		if span == nil {
			return
		}
		// No-op when OnAfterResponse already ended the span.
		_ = span.RecordError(err)
		span.End()
	})

	return client
}

func clientSpanFrom(ctx context.Context) *tracectx.ActiveSpan {
	span, _ := ctx.Value(clientSpanKey).(*tracectx.ActiveSpan)
	return span
}

// requestHost is the host the request goes to, resolving relative URLs
// against the client's base URL.
func requestHost(c *resty.Client, r *resty.Request) string {
	if u, err := url.Parse(r.URL); err == nil && u.Host != "" {
		return u.Host
	}
	if u, err := url.Parse(c.BaseURL); err == nil && u.Host != "" {
		return u.Host
	}
	return "unknown"
}
