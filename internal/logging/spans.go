package logging

import (
	"sort"

	"github.com/zoobzio/tracectx"
	"go.uber.org/zap"
)

// SpanLogger returns a span handler that writes one log line per finished
// span. Failed spans are logged at error level.
func SpanLogger(logger *zap.Logger, service string) tracectx.SpanHandler {
	return func(span tracectx.Span) {
		fields := make([]zap.Field, 0, 8+len(span.Attributes))
		fields = append(fields,
			zap.String("service", service),
			zap.String("trace_id", span.Context.TraceID),
			zap.String("span_id", span.Context.SpanID),
			zap.String("operation", span.Name),
			zap.Duration("duration", span.Duration),
			zap.Bool("remote", span.Context.Remote),
			zap.Int("events", len(span.Events)),
		)
		if span.Context.ParentSpanID != "" {
			fields = append(fields, zap.String("parent_id", span.Context.ParentSpanID))
		}

		keys := make([]string, 0, len(span.Attributes))
		for k := range span.Attributes {
			if k == tracectx.AttrDuration {
				continue
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fields = append(fields, zap.Any("attr."+k, span.Attributes[k]))
		}

		if span.Status == tracectx.StatusError {
			fields = append(fields, zap.String("error", span.StatusMessage))
			logger.Error("span completed with error", fields...)
			return
		}
		logger.Info("span completed", fields...)
	}
}
