package messaging

import (
	"context"

	"github.com/zoobzio/tracectx"
)

// Observer is told the outcome of every publish call.
type Observer func(topic string, err error)

type tracedPublisher struct {
	engine  *tracectx.Engine
	next    Publisher
	observe Observer
}

// Traced wraps next so that each publish made under a span gets its own
// child span. Calls without a span in ctx are passed through untraced.
func Traced(engine *tracectx.Engine, next Publisher, observe Observer) Publisher {
	return &tracedPublisher{engine: engine, next: next, observe: observe}
}

func (p *tracedPublisher) Publish(ctx context.Context, topic, payload string) error {
	parent, ok := tracectx.TraceContextFromContext(ctx)
	if !ok {
		err := p.next.Publish(ctx, topic, payload)
		p.report(topic, err)
		return err
	}

	span := p.engine.StartChild("publish "+topic, parent, tracectx.Attributes{
		"messaging.destination":  topic,
		"messaging.payload_size": len(payload),
	})
	defer span.End()

	err := p.next.Publish(tracectx.ContextWithSpan(ctx, span), topic, payload)
	if err != nil {
		_ = span.RecordError(err)
	} else {
		_ = span.SetStatus(tracectx.StatusOK, "")
	}
	p.report(topic, err)
	return err
}

func (p *tracedPublisher) report(topic string, err error) {
	if p.observe != nil {
		p.observe(topic, err)
	}
}
