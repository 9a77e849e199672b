// Package messaging publishes trace-carrying events.
//
// The broker client itself is a collaborator behind Publisher. Before a
// payload reaches it, the producing span's context is serialized into the
// payload so consumers can continue the trace.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/zoobzio/tracectx"
	"go.uber.org/zap"
)

// Publisher sends a payload to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic, payload string) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, topic, payload string) error

// Publish calls f.
func (f PublisherFunc) Publish(ctx context.Context, topic, payload string) error {
	return f(ctx, topic, payload)
}

// Envelope is the JSON message body. TraceContext holds the producer's
// traceparent header value.
type Envelope struct {
	Data         any    `json:"data"`
	Type         string `json:"type"`
	TraceID      string `json:"traceId,omitempty"`
	TraceContext string `json:"traceContext,omitempty"`
}

// NewEnvelope wraps data for publishing from the span identified by tc.
func NewEnvelope(eventType string, data any, tc tracectx.TraceContext) Envelope {
	return Envelope{
		Data:         data,
		Type:         eventType,
		TraceID:      tc.TraceID,
		TraceContext: tc.Traceparent(),
	}
}

// Encode renders the envelope as a payload string.
func (e Envelope) Encode() (string, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("encode %s envelope: %w", e.Type, err)
	}
	return string(b), nil
}

// Decode parses a payload produced by Encode.
func Decode(payload string) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return e, nil
}

// Carrier exposes the envelope's trace context for Engine.Extract on the
// consuming side.
func (e Envelope) Carrier() tracectx.MapCarrier {
	c := tracectx.MapCarrier{}
	if e.TraceContext != "" {
		c[tracectx.HeaderTraceparent] = e.TraceContext
	}
	return c
}

// Message is one published payload.
type Message struct {
	Topic   string
	Payload string
}

// MemoryPublisher keeps published messages in memory.
// Safe for concurrent use by multiple goroutines.
type MemoryPublisher struct {
	mu       sync.Mutex
	messages []Message
	err      error
}

// NewMemoryPublisher creates an empty in-memory publisher.
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

// FailWith makes subsequent Publish calls return err. Nil restores success.
func (p *MemoryPublisher) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Publish records the message.
func (p *MemoryPublisher) Publish(_ context.Context, topic, payload string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, Message{Topic: topic, Payload: payload})
	return nil
}

// Messages returns a copy of everything published so far.
func (p *MemoryPublisher) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Message, len(p.messages))
	copy(out, p.messages)
	return out
}

// LogPublisher writes messages to a logger instead of a broker.
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher creates a publisher that logs every message.
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish logs the message at info level.
func (p *LogPublisher) Publish(_ context.Context, topic, payload string) error {
	p.logger.Info("message published",
		zap.String("topic", topic),
		zap.String("payload", payload),
	)
	return nil
}
