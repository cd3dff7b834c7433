package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	apimetric "go.opentelemetry.io/otel/metric"
)

// Pipeline groups the gateway's pipeline instruments. A nil *Pipeline is a
// valid no-op receiver so components never need nil checks at call sites.
type Pipeline struct {
	messagesReceived apimetric.Int64Counter
	messagesUnrouted apimetric.Int64Counter
	parseFailures    apimetric.Int64Counter
	eventsEmitted    apimetric.Int64Counter
	sinkWrites       apimetric.Int64Counter
	sinkErrors       apimetric.Int64Counter
	batchSize        apimetric.Int64Histogram
}

// NewPipeline registers the pipeline instruments on the provider.
func NewPipeline(provider apimetric.MeterProvider) (*Pipeline, error) {
	meter := provider.Meter("mqtt-gateway/pipeline")

	p := &Pipeline{}
	var err error
	if p.messagesReceived, err = meter.Int64Counter("gateway.messages.received"); err != nil {
		return nil, fmt.Errorf("create received counter: %w", err)
	}
	if p.messagesUnrouted, err = meter.Int64Counter("gateway.messages.unrouted"); err != nil {
		return nil, fmt.Errorf("create unrouted counter: %w", err)
	}
	if p.parseFailures, err = meter.Int64Counter("gateway.parse.failures"); err != nil {
		return nil, fmt.Errorf("create parse failure counter: %w", err)
	}
	if p.eventsEmitted, err = meter.Int64Counter("gateway.events.emitted"); err != nil {
		return nil, fmt.Errorf("create emitted counter: %w", err)
	}
	if p.sinkWrites, err = meter.Int64Counter("gateway.sink.writes"); err != nil {
		return nil, fmt.Errorf("create sink write counter: %w", err)
	}
	if p.sinkErrors, err = meter.Int64Counter("gateway.sink.errors"); err != nil {
		return nil, fmt.Errorf("create sink error counter: %w", err)
	}
	if p.batchSize, err = meter.Int64Histogram("gateway.sink.batch_size"); err != nil {
		return nil, fmt.Errorf("create batch size histogram: %w", err)
	}
	return p, nil
}

// MessageReceived records one dispatched broker message for the prefix.
func (p *Pipeline) MessageReceived(prefix string) {
	if p == nil {
		return
	}
	p.messagesReceived.Add(context.Background(), 1,
		apimetric.WithAttributes(attribute.String("prefix", prefix)))
}

// MessageUnrouted records a message with no registered handler.
func (p *Pipeline) MessageUnrouted() {
	if p == nil {
		return
	}
	p.messagesUnrouted.Add(context.Background(), 1)
}

// ParseFailure records a malformed payload for a source type.
func (p *Pipeline) ParseFailure(sourceType string) {
	if p == nil {
		return
	}
	p.parseFailures.Add(context.Background(), 1,
		apimetric.WithAttributes(attribute.String("source", sourceType)))
}

// EventEmitted records one canonical event produced by a source type.
func (p *Pipeline) EventEmitted(sourceType string) {
	if p == nil {
		return
	}
	p.eventsEmitted.Add(context.Background(), 1,
		apimetric.WithAttributes(attribute.String("source", sourceType)))
}

// SinkWrite records a completed sink write for the target kind.
func (p *Pipeline) SinkWrite(target string) {
	if p == nil {
		return
	}
	p.sinkWrites.Add(context.Background(), 1,
		apimetric.WithAttributes(attribute.String("target", target)))
}

// SinkError records a failed sink write for the target kind.
func (p *Pipeline) SinkError(target string) {
	if p == nil {
		return
	}
	p.sinkErrors.Add(context.Background(), 1,
		apimetric.WithAttributes(attribute.String("target", target)))
}

// BatchFlushed records the size of a flushed sink batch.
func (p *Pipeline) BatchFlushed(target string, size int) {
	if p == nil {
		return
	}
	p.batchSize.Record(context.Background(), int64(size),
		apimetric.WithAttributes(attribute.String("target", target)))
}
