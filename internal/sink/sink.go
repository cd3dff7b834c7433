// Package sink delivers canonical events to their storage targets. Each
// target runs one background writer behind a bounded queue; a full queue
// blocks the producer so the dispatch loop slows down instead of shedding
// events.
package sink

import (
	"context"
	"log"
	"os"

	"github.com/hauswerk/mqtt-gateway/config"
	"github.com/hauswerk/mqtt-gateway/errs"
	"github.com/hauswerk/mqtt-gateway/internal/event"
	"github.com/hauswerk/mqtt-gateway/internal/telemetry"
)

// queueCapacity bounds each writer's inbound queue.
const queueCapacity = 100

// Writer is the handle to one background sink writer.
type Writer struct {
	name string
	in   chan event.Event
	done chan struct{}
}

func newWriter(name string) *Writer {
	return &Writer{
		name: name,
		in:   make(chan event.Event, queueCapacity),
		done: make(chan struct{}),
	}
}

// Name identifies the writer's target kind in logs.
func (w *Writer) Name() string { return w.name }

// Enqueue queues one event, blocking while the queue is full.
func (w *Writer) Enqueue(evt event.Event) {
	w.in <- evt
}

// Close signals end of input. Pending events are still written.
func (w *Writer) Close() {
	close(w.in)
}

// Wait blocks until the writer has drained its queue and exited.
func (w *Writer) Wait() {
	<-w.done
}

// fatalf terminates the process on an abort-policy write failure. Swapped
// out in tests.
type fatalf func(format string, args ...any)

func processFatal(logger *log.Logger) fatalf {
	return func(format string, args ...any) {
		logger.Printf(format, args...)
		os.Exit(1)
	}
}

// Spawn starts the background writer for a validated target. Targets that
// need a backing service are probed here so an unreachable sink fails
// startup instead of surfacing mid-stream.
func Spawn(ctx context.Context, target config.Target, logger *log.Logger, metrics *telemetry.Pipeline) (*Writer, error) {
	switch target.Type {
	case config.TargetInfluxDB:
		return spawnInflux(ctx, target, logger, metrics)
	case config.TargetPostgres:
		return spawnPostgres(ctx, target, logger, metrics)
	case config.TargetDebug:
		return spawnDebug(logger), nil
	default:
		return nil, errs.New("sink", errs.CodeConfig,
			errs.WithMessage("unknown target type "+string(target.Type)))
	}
}
