// Package device defines the capability shared by all protocol parsers and
// the helpers they use to hand canonical events downstream.
package device

import (
	json "github.com/goccy/go-json"

	"github.com/hauswerk/mqtt-gateway/internal/broker"
	"github.com/hauswerk/mqtt-gateway/internal/event"
)

// Handler receives every broker message whose topic prefix routed to it.
// Implementations decode, normalize, and forward events; they must swallow
// malformed payloads (log and drop) rather than fail the dispatch loop.
type Handler interface {
	CheckMessage(msg broker.Message)
}

// EventWriter is the downstream capability handlers emit to. Satisfied by
// *sink.Writer. Enqueue blocks when the writer's queue is full; that
// backpressure deliberately stalls dispatch.
type EventWriter interface {
	Enqueue(evt event.Event)
}

// Emit fans one event out to every writer in order.
func Emit(writers []EventWriter, evt event.Event) {
	for _, w := range writers {
		w.Enqueue(evt)
	}
}

// Decode unmarshals a JSON payload into T.
func Decode[T any](payload []byte) (T, error) {
	var out T
	err := json.Unmarshal(payload, &out)
	return out, err
}
