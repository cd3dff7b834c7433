package sink

import (
	"log"

	"github.com/hauswerk/mqtt-gateway/config"
)

// spawnDebug starts a writer that prints each event. It needs no backing
// service, so it is also the writer used in tests of queue semantics.
func spawnDebug(logger *log.Logger) *Writer {
	w := newWriter(string(config.TargetDebug))
	go func() {
		defer close(w.done)
		for evt := range w.in {
			logger.Printf("event: %s", evt)
		}
	}()
	return w
}
