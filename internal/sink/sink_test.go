package sink

import (
	"bytes"
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hauswerk/mqtt-gateway/config"
	"github.com/hauswerk/mqtt-gateway/internal/event"
)

func testLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func testEvent(measurement string, value float64) event.Event {
	return event.NewValue(measurement, 1701292592,
		map[string]string{"location": "cellar", "sensor": "BME680"},
		event.Float(value))
}

func TestDebugWriterDrainsAndJoins(t *testing.T) {
	var buf bytes.Buffer
	w := spawnDebug(log.New(&buf, "", 0))

	w.Enqueue(testEvent("temperature", 19.45))
	w.Enqueue(testEvent("humidity", 54))
	w.Close()
	w.Wait()

	require.Contains(t, buf.String(), "temperature")
	require.Contains(t, buf.String(), "humidity")
}

func TestEnqueueBlocksWhenQueueIsFull(t *testing.T) {
	w := newWriter("test")
	for i := 0; i < queueCapacity; i++ {
		w.Enqueue(testEvent("temperature", float64(i)))
	}

	unblocked := make(chan struct{})
	go func() {
		w.Enqueue(testEvent("temperature", -1))
		close(unblocked)
	}()

	select {
	case <-unblocked:
		t.Fatal("enqueue into a full queue must block")
	case <-time.After(50 * time.Millisecond):
	}

	// consuming one slot releases the producer
	<-w.in
	select {
	case <-unblocked:
	case <-time.After(time.Second):
		t.Fatal("enqueue did not unblock after space was freed")
	}
}

func TestSpawnRejectsUnknownTarget(t *testing.T) {
	_, err := Spawn(context.Background(), config.Target{Type: "csv"}, testLogger(), nil)
	require.Error(t, err)
}
