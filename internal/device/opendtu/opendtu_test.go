package opendtu

import (
	"io"
	"log"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hauswerk/mqtt-gateway/internal/broker"
	"github.com/hauswerk/mqtt-gateway/internal/device"
	"github.com/hauswerk/mqtt-gateway/internal/event"
)

type captureWriter struct {
	events []event.Event
}

func (w *captureWriter) Enqueue(evt event.Event) { w.events = append(w.events, evt) }

func newHandler() (*Logger, *captureWriter) {
	writer := &captureWriter{}
	return New([]device.EventWriter{writer}, log.New(io.Discard, "", 0), nil), writer
}

func msg(topic, payload string) broker.Message {
	return broker.Message{Topic: topic, Payload: []byte(payload)}
}

func TestLastUpdateEmitsNothing(t *testing.T) {
	handler, writer := newHandler()

	handler.CheckMessage(msg("solar/114190641177/status/last_update", "1701271852"))

	require.Empty(t, writer.events)
}

func TestInverterReadingUsesRememberedTimestamp(t *testing.T) {
	handler, writer := newHandler()

	handler.CheckMessage(msg("solar/114190641177/status/last_update", "1701271852"))
	handler.CheckMessage(msg("solar/114190641177/0/powerdc", "0.6"))

	require.Len(t, writer.events, 1)
	evt := writer.events[0]
	require.Equal(t, "powerdc", evt.Measurement)
	require.Equal(t, int64(1701271852), evt.Timestamp)
	require.Equal(t, "114190641177", evt.Tags["device"])
	require.Equal(t, "inverter", evt.Tags["component"])
	require.NotContains(t, evt.Tags, "string")
	require.Equal(t, event.Float(0.6), evt.Fields["value"])
}

func TestStringReadingCarriesStringTag(t *testing.T) {
	handler, writer := newHandler()

	handler.CheckMessage(msg("solar/114190641177/status/last_update", "1701271852"))
	handler.CheckMessage(msg("solar/114190641177/1/voltage", "14.1"))

	require.Len(t, writer.events, 1)
	evt := writer.events[0]
	require.Equal(t, "voltage", evt.Measurement)
	require.Equal(t, int64(1701271852), evt.Timestamp)
	require.Equal(t, "string", evt.Tags["component"])
	require.Equal(t, "1", evt.Tags["string"])
	require.Equal(t, event.Float(14.1), evt.Fields["value"])
}

func TestCalendarTagsDerivedFromTimestamp(t *testing.T) {
	handler, writer := newHandler()

	// 1701271852 = 2023-11-29T15:30:52Z
	handler.CheckMessage(msg("solar/114190641177/status/last_update", "1701271852"))
	handler.CheckMessage(msg("solar/114190641177/0/powerdc", "0.6"))

	require.Len(t, writer.events, 1)
	evt := writer.events[0]
	require.Equal(t, "11", evt.Tags["month"])
	require.Equal(t, "2023", evt.Tags["year"])
	require.Equal(t, "2023-11", evt.Tags["year_month"])
}

func TestReadingBeforeAnyTimestampIsSkipped(t *testing.T) {
	handler, writer := newHandler()

	handler.CheckMessage(msg("solar/114190641177/0/powerdc", "0.6"))
	handler.CheckMessage(msg("solar/114190641177/1/voltage", "14.1"))

	require.Empty(t, writer.events)
}

func TestReservedElementsNeverEmit(t *testing.T) {
	handler, writer := newHandler()

	handler.CheckMessage(msg("solar/114190641177/status/last_update", "1701271852"))
	handler.CheckMessage(msg("solar/114190641177/device/bootloaderversion", "257"))
	handler.CheckMessage(msg("solar/114190641177/status/reachable", "1"))

	require.Empty(t, writer.events)
}

func TestEmptyAndShortTopicsAreSkipped(t *testing.T) {
	handler, writer := newHandler()

	handler.CheckMessage(msg("solar/114190641177/status/last_update", "1701271852"))
	handler.CheckMessage(msg("solar/114190641177/1/voltage", ""))
	handler.CheckMessage(msg("solar/dtu", "online"))

	require.Empty(t, writer.events)
}

func TestNonNumericPayloadIsParseError(t *testing.T) {
	handler, writer := newHandler()

	handler.CheckMessage(msg("solar/114190641177/status/last_update", "1701271852"))
	handler.CheckMessage(msg("solar/114190641177/0/powerdc", "garbage"))
	handler.CheckMessage(msg("solar/114190641177/0/powerdc", "0.6"))

	require.Len(t, writer.events, 1)
	require.Equal(t, event.Float(0.6), writer.events[0].Fields["value"])
}
