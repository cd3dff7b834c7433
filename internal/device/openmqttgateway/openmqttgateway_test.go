package openmqttgateway

import (
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hauswerk/mqtt-gateway/internal/broker"
	"github.com/hauswerk/mqtt-gateway/internal/device"
	"github.com/hauswerk/mqtt-gateway/internal/event"
)

type captureWriter struct {
	events []event.Event
}

func (w *captureWriter) Enqueue(evt event.Event) { w.events = append(w.events, evt) }

func newHandler(now time.Time) (*Logger, *captureWriter) {
	writer := &captureWriter{}
	handler := New([]device.EventWriter{writer}, log.New(io.Discard, "", 0), nil)
	handler.now = func() time.Time { return now }
	return handler, writer
}

const showerPayload = `{"id":"28:31:46:C1:76:16","name":"DHS","rssi":-92,"brand":"Oras",` +
	`"model":"Hydractiva Digital","model_id":"ADHS","type":"ENRG","session":67,` +
	`"seconds":115,"litres":9.1,"tempc":12,"tempf":53.6,"energy":0.03}`

func TestBroadcastSplitsFieldsAndTags(t *testing.T) {
	now := time.Unix(1711446000, 0)
	handler, writer := newHandler(now)

	handler.CheckMessage(broker.Message{
		Topic:   "blegateway/D12331654712/BTtoMQTT/283146C17616",
		Payload: []byte(showerPayload),
	})

	require.Len(t, writer.events, 1)
	evt := writer.events[0]
	require.Equal(t, "btle", evt.Measurement)
	require.Equal(t, now.Unix(), evt.Timestamp)

	require.Equal(t, event.Int(-92), evt.Fields["rssi"])
	require.Equal(t, event.Int(115), evt.Fields["seconds"])
	require.Equal(t, event.Float(9.1), evt.Fields["litres"])
	require.Equal(t, event.Int(12), evt.Fields["tempc"])
	require.Equal(t, event.Float(0.03), evt.Fields["energy"])

	require.Equal(t, "283146C17616", evt.Tags["device"])
	require.Equal(t, "D12331654712", evt.Tags["gateway"])
	require.Equal(t, "DHS", evt.Tags["name"])
	require.Equal(t, "ENRG", evt.Tags["type"])
	require.NotContains(t, evt.Tags, "id")
	require.NotContains(t, evt.Fields, "id")
}

func TestPresenceBeaconClassifiedNone(t *testing.T) {
	handler, writer := newHandler(time.Unix(1711446000, 0))

	handler.CheckMessage(broker.Message{
		Topic:   "blegateway/D12331654712/BTtoMQTT/283146C17616",
		Payload: []byte(`{"id":"28:31:46:C1:76:16","rssi":-70}`),
	})

	require.Len(t, writer.events, 1)
	require.Equal(t, "NONE", writer.events[0].Tags["type"])
}

func TestUntypedReadingClassifiedUnknown(t *testing.T) {
	handler, writer := newHandler(time.Unix(1711446000, 0))

	handler.CheckMessage(broker.Message{
		Topic:   "blegateway/D12331654712/BTtoMQTT/283146C17616",
		Payload: []byte(`{"id":"28:31:46:C1:76:16","rssi":-70,"tempc":21.5}`),
	})

	require.Len(t, writer.events, 1)
	require.Equal(t, "UNKN", writer.events[0].Tags["type"])
}

func TestSelfDeclaredTypeIsKept(t *testing.T) {
	handler, writer := newHandler(time.Unix(1711446000, 0))

	handler.CheckMessage(broker.Message{
		Topic:   "blegateway/D12331654712/BTtoMQTT/283146C17616",
		Payload: []byte(`{"rssi":-70,"type":"ENRG"}`),
	})

	require.Len(t, writer.events, 1)
	require.Equal(t, "ENRG", writer.events[0].Tags["type"])
}

func TestFieldlessBroadcastIsDropped(t *testing.T) {
	handler, writer := newHandler(time.Unix(1711446000, 0))

	handler.CheckMessage(broker.Message{
		Topic:   "blegateway/D12331654712/BTtoMQTT/283146C17616",
		Payload: []byte(`{"id":"28:31:46:C1:76:16","name":"DHS"}`),
	})

	require.Empty(t, writer.events)
}

func TestOtherChannelsAreIgnored(t *testing.T) {
	handler, writer := newHandler(time.Unix(1711446000, 0))

	handler.CheckMessage(broker.Message{
		Topic:   "blegateway/D12331654712/SYStoMQTT/status",
		Payload: []byte(`{"rssi":-70}`),
	})
	handler.CheckMessage(broker.Message{
		Topic:   "blegateway/D12331654712/LWT",
		Payload: []byte("online"),
	})

	require.Empty(t, writer.events)
}

func TestMalformedPayloadIsDropped(t *testing.T) {
	handler, writer := newHandler(time.Unix(1711446000, 0))

	handler.CheckMessage(broker.Message{
		Topic:   "blegateway/D12331654712/BTtoMQTT/283146C17616",
		Payload: []byte("not json"),
	})

	require.Empty(t, writer.events)
}
