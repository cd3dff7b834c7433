// Package openmqttgateway parses OpenMQTTGateway BLE broadcasts
// (`<prefix>/<gateway>/BTtoMQTT/<device>`) into "btle" events stamped with
// the wall-clock receipt time.
package openmqttgateway

import (
	"bytes"
	"log"
	"time"

	json "github.com/goccy/go-json"

	"github.com/hauswerk/mqtt-gateway/internal/broker"
	"github.com/hauswerk/mqtt-gateway/internal/device"
	"github.com/hauswerk/mqtt-gateway/internal/event"
	"github.com/hauswerk/mqtt-gateway/internal/telemetry"
)

const channelBLE = "BTtoMQTT"

// Logger normalizes BLE broadcast payloads: numeric entries become fields,
// string entries become tags, everything else is logged and skipped.
type Logger struct {
	writers []device.EventWriter
	logger  *log.Logger
	metrics *telemetry.Pipeline
	now     func() time.Time
}

// New wires a BLE handler to its downstream writers.
func New(writers []device.EventWriter, logger *log.Logger, metrics *telemetry.Pipeline) *Logger {
	return &Logger{writers: writers, logger: logger, metrics: metrics, now: time.Now}
}

// CheckMessage parses one broadcast and emits at most one event.
func (l *Logger) CheckMessage(msg broker.Message) {
	segments := msg.Segments()
	if len(segments) < 4 || segments[2] != channelBLE {
		return
	}
	gatewayID, deviceID := segments[1], segments[3]

	entries, err := decodeObject(msg.Payload)
	if err != nil {
		l.metrics.ParseFailure("openmqttgateway")
		l.logger.Printf("openmqttgateway parse error: %v on %q (topic: %s)", err, msg.PayloadString(), msg.Topic)
		return
	}
	delete(entries, "id")

	fields := make(map[string]event.Number)
	tags := map[string]string{
		"device":  deviceID,
		"gateway": gatewayID,
	}
	for key, value := range entries {
		switch v := value.(type) {
		case json.Number:
			fields[key] = toNumber(v)
		case string:
			tags[key] = v
		default:
			l.logger.Printf("unhandled entry %s: %v (topic: %s)", key, value, msg.Topic)
		}
	}

	if len(fields) == 0 {
		l.logger.Printf("no usable fields in %q (topic: %s)", msg.PayloadString(), msg.Topic)
		return
	}
	classify(fields, tags)

	device.Emit(l.writers, event.New("btle", l.now().Unix(), tags, fields))
	l.metrics.EventEmitted("openmqttgateway")
}

// classify fills the type tag for broadcasts that carry none: a bare
// presence beacon (only rssi, no identifying tags) is NONE, anything else
// without a self-declared type is UNKN.
func classify(fields map[string]event.Number, tags map[string]string) {
	if _, ok := tags["type"]; ok {
		return
	}
	_, hasRSSI := fields["rssi"]
	if hasRSSI && len(fields) == 1 && len(tags) == 2 {
		tags["type"] = "NONE"
		return
	}
	tags["type"] = "UNKN"
}

// decodeObject parses the payload with UseNumber so integer readings stay
// integers through to the sinks.
func decodeObject(payload []byte) (map[string]any, error) {
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.UseNumber()
	var entries map[string]any
	if err := decoder.Decode(&entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func toNumber(v json.Number) event.Number {
	if i, err := v.Int64(); err == nil {
		return event.Int(i)
	}
	f, _ := v.Float64()
	return event.Float(f)
}
