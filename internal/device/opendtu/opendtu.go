// Package opendtu parses OpenDTU inverter telemetry. Topics follow
// `<prefix>/<serial>/<element>/<field>` with one numeric value per message;
// the inverter's own report time arrives separately on
// `<serial>/status/last_update` and is correlated across messages.
package opendtu

import (
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/hauswerk/mqtt-gateway/internal/broker"
	"github.com/hauswerk/mqtt-gateway/internal/device"
	"github.com/hauswerk/mqtt-gateway/internal/event"
	"github.com/hauswerk/mqtt-gateway/internal/telemetry"
)

// reading is one correlated measurement extracted from a topic/payload pair.
type reading struct {
	timestamp int64
	device    string
	component string
	str       string
	field     string
	value     float64
}

// Logger normalizes OpenDTU messages. It is stateful: the remembered
// last_update timestamp stamps every subsequent reading until replaced.
type Logger struct {
	writers []device.EventWriter
	logger  *log.Logger
	metrics *telemetry.Pipeline

	lastUpdate *int64
}

// New wires an OpenDTU handler to its downstream writers.
func New(writers []device.EventWriter, logger *log.Logger, metrics *telemetry.Pipeline) *Logger {
	return &Logger{writers: writers, logger: logger, metrics: metrics}
}

// CheckMessage updates correlation state or emits one event per reading.
func (l *Logger) CheckMessage(msg broker.Message) {
	data, err := l.parse(msg)
	if err != nil {
		l.metrics.ParseFailure("opendtu")
		l.logger.Printf("opendtu parse error: %v on %q (topic: %s)", err, msg.PayloadString(), msg.Topic)
		return
	}
	if data == nil {
		return
	}

	ts := time.Unix(data.timestamp, 0).UTC()
	tags := map[string]string{
		"device":     data.device,
		"component":  data.component,
		"month":      strconv.Itoa(int(ts.Month())),
		"year":       strconv.Itoa(ts.Year()),
		"year_month": fmt.Sprintf("%04d-%02d", ts.Year(), int(ts.Month())),
	}
	if data.str != "" {
		tags["string"] = data.str
	}

	device.Emit(l.writers, event.NewValue(data.field, data.timestamp, tags, event.Float(data.value)))
	l.metrics.EventEmitted("opendtu")
}

// parse classifies the topic. It returns nil with no error for messages that
// carry no reading: state updates, reserved elements, topics without a field
// level, empty payloads, and readings that arrive before any last_update.
func (l *Logger) parse(msg broker.Message) (*reading, error) {
	segments := msg.Segments()
	if len(segments) < 4 {
		return nil, nil
	}
	section, element, field := segments[1], segments[2], segments[3]

	switch element {
	case "0":
		if l.lastUpdate == nil {
			return nil, nil
		}
		value, err := strconv.ParseFloat(msg.PayloadString(), 64)
		if err != nil {
			return nil, err
		}
		return &reading{
			timestamp: *l.lastUpdate,
			device:    section,
			component: "inverter",
			field:     field,
			value:     value,
		}, nil
	case "device":
		// device-global data carries no readings
		return nil, nil
	case "status":
		if field == "last_update" {
			ts, err := strconv.ParseInt(msg.PayloadString(), 10, 64)
			if err != nil {
				return nil, err
			}
			l.lastUpdate = &ts
		}
		return nil, nil
	default:
		if len(msg.Payload) == 0 || l.lastUpdate == nil {
			return nil, nil
		}
		value, err := strconv.ParseFloat(msg.PayloadString(), 64)
		if err != nil {
			return nil, err
		}
		return &reading{
			timestamp: *l.lastUpdate,
			device:    section,
			component: "string",
			str:       element,
			field:     field,
			value:     value,
		}, nil
	}
}
