// Package klimalogger parses indoor-climate readings published on
// `<prefix>/<location>/<measurement>` with a self-reported reading time.
package klimalogger

import (
	"fmt"
	"log"
	"time"

	json "github.com/goccy/go-json"

	"github.com/hauswerk/mqtt-gateway/internal/broker"
	"github.com/hauswerk/mqtt-gateway/internal/device"
	"github.com/hauswerk/mqtt-gateway/internal/event"
	"github.com/hauswerk/mqtt-gateway/internal/telemetry"
)

// maxTimeOffset bounds how far a reading's self-reported time may drift from
// the gateway clock, in either direction, before the reading is discarded.
const maxTimeOffset = time.Minute

type payload struct {
	Time   time.Time `json:"time"`
	Value  float64   `json:"value"`
	Sensor string    `json:"sensor"`
}

// Logger normalizes climate readings into single-value events.
type Logger struct {
	writers []device.EventWriter
	logger  *log.Logger
	metrics *telemetry.Pipeline
	now     func() time.Time
}

// New wires a climate handler to its downstream writers.
func New(writers []device.EventWriter, logger *log.Logger, metrics *telemetry.Pipeline) *Logger {
	return &Logger{writers: writers, logger: logger, metrics: metrics, now: time.Now}
}

// CheckMessage emits one event per reading. Readings whose self-reported
// time drifts more than maxTimeOffset from the gateway clock are dropped;
// trusting them would backdate or postdate series data on sensors with
// broken clocks.
func (l *Logger) CheckMessage(msg broker.Message) {
	segments := msg.Segments()
	if len(segments) < 3 {
		l.logger.Printf("klimalogger unexpected topic %s", msg.Topic)
		return
	}
	location, measurement := segments[1], segments[2]

	data, err := decode(msg.Payload)
	if err != nil {
		l.metrics.ParseFailure("sensor")
		l.logger.Printf("klimalogger parse error: %v on %q (topic: %s)", err, msg.PayloadString(), msg.Topic)
		return
	}

	offset := l.now().Sub(data.Time)
	if offset > maxTimeOffset || offset < -maxTimeOffset {
		l.logger.Printf("high time offset %v for %s/%s, dropping reading", offset, location, measurement)
		return
	}

	tags := map[string]string{
		"location": location,
		"sensor":   data.Sensor,
	}
	device.Emit(l.writers, event.NewValue(measurement, data.Time.Unix(), tags, event.Float(data.Value)))
	l.metrics.EventEmitted("sensor")
}

func decode(raw []byte) (payload, error) {
	var data payload
	if err := json.Unmarshal(raw, &data); err != nil {
		return payload{}, err
	}
	if data.Time.IsZero() {
		return payload{}, fmt.Errorf("missing field time")
	}
	return data, nil
}
