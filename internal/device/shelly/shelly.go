// Package shelly parses Shelly Gen2 component status messages
// (`<prefix>/<location>/status/switch:<n>` and `.../cover:<n>`) into one
// event per populated field.
package shelly

import (
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/hauswerk/mqtt-gateway/internal/broker"
	"github.com/hauswerk/mqtt-gateway/internal/device"
	"github.com/hauswerk/mqtt-gateway/internal/event"
	"github.com/hauswerk/mqtt-gateway/internal/telemetry"
)

var (
	switchTopic = regexp.MustCompile(`/status/switch:.`)
	coverTopic  = regexp.MustCompile(`/status/cover:.`)
)

// status is implemented by the per-component payload shapes.
type status interface {
	timestamp() *int64
	typeName() string
	validate() error
}

type energyData struct {
	Total    float64 `json:"total"`
	MinuteTS *int64  `json:"minute_ts"`
}

type temperatureData struct {
	Celsius float64 `json:"tC"`
}

type switchStatus struct {
	Output      *bool            `json:"output"`
	Power       *float64         `json:"apower"`
	Voltage     *float64         `json:"voltage"`
	Current     *float64         `json:"current"`
	Energy      *energyData      `json:"aenergy"`
	Temperature *temperatureData `json:"temperature"`
}

func (s switchStatus) timestamp() *int64 {
	if s.Energy == nil {
		return nil
	}
	return s.Energy.MinuteTS
}

func (s switchStatus) typeName() string { return "switch" }

func (s switchStatus) validate() error {
	switch {
	case s.Output == nil:
		return fmt.Errorf("missing field output")
	case s.Energy == nil:
		return fmt.Errorf("missing field aenergy")
	case s.Temperature == nil:
		return fmt.Errorf("missing field temperature")
	}
	return nil
}

type coverStatus struct {
	Position    *int64           `json:"current_pos"`
	Power       *float64         `json:"apower"`
	Voltage     *float64         `json:"voltage"`
	Current     *float64         `json:"current"`
	Energy      *energyData      `json:"aenergy"`
	Temperature *temperatureData `json:"temperature"`
}

func (c coverStatus) timestamp() *int64 {
	if c.Energy == nil {
		return nil
	}
	return c.Energy.MinuteTS
}

func (c coverStatus) typeName() string { return "cover" }

func (c coverStatus) validate() error {
	switch {
	case c.Energy == nil:
		return fmt.Errorf("missing field aenergy")
	case c.Temperature == nil:
		return fmt.Errorf("missing field temperature")
	}
	return nil
}

// fieldMapping projects one measurement out of a decoded status. A false
// second return means the field was absent and no event is emitted for it.
type fieldMapping[T status] struct {
	measurement string
	value       func(T) (event.Number, bool)
	unit        string
}

func optionalFloat(v *float64) (event.Number, bool) {
	if v == nil {
		return event.Number{}, false
	}
	return event.Float(*v), true
}

var switchFields = []fieldMapping[switchStatus]{
	{"output", func(s switchStatus) (event.Number, bool) {
		var v int64
		if *s.Output {
			v = 1
		}
		return event.Int(v), true
	}, "bool"},
	{"power", func(s switchStatus) (event.Number, bool) { return optionalFloat(s.Power) }, "W"},
	{"current", func(s switchStatus) (event.Number, bool) { return optionalFloat(s.Current) }, "A"},
	{"voltage", func(s switchStatus) (event.Number, bool) { return optionalFloat(s.Voltage) }, "V"},
	{"total_energy", func(s switchStatus) (event.Number, bool) { return event.Float(s.Energy.Total), true }, "Wh"},
	{"temperature", func(s switchStatus) (event.Number, bool) { return event.Float(s.Temperature.Celsius), true }, "°C"},
}

var coverFields = []fieldMapping[coverStatus]{
	{"position", func(c coverStatus) (event.Number, bool) {
		if c.Position == nil {
			return event.Number{}, false
		}
		return event.Int(*c.Position), true
	}, "%"},
	{"power", func(c coverStatus) (event.Number, bool) { return optionalFloat(c.Power) }, "W"},
	{"current", func(c coverStatus) (event.Number, bool) { return optionalFloat(c.Current) }, "A"},
	{"voltage", func(c coverStatus) (event.Number, bool) { return optionalFloat(c.Voltage) }, "V"},
	{"total_energy", func(c coverStatus) (event.Number, bool) { return event.Float(c.Energy.Total), true }, "Wh"},
	{"temperature", func(c coverStatus) (event.Number, bool) { return event.Float(c.Temperature.Celsius), true }, "°C"},
}

// Logger normalizes Shelly status messages into per-field events.
type Logger struct {
	writers []device.EventWriter
	logger  *log.Logger
	metrics *telemetry.Pipeline
}

// New wires a Shelly handler to its downstream writers.
func New(writers []device.EventWriter, logger *log.Logger, metrics *telemetry.Pipeline) *Logger {
	return &Logger{writers: writers, logger: logger, metrics: metrics}
}

// CheckMessage routes component status topics to their field tables. Topics
// matching neither component are ignored; Shelly devices publish many
// subtopics the gateway does not record.
func (l *Logger) CheckMessage(msg broker.Message) {
	switch {
	case switchTopic.MatchString(msg.Topic):
		handleStatus(l, msg, switchFields)
	case coverTopic.MatchString(msg.Topic):
		handleStatus(l, msg, coverFields)
	}
}

func handleStatus[T status](l *Logger, msg broker.Message, fields []fieldMapping[T]) {
	segments := msg.Segments()
	if len(segments) < 2 {
		return
	}
	location := segments[1]
	channel := msg.Topic[strings.LastIndex(msg.Topic, ":")+1:]

	data, err := device.Decode[T](msg.Payload)
	if err == nil {
		err = data.validate()
	}
	if err != nil {
		l.metrics.ParseFailure("shelly")
		l.logger.Printf("shelly parse error: %v on %q (topic: %s)", err, msg.PayloadString(), msg.Topic)
		return
	}

	ts := data.timestamp()
	if ts == nil {
		l.logger.Printf("%s no timestamp %q", msg.Topic, msg.PayloadString())
		return
	}

	for _, field := range fields {
		value, ok := field.value(data)
		if !ok {
			continue
		}
		tags := map[string]string{
			"location": location,
			"channel":  channel,
			"sensor":   "shelly",
			"type":     data.typeName(),
			"unit":     field.unit,
		}
		device.Emit(l.writers, event.NewValue(field.measurement, *ts, tags, value))
		l.metrics.EventEmitted("shelly")
	}
}
