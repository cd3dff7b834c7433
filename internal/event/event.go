// Package event defines the canonical telemetry record produced by every
// device parser and consumed by every sink writer.
package event

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Number is a tagged integer/float union. Sinks care about the distinction:
// influx line protocol writes an int64 as "1i" and a float64 as "1".
type Number struct {
	intVal   int64
	floatVal float64
	isInt    bool
}

// Int wraps a signed 64-bit integer value.
func Int(v int64) Number {
	return Number{intVal: v, isInt: true}
}

// Float wraps a 64-bit float value.
func Float(v float64) Number {
	return Number{floatVal: v}
}

// IsInt reports whether the number carries the integer variant.
func (n Number) IsInt() bool { return n.isInt }

// Int64 returns the integer variant; zero for floats.
func (n Number) Int64() int64 { return n.intVal }

// Float64 returns the value as a float regardless of variant.
func (n Number) Float64() float64 {
	if n.isInt {
		return float64(n.intVal)
	}
	return n.floatVal
}

// Value returns the dynamically typed value (int64 or float64) for sink
// client libraries that type-switch on field values.
func (n Number) Value() any {
	if n.isInt {
		return n.intVal
	}
	return n.floatVal
}

func (n Number) String() string {
	if n.isInt {
		return fmt.Sprintf("%di", n.intVal)
	}
	return fmt.Sprintf("%g", n.floatVal)
}

// Event is the normalized representation shared by all parsers and writers.
// Events are immutable once created; fan-out to multiple writers shares the
// same maps and no component may mutate them after Emit.
type Event struct {
	Measurement string
	Timestamp   int64
	Tags        map[string]string
	Fields      map[string]Number
}

// New constructs an event. Parsers must never construct an event with an
// empty fields map; such an event is meaningless and may not be forwarded.
func New(measurement string, timestamp int64, tags map[string]string, fields map[string]Number) Event {
	return Event{
		Measurement: measurement,
		Timestamp:   timestamp,
		Tags:        tags,
		Fields:      fields,
	}
}

// NewValue constructs an event with the single conventional "value" field.
func NewValue(measurement string, timestamp int64, tags map[string]string, value Number) Event {
	return New(measurement, timestamp, tags, map[string]Number{"value": value})
}

// Time returns the event timestamp as wall-clock time.
func (e Event) Time() time.Time {
	return time.Unix(e.Timestamp, 0).UTC()
}

func (e Event) String() string {
	tags := make([]string, 0, len(e.Tags))
	for k, v := range e.Tags {
		tags = append(tags, k+"="+v)
	}
	sort.Strings(tags)
	fields := make([]string, 0, len(e.Fields))
	for k, v := range e.Fields {
		fields = append(fields, k+"="+v.String())
	}
	sort.Strings(fields)
	return fmt.Sprintf("%s,%s %s %d", e.Measurement, strings.Join(tags, ","), strings.Join(fields, ","), e.Timestamp)
}
