// Package errs provides structured error types and helpers for the gateway.
package errs

import (
	"strconv"
	"strings"
)

// Code identifies a gateway error category.
type Code string

const (
	// CodeNetwork indicates a broker or transport failure.
	CodeNetwork Code = "network"
	// CodeSubscribe indicates a broker subscription failure.
	CodeSubscribe Code = "subscribe_failed"
	// CodeParse indicates a malformed payload for a matched protocol.
	CodeParse Code = "parse_error"
	// CodeUnroutable indicates a message with no registered topic handler.
	CodeUnroutable Code = "unroutable"
	// CodeStale indicates a reading rejected by the staleness guard.
	CodeStale Code = "stale_reading"
	// CodeSink indicates a sink write failure.
	CodeSink Code = "sink_error"
	// CodeConfig indicates invalid configuration provided by the operator.
	CodeConfig Code = "invalid_config"
	// CodeStartup indicates an unrecoverable failure before the consume loop began.
	CodeStartup Code = "startup"
)

// E captures structured error information produced across the gateway.
type E struct {
	Scope   string
	Code    Code
	Topic   string
	Payload string
	Message string

	cause error
}

// Option configures an error envelope.
type Option func(*E)

// New constructs an error envelope for the component scope and error code.
func New(scope string, code Code, opts ...Option) *E {
	e := &E{
		Scope:   strings.TrimSpace(scope),
		Code:    code,
		Topic:   "",
		Payload: "",
		Message: "",
		cause:   nil,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// WithMessage attaches a human-readable message to the error.
func WithMessage(message string) Option {
	trimmed := strings.TrimSpace(message)
	return func(e *E) {
		e.Message = trimmed
	}
}

// WithTopic records the broker topic the failing message arrived on.
func WithTopic(topic string) Option {
	return func(e *E) {
		e.Topic = topic
	}
}

// WithPayload captures the raw payload for operator diagnosis.
func WithPayload(payload string) Option {
	return func(e *E) {
		e.Payload = payload
	}
}

// WithCause sets the underlying cause error.
func WithCause(err error) Option {
	return func(e *E) {
		e.cause = err
	}
}

func (e *E) Error() string {
	if e == nil {
		return "<nil>"
	}
	var parts []string

	scope := strings.TrimSpace(e.Scope)
	if scope == "" {
		scope = "unknown"
	}
	parts = append(parts, "scope="+scope)

	code := strings.TrimSpace(string(e.Code))
	if code == "" {
		code = "unknown"
	}
	parts = append(parts, "code="+code)

	if e.Message != "" {
		parts = append(parts, "message="+strconv.Quote(e.Message))
	}
	if e.Topic != "" {
		parts = append(parts, "topic="+strconv.Quote(e.Topic))
	}
	if e.Payload != "" {
		parts = append(parts, "payload="+strconv.Quote(e.Payload))
	}
	if e.cause != nil {
		parts = append(parts, "cause="+strconv.Quote(e.cause.Error()))
	}

	return strings.Join(parts, " ")
}

func (e *E) Unwrap() error { return e.cause }

// Is reports whether target carries the same scope and code.
func (e *E) Is(target error) bool {
	other, ok := target.(*E)
	if !ok {
		return false
	}
	return e.Scope == other.Scope && e.Code == other.Code
}
