package errs

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorFormattingIncludesTopicAndCause(t *testing.T) {
	err := New(
		"device/shelly",
		CodeParse,
		WithMessage("missing field aenergy"),
		WithTopic("shellies/loo-fan/status/switch:1"),
		WithPayload(`{"id":0}`),
		WithCause(errors.New("unexpected end of JSON input")),
	)

	out := err.Error()
	if !strings.Contains(out, "scope=device/shelly") {
		t.Fatalf("expected scope marker in error string: %s", out)
	}
	if !strings.Contains(out, "code=parse_error") {
		t.Fatalf("expected code in error string: %s", out)
	}
	if !strings.Contains(out, "topic=\"shellies/loo-fan/status/switch:1\"") {
		t.Fatalf("expected topic in error string: %s", out)
	}
	if !strings.Contains(out, "cause=\"unexpected end of JSON input\"") {
		t.Fatalf("expected wrapped cause in error string: %s", out)
	}
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := New("broker", CodeNetwork, WithCause(cause))

	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to reach the cause")
	}
}

func TestIsMatchesScopeAndCode(t *testing.T) {
	err := fmt.Errorf("wrap: %w", New("sink/influxdb", CodeSink, WithMessage("write failed")))

	if !errors.Is(err, New("sink/influxdb", CodeSink)) {
		t.Fatalf("expected scope/code match")
	}
	if errors.Is(err, New("sink/postgresql", CodeSink)) {
		t.Fatalf("did not expect cross-scope match")
	}
}

func TestNilErrorString(t *testing.T) {
	var e *E
	if e.Error() != "<nil>" {
		t.Fatalf("expected <nil> for nil receiver, got %q", e.Error())
	}
}
