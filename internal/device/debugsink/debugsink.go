// Package debugsink logs and counts every routed message without producing
// events. Useful for watching an unfamiliar topic tree before writing a
// parser for it.
package debugsink

import (
	"log"
	"sync/atomic"

	"github.com/hauswerk/mqtt-gateway/internal/broker"
)

// Logger counts and prints routed messages.
type Logger struct {
	logger  *log.Logger
	checked atomic.Uint64
}

// New returns a message-counting handler.
func New(logger *log.Logger) *Logger {
	return &Logger{logger: logger}
}

// CheckMessage logs the message and increments the counter.
func (l *Logger) CheckMessage(msg broker.Message) {
	count := l.checked.Add(1)
	l.logger.Printf("#%d %s: %q", count, msg.Topic, msg.PayloadString())
}

// Checked returns how many messages this handler has seen.
func (l *Logger) Checked() uint64 {
	return l.checked.Load()
}
