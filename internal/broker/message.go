// Package broker owns the MQTT session: connecting, subscribing, the inbound
// message stream, and the reconnect loop that keeps it alive.
package broker

import "strings"

// Message is one inbound broker message. A nil *Message on the stream is the
// disconnect signal; a closed stream is the terminal end-of-stream.
type Message struct {
	Topic   string
	Payload []byte
}

// PayloadString returns the payload as text for logging and text protocols.
func (m Message) PayloadString() string {
	return string(m.Payload)
}

// Segments splits the topic on "/".
func (m Message) Segments() []string {
	return strings.Split(m.Topic, "/")
}
