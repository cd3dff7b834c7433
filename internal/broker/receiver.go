package broker

import (
	"log"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/hauswerk/mqtt-gateway/errs"
)

// defaultRetryInterval is the pause between reconnect attempts.
const defaultRetryInterval = time.Second

// Dispatcher is the routing capability the Receiver drives. It is satisfied
// by *router.Router.
type Dispatcher interface {
	// Subscribe registers the routing table's topic filters on the client.
	Subscribe(client Client) error
	// Dispatch hands one message to its handler.
	Dispatch(msg Message)
	// Shutdown closes downstream writers and waits for them to drain.
	Shutdown()
}

// Receiver is the connection manager: it owns the connect -> subscribe ->
// consume loop and the reconnect policy.
type Receiver struct {
	client        Client
	dispatcher    Dispatcher
	logger        *log.Logger
	retryInterval time.Duration
}

// ReceiverOption configures a Receiver.
type ReceiverOption func(*Receiver)

// WithRetryInterval overrides the reconnect pause. Used by tests; production
// keeps the one-second default.
func WithRetryInterval(d time.Duration) ReceiverOption {
	return func(r *Receiver) {
		if d > 0 {
			r.retryInterval = d
		}
	}
}

// NewReceiver wires the connection manager.
func NewReceiver(client Client, dispatcher Dispatcher, logger *log.Logger, opts ...ReceiverOption) *Receiver {
	r := &Receiver{
		client:        client,
		dispatcher:    dispatcher,
		logger:        logger,
		retryInterval: defaultRetryInterval,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Listen connects, subscribes the routing table, and consumes the message
// stream until it is closed. Initial connect or subscribe failures are
// returned; mid-stream disconnects trigger the reconnect loop. On terminal
// stream close the dispatcher is shut down and Listen returns nil.
func (r *Receiver) Listen() error {
	stream, err := r.client.Open()
	if err != nil {
		return errs.New("receiver", errs.CodeStartup, errs.WithCause(err))
	}
	if err := r.dispatcher.Subscribe(r.client); err != nil {
		return errs.New("receiver", errs.CodeStartup, errs.WithCause(err))
	}
	r.logger.Printf("connected, consuming")

	for msg := range stream {
		if msg == nil {
			r.recoverConnection()
			continue
		}
		r.dispatcher.Dispatch(*msg)
	}

	r.logger.Printf("stream closed, shutting down")
	r.dispatcher.Shutdown()
	return nil
}

// recoverConnection retries the connect until it succeeds. The session is
// persistent, so subscriptions survive and no re-subscribe is issued.
func (r *Receiver) recoverConnection() {
	policy := backoff.NewConstantBackOff(r.retryInterval)
	for attempt := 1; ; attempt++ {
		err := r.client.Reconnect()
		if err == nil {
			r.logger.Printf("reconnected after %d attempt(s)", attempt)
			return
		}
		r.logger.Printf("reconnect attempt %d failed: %v", attempt, err)
		time.Sleep(policy.NextBackOff())
	}
}
