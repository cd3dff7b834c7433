// Package router owns the routing table from topic prefixes to protocol
// handlers and the lifecycle of the sink writers behind them.
package router

import (
	"context"
	"log"
	"strings"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/hauswerk/mqtt-gateway/config"
	"github.com/hauswerk/mqtt-gateway/errs"
	"github.com/hauswerk/mqtt-gateway/internal/broker"
	"github.com/hauswerk/mqtt-gateway/internal/device"
	"github.com/hauswerk/mqtt-gateway/internal/device/debugsink"
	"github.com/hauswerk/mqtt-gateway/internal/device/klimalogger"
	"github.com/hauswerk/mqtt-gateway/internal/device/opendtu"
	"github.com/hauswerk/mqtt-gateway/internal/device/openmqttgateway"
	"github.com/hauswerk/mqtt-gateway/internal/device/shelly"
	"github.com/hauswerk/mqtt-gateway/internal/sink"
	"github.com/hauswerk/mqtt-gateway/internal/telemetry"
)

// subscribeQoS requests at-least-once delivery for every filter.
const subscribeQoS byte = 1

type route struct {
	prefix  string
	handler device.Handler
	checked atomic.Uint64
}

// Router dispatches broker messages to the handler registered for their
// first topic segment.
type Router struct {
	routes  map[string]*route
	order   []string
	writers []*sink.Writer
	logger  *log.Logger
	metrics *telemetry.Pipeline

	unroutable atomic.Uint64
	// warnLimit keeps a chatty unrelated topic tree from flooding the log;
	// the unroutable counter still sees every message.
	warnLimit *rate.Limiter
}

// Build wires one handler and its sink writers per configured source.
func Build(ctx context.Context, sources []config.Source, logger *log.Logger, metrics *telemetry.Pipeline) (*Router, error) {
	r := &Router{
		routes:    make(map[string]*route, len(sources)),
		logger:    logger,
		metrics:   metrics,
		warnLimit: rate.NewLimiter(rate.Limit(1), 5),
	}

	for _, source := range sources {
		handler, err := r.buildSource(ctx, source)
		if err != nil {
			r.Shutdown()
			return nil, err
		}
		r.routes[source.Prefix] = &route{prefix: source.Prefix, handler: handler}
		r.order = append(r.order, source.Prefix)
		logger.Printf("source %s: %s/# -> %s", source.Name, source.Prefix, source.Type)
	}
	return r, nil
}

func (r *Router) buildSource(ctx context.Context, source config.Source) (device.Handler, error) {
	if source.Type == config.SourceDebug {
		if len(source.Targets) > 0 {
			r.logger.Printf("source %s: debug sources ignore configured targets", source.Name)
		}
		return debugsink.New(r.logger), nil
	}

	writers := make([]device.EventWriter, 0, len(source.Targets))
	for _, target := range source.Targets {
		w, err := sink.Spawn(ctx, target, r.logger, r.metrics)
		if err != nil {
			return nil, err
		}
		r.writers = append(r.writers, w)
		writers = append(writers, w)
	}

	switch source.Type {
	case config.SourceShelly:
		return shelly.New(writers, r.logger, r.metrics), nil
	case config.SourceSensor:
		return klimalogger.New(writers, r.logger, r.metrics), nil
	case config.SourceOpenDTU:
		return opendtu.New(writers, r.logger, r.metrics), nil
	case config.SourceOpenMqttGateway:
		return openmqttgateway.New(writers, r.logger, r.metrics), nil
	default:
		return nil, errs.New("router", errs.CodeConfig,
			errs.WithMessage("unknown source type "+string(source.Type)))
	}
}

// Topics lists the subscription filters in configuration order.
func (r *Router) Topics() []string {
	topics := make([]string, 0, len(r.order))
	for _, prefix := range r.order {
		topics = append(topics, prefix+"/#")
	}
	return topics
}

// Subscribe registers all topic filters on the client in one request.
func (r *Router) Subscribe(client broker.Client) error {
	filters := make(map[string]byte, len(r.order))
	for _, topic := range r.Topics() {
		filters[topic] = subscribeQoS
	}
	if err := client.SubscribeMultiple(filters); err != nil {
		return err
	}
	r.logger.Printf("subscribed to %s", strings.Join(r.Topics(), ", "))
	return nil
}

// Dispatch routes one message by its first topic segment. A handler panic is
// contained here: the message is lost, the consume loop is not.
func (r *Router) Dispatch(msg broker.Message) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Printf("handler panic on %s: %v", msg.Topic, rec)
		}
	}()

	prefix, _, _ := strings.Cut(msg.Topic, "/")
	rt, ok := r.routes[prefix]
	if !ok {
		r.unroutable.Add(1)
		r.metrics.MessageUnrouted()
		if r.warnLimit.Allow() {
			r.logger.Printf("no handler for topic %s", msg.Topic)
		}
		return
	}

	rt.checked.Add(1)
	r.metrics.MessageReceived(prefix)
	rt.handler.CheckMessage(msg)
}

// Checked returns how many messages the prefix's handler has received.
func (r *Router) Checked(prefix string) uint64 {
	rt, ok := r.routes[prefix]
	if !ok {
		return 0
	}
	return rt.checked.Load()
}

// Unroutable returns how many messages matched no route.
func (r *Router) Unroutable() uint64 {
	return r.unroutable.Load()
}

// Shutdown closes every writer and waits until all queues have drained.
func (r *Router) Shutdown() {
	for _, w := range r.writers {
		w.Close()
	}
	for _, w := range r.writers {
		w.Wait()
	}
	r.logger.Printf("all writers drained")
}
