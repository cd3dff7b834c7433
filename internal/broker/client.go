package broker

import (
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/hauswerk/mqtt-gateway/errs"
)

const (
	keepAlive      = 30 * time.Second
	connectTimeout = 10 * time.Second
	// streamBuffer decouples the paho message router from the consume loop
	// without hiding sustained backpressure from the broker.
	streamBuffer = 25
	// disconnectQuiesce is how long Disconnect waits for in-flight handlers.
	disconnectQuiesce = 250 * time.Millisecond
)

// Client is the broker session capability consumed by the Receiver and the
// Router. Implementations must deliver messages in network-arrival order.
type Client interface {
	// Open connects and returns the message stream. A nil item signals a
	// disconnect; the Receiver then drives Reconnect. The stream is closed
	// only on terminal shutdown.
	Open() (<-chan *Message, error)
	// SubscribeMultiple issues one multi-topic subscribe call.
	SubscribeMultiple(filters map[string]byte) error
	// Reconnect re-establishes a lost session. The persistent session keeps
	// subscription state server-side, so no re-subscribe follows.
	Reconnect() error
	// IsConnected reports the current session state.
	IsConnected() bool
	// Disconnect ends the session and closes the message stream.
	Disconnect()
}

// PahoClient implements Client on top of the Eclipse Paho MQTT client with a
// persistent (non-clean) session.
type PahoClient struct {
	cli      mqtt.Client
	messages chan *Message
	done     chan struct{}
	logger   *log.Logger
}

// NewPahoClient builds the MQTT client. An empty clientID gets a generated
// one; configured IDs are used verbatim so the broker-side session (and its
// subscriptions) survives restarts.
func NewPahoClient(brokerURL, clientID string, logger *log.Logger) *PahoClient {
	if clientID == "" {
		clientID = "mqtt-gateway-" + uuid.NewString()
	}

	client := &PahoClient{
		messages: make(chan *Message, streamBuffer),
		done:     make(chan struct{}),
		logger:   logger,
	}

	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetCleanSession(false).
		SetKeepAlive(keepAlive).
		SetConnectTimeout(connectTimeout).
		SetAutoReconnect(false).
		SetDefaultPublishHandler(client.onMessage).
		SetConnectionLostHandler(client.onConnectionLost)

	client.cli = mqtt.NewClient(opts)
	return client
}

func (c *PahoClient) onMessage(_ mqtt.Client, msg mqtt.Message) {
	c.enqueue(&Message{Topic: msg.Topic(), Payload: msg.Payload()})
}

func (c *PahoClient) onConnectionLost(_ mqtt.Client, err error) {
	c.logger.Printf("connection lost: %v", err)
	c.enqueue(nil)
}

// enqueue puts one stream item onto the message channel unless shutdown has
// begun. Paho invokes the callbacks on its own goroutines, and a callback can
// sit blocked on a full stream while the consume loop is held up by writer
// backpressure. The done guard releases such a sender during Disconnect so
// the channel is never closed under it.
func (c *PahoClient) enqueue(m *Message) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.messages <- m:
	case <-c.done:
	}
}

// Open connects to the broker and returns the message stream.
func (c *PahoClient) Open() (<-chan *Message, error) {
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c.messages, nil
}

// SubscribeMultiple subscribes all filters in one request. Messages are
// delivered through the default publish handler onto the stream.
func (c *PahoClient) SubscribeMultiple(filters map[string]byte) error {
	token := c.cli.SubscribeMultiple(filters, nil)
	token.Wait()
	if err := token.Error(); err != nil {
		return errs.New("broker", errs.CodeSubscribe, errs.WithCause(err))
	}
	return nil
}

// Reconnect re-establishes the session after a disconnect.
func (c *PahoClient) Reconnect() error {
	return c.connect()
}

// IsConnected reports whether the session is currently up.
func (c *PahoClient) IsConnected() bool {
	return c.cli.IsConnected()
}

// Disconnect ends the session and terminates the stream. Shutdown is
// signalled to the callback senders first, then the quiesce window lets
// in-flight handlers finish before the stream closes.
func (c *PahoClient) Disconnect() {
	close(c.done)
	c.cli.Disconnect(uint(disconnectQuiesce.Milliseconds()))
	close(c.messages)
}

func (c *PahoClient) connect() error {
	token := c.cli.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return errs.New("broker", errs.CodeNetwork, errs.WithCause(err))
	}
	return nil
}
