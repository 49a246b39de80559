// Package mqtttest provides an in-memory paho client for tests.
package mqtttest

import (
	"errors"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Published is one message passed to Publish.
type Published struct {
	Topic    string
	QoS      byte
	Retained bool
	Payload  []byte
}

// ErrNotConnected is returned by Publish while the client is disconnected.
var ErrNotConnected = errors.New("mqtttest: not connected")

// Client records publishes and subscriptions. Publishing fails until
// Connect is called. Deliver routes a message to the handler subscribed to
// its exact topic.
type Client struct {
	mu          sync.Mutex
	connected   bool
	published   []Published
	subscribers map[string]mqtt.MessageHandler
}

var _ mqtt.Client = (*Client)(nil)

func NewClient() *Client {
	return &Client{subscribers: map[string]mqtt.MessageHandler{}}
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Client) IsConnectionOpen() bool {
	return c.IsConnected()
}

func (c *Client) Connect() mqtt.Token {
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	return doneToken{}
}

func (c *Client) Disconnect(quiesce uint) {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
}

func (c *Client) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	var data []byte
	switch p := payload.(type) {
	case string:
		data = []byte(p)
	case []byte:
		data = append([]byte(nil), p...)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return doneToken{err: ErrNotConnected}
	}
	c.published = append(c.published, Published{Topic: topic, QoS: qos, Retained: retained, Payload: data})
	return doneToken{}
}

func (c *Client) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	c.subscribers[topic] = callback
	c.mu.Unlock()
	return doneToken{}
}

func (c *Client) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	for topic, qos := range filters {
		c.Subscribe(topic, qos, callback)
	}
	return doneToken{}
}

func (c *Client) Unsubscribe(topics ...string) mqtt.Token {
	c.mu.Lock()
	for _, t := range topics {
		delete(c.subscribers, t)
	}
	c.mu.Unlock()
	return doneToken{}
}

func (c *Client) AddRoute(topic string, callback mqtt.MessageHandler) {
	c.Subscribe(topic, 0, callback)
}

func (c *Client) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}

// Published returns a copy of everything published so far.
func (c *Client) Published() []Published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Published(nil), c.published...)
}

// Last returns the most recent message published to topic.
func (c *Client) Last(topic string) (Published, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.published) - 1; i >= 0; i-- {
		if c.published[i].Topic == topic {
			return c.published[i], true
		}
	}
	return Published{}, false
}

// Subscribed reports whether a handler is registered for topic.
func (c *Client) Subscribed(topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subscribers[topic]
	return ok
}

// Deliver calls the handler subscribed to topic and reports whether there
// was one.
func (c *Client) Deliver(topic string, payload []byte) bool {
	c.mu.Lock()
	h, ok := c.subscribers[topic]
	c.mu.Unlock()
	if !ok {
		return false
	}
	h(c, message{topic: topic, payload: payload})
	return true
}

type doneToken struct {
	err error
}

func (doneToken) Wait() bool                     { return true }
func (doneToken) WaitTimeout(time.Duration) bool { return true }
func (doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t doneToken) Error() error { return t.err }

type message struct {
	topic   string
	payload []byte
}

func (m message) Duplicate() bool   { return false }
func (m message) Qos() byte         { return 0 }
func (m message) Retained() bool    { return false }
func (m message) Topic() string     { return m.topic }
func (m message) MessageID() uint16 { return 0 }
func (m message) Payload() []byte   { return m.payload }
func (m message) Ack()              {}
