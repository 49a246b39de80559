// Package hassiomqtt publishes entities to Home Assistant using MQTT
// discovery.
package hassiomqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/hashicorp/go-hclog"
)

const (
	// DefaultDiscoveryPrefix is the Home Assistant default.
	DefaultDiscoveryPrefix = "homeassistant"

	publishTimeout = 5 * time.Second
)

type Settings struct {
	Broker          string
	Port            int
	ClientID        string
	User            string
	Password        string
	DiscoveryPrefix string
}

type Client struct {
	Client          mqtt.Client
	id              string
	DiscoveryPrefix string
	log             hclog.Logger

	lock     sync.Mutex
	entities map[string]*Entity
	commands map[string]mqtt.MessageHandler
	onBirth  func()
}

func NewClient(s Settings, log hclog.Logger) *Client {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", s.Broker, s.Port))
	opts.SetClientID(s.ClientID)
	opts.SetUsername(s.User)
	opts.SetPassword(s.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)

	c := newClient(s.ClientID, s.DiscoveryPrefix, log)

	// Subscriptions do not survive a clean-session reconnect.
	opts.SetOnConnectHandler(func(mqtt.Client) {
		c.HandleConnect()
	})

	c.Client = mqtt.NewClient(opts)
	return c
}

// NewClientFrom wraps an existing paho client. The caller must call
// HandleConnect once the client is connected.
func NewClientFrom(mc mqtt.Client, clientID, discoveryPrefix string, log hclog.Logger) *Client {
	c := newClient(clientID, discoveryPrefix, log)
	c.Client = mc
	return c
}

func newClient(clientID, discoveryPrefix string, log hclog.Logger) *Client {
	if discoveryPrefix == "" {
		discoveryPrefix = DefaultDiscoveryPrefix
	}
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Client{
		id:              clientID,
		DiscoveryPrefix: discoveryPrefix,
		log:             log,
		entities:        make(map[string]*Entity),
		commands:        make(map[string]mqtt.MessageHandler),
	}
}

// Start connects in the background, retrying until connected or ctx is done.
func (c *Client) Start(ctx context.Context) {
	go func() {
		for !c.Client.IsConnected() {
			tok := c.Client.Connect()
			ok := tok.WaitTimeout(time.Second)
			if !ok {
				c.log.Warn("timeout connecting to MQTT broker, retrying")
				continue
			}
			err := tok.Error()
			if err == nil {
				return
			}
			c.log.Error("error connecting to MQTT broker", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
		}
	}()
}

// Stop disconnects, allowing in-flight publishes a short time to finish.
func (c *Client) Stop() {
	if c.Client.IsConnected() {
		c.Client.Disconnect(250)
	}
}

// OnBirth registers fn to run whenever Home Assistant announces it is
// online, after discovery has been re-published.
func (c *Client) OnBirth(fn func()) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.onBirth = fn
}

// HandleConnect subscribes to the Home Assistant status topic and every
// registered command topic, then re-publishes discovery for all entities.
func (c *Client) HandleConnect() {
	c.log.Info("connected to MQTT broker")

	c.subscribe(c.DiscoveryPrefix+"/status", func(cl mqtt.Client, m mqtt.Message) {
		status := string(m.Payload())
		c.log.Info("hass status changed", "status", status)
		if status != "online" {
			return
		}

		c.refreshEntities()

		c.lock.Lock()
		onBirth := c.onBirth
		c.lock.Unlock()
		if onBirth != nil {
			onBirth()
		}
	})

	// Discovery sent while the broker was unreachable is lost.
	c.refreshEntities()

	c.lock.Lock()
	commands := make(map[string]mqtt.MessageHandler, len(c.commands))
	for topic, h := range c.commands {
		commands[topic] = h
	}
	c.lock.Unlock()

	for topic, h := range commands {
		c.subscribe(topic, h)
	}
}

// refreshEntities re-publishes the discovery config of every entity.
func (c *Client) refreshEntities() {
	c.lock.Lock()
	entities := make([]*Entity, 0, len(c.entities))
	for _, e := range c.entities {
		entities = append(entities, e)
	}
	c.lock.Unlock()

	for _, e := range entities {
		c.log.Debug("refreshing", "entity", e.id)
		if err := e.Refresh(); err != nil {
			c.log.Error("refresh failed", "entity", e.id, "error", err)
		}
	}
}

func (c *Client) subscribe(topic string, h mqtt.MessageHandler) {
	tok := c.Client.Subscribe(topic, 0, h)
	if !tok.WaitTimeout(publishTimeout) {
		c.log.Error("timeout subscribing", "topic", topic)
		return
	}
	if err := tok.Error(); err != nil {
		c.log.Error("subscribe failed", "topic", topic, "error", err)
	}
}

func (c *Client) addCommand(topic string, h mqtt.MessageHandler) {
	c.lock.Lock()
	c.commands[topic] = h
	c.lock.Unlock()

	if c.Client.IsConnected() {
		c.subscribe(topic, h)
	}
}

func (c *Client) addEntity(e *Entity) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.entities[e.id] = e
}

func (c *Client) publish(topic string, qos byte, retained bool, payload interface{}) error {
	tok := c.Client.Publish(topic, qos, retained, payload)
	if !tok.WaitTimeout(publishTimeout) {
		return fmt.Errorf("timeout publishing to %s", topic)
	}
	return tok.Error()
}
