// Package mqtt connects the sequencer to show devices over MQTT: media
// controllers driven by command topics, a device directory fed by
// registration messages, and a bridge writing variables from a topic.
package mqtt

import (
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/AaronLay10/NarrativeEngine/internal/config"
)

// Transport is the subset of the client the media controller and bridges
// need. Tests substitute an in-memory broker.
type Transport interface {
	Publish(topic string, payload []byte) error
	Subscribe(topic string, handler paho.MessageHandler) error
	Unsubscribe(topic string) error
	IsConnected() bool
}

// Client wraps the Paho MQTT client.
type Client struct {
	client  paho.Client
	url     string
	timeout time.Duration
	mu      sync.Mutex

	hookMu    sync.Mutex
	onConnect []func()
}

// NewClient creates a new MQTT client but does not connect.
func NewClient(cfg config.MQTTConfig) *Client {
	opts := paho.NewClientOptions().
		AddBroker(cfg.URL).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetKeepAlive(30 * time.Second)

	c := &Client{url: cfg.URL}
	opts.SetOnConnectHandler(func(paho.Client) { c.connected() })

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c.timeout = timeout
	c.client = paho.NewClient(opts)
	return c
}

// OnConnect registers fn to run after every successful (re)connect.
func (c *Client) OnConnect(fn func()) {
	c.hookMu.Lock()
	c.onConnect = append(c.onConnect, fn)
	c.hookMu.Unlock()
}

func (c *Client) connected() {
	c.hookMu.Lock()
	hooks := append([]func(){}, c.onConnect...)
	c.hookMu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

// Connect attempts to connect to the broker.
// Returns an error if connection fails, but does not block indefinitely.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	token := c.client.Connect()
	if !token.WaitTimeout(c.timeout) {
		return &TimeoutError{Op: "connect", Topic: c.url}
	}
	return token.Error()
}

// Subscribe subscribes to a topic with the given handler.
func (c *Client) Subscribe(topic string, handler paho.MessageHandler) error {
	return c.wait("subscribe", topic, c.client.Subscribe(topic, 1, handler))
}

// Unsubscribe drops a subscription.
func (c *Client) Unsubscribe(topic string) error {
	return c.wait("unsubscribe", topic, c.client.Unsubscribe(topic))
}

// Publish sends payload with QoS 1.
func (c *Client) Publish(topic string, payload []byte) error {
	return c.wait("publish", topic, c.client.Publish(topic, 1, false, payload))
}

func (c *Client) wait(op, topic string, token paho.Token) error {
	if !token.WaitTimeout(c.timeout) {
		return &TimeoutError{Op: op, Topic: topic}
	}
	return token.Error()
}

// Disconnect cleanly disconnects from the broker.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.client.Disconnect(1000)
}

// IsConnected returns true if the client is connected.
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

// TimeoutError indicates a broker round trip timed out.
type TimeoutError struct {
	Op    string
	Topic string
}

func (e *TimeoutError) Error() string {
	return "mqtt " + e.Op + " timeout: " + e.Topic
}

// Start connects, logging errors but not crashing. Returns true if connected.
func (c *Client) Start() bool {
	if err := c.Connect(); err != nil {
		log.Printf("mqtt: failed to connect to %s: %v", c.url, err)
		return false
	}
	log.Printf("mqtt: connected to %s", c.url)
	return true
}
