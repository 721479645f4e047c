// Package mqtt connects the dispatch processes to the message bus through an
// MQTT broker. Feed lines travel as raw payloads on <prefix>/feed/<topic>;
// state sync snapshots as JSON on <prefix>/state.
package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/kilianp07/taxidispatch/core/logger"
	"github.com/kilianp07/taxidispatch/core/monitoring"
)

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// Handler receives the payload of one bus message.
type Handler func(topic string, payload []byte)

// Client is a paho connection shared by the feed and state sync components.
// Subscriptions are replayed on every reconnect.
type Client struct {
	cli pahoClient
	cfg Config
	log logger.Logger

	mu   sync.Mutex
	subs map[string]Handler
}

// NewClient connects to the broker described by cfg.
func NewClient(cfg Config, log logger.Logger) (*Client, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "taxidispatch-" + uuid.NewString()[:8]
	}
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	c := &Client{cfg: cfg, log: log, subs: make(map[string]Handler)}
	opts.OnConnect = func(pc paho.Client) {
		log.Infof("MQTT connected to %s as %s", cfg.Broker, cfg.ClientID)
		c.resubscribe(pc)
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	cli := newMQTTClient(opts)
	token := cli.Connect()
	if !token.WaitTimeout(cfg.connectTimeout()) {
		return nil, fmt.Errorf("mqtt: connect to %s timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect to %s: %w", cfg.Broker, err)
	}
	c.cli = cli
	return c, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	opts.SetConnectTimeout(cfg.connectTimeout())
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	return opts, nil
}

// Config returns the effective configuration.
func (c *Client) Config() Config { return c.cfg }

// ID returns the MQTT client id.
func (c *Client) ID() string { return c.cfg.ClientID }

// Publish sends payload on topic, retrying with exponential backoff.
func (c *Client) Publish(topic string, payload []byte) error {
	var err error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		token := c.cli.Publish(topic, c.cfg.QoS, false, payload)
		token.Wait()
		if err = token.Error(); err == nil {
			return nil
		}
		c.log.Warnf("publish on %s attempt %d failed: %v", topic, attempt+1, err)
		if attempt < c.cfg.MaxRetries {
			time.Sleep(c.cfg.backoff() * time.Duration(1<<attempt))
		}
	}
	monitoring.CaptureException(err, map[string]string{"module": "mqtt", "topic": topic})
	return fmt.Errorf("mqtt: publish on %s: %w", topic, err)
}

// Subscribe registers h for topic and subscribes immediately.
func (c *Client) Subscribe(topic string, h Handler) error {
	c.mu.Lock()
	c.subs[topic] = h
	c.mu.Unlock()
	token := c.cli.Subscribe(topic, c.cfg.QoS, c.route(h))
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: subscribe %s: %w", topic, err)
	}
	c.log.Infof("subscribed to %s", topic)
	return nil
}

func (c *Client) route(h Handler) paho.MessageHandler {
	return func(_ paho.Client, m paho.Message) {
		h(m.Topic(), m.Payload())
	}
}

func (c *Client) resubscribe(pc paho.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for topic, h := range c.subs {
		if token := pc.Subscribe(topic, c.cfg.QoS, c.route(h)); token.Wait() && token.Error() != nil {
			c.log.Errorf("resubscribe %s: %v", topic, token.Error())
		}
	}
}

// Disconnect gracefully closes the MQTT connection.
func (c *Client) Disconnect() {
	if c.cli != nil && c.cli.IsConnected() {
		c.cli.Disconnect(250)
	}
}
