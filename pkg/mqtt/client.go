// Package mqtt publishes decided update events to the host's sync broker.
package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"golang.org/x/time/rate"

	"github.com/fieldtrack/fieldtrack/pkg/engine"
	"github.com/fieldtrack/fieldtrack/pkg/logx"
)

// Config holds MQTT configuration
type Config struct {
	Broker      string `json:"broker"`
	Port        int    `json:"port"`
	ClientID    string `json:"client_id"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	TopicPrefix string `json:"topic_prefix"`
	QoS         int    `json:"qos"`
	Retain      bool   `json:"retain"`
	Enabled     bool   `json:"enabled"`

	// IdleUpdatesPerMinute bounds idle-only publish chatter. Real updates
	// are never rate limited.
	IdleUpdatesPerMinute int `json:"idle_updates_per_minute"`
}

// DefaultConfig returns default MQTT configuration
func DefaultConfig() *Config {
	return &Config{
		Broker:               "localhost",
		Port:                 1883,
		ClientID:             "fieldtrackd",
		TopicPrefix:          "fieldtrack",
		QoS:                  1,
		Retain:               false,
		Enabled:              false,
		IdleUpdatesPerMinute: 12,
	}
}

// Client publishes fieldtrackd update events over MQTT.
type Client struct {
	client      MQTT.Client
	logger      *logx.Logger
	config      *Config
	idleLimiter *rate.Limiter
	connected   bool
	lastPublish time.Time
}

// NewClient creates a new MQTT publisher
func NewClient(config *Config, logger *logx.Logger) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	perMinute := config.IdleUpdatesPerMinute
	if perMinute <= 0 {
		perMinute = DefaultConfig().IdleUpdatesPerMinute
	}
	return &Client{
		logger:      logger,
		config:      config,
		idleLimiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
	}
}

// Connect establishes connection to the MQTT broker
func (c *Client) Connect() error {
	if !c.config.Enabled {
		c.logger.Debug("MQTT client disabled")
		return nil
	}

	opts := MQTT.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", c.config.Broker, c.config.Port))
	opts.SetClientID(c.config.ClientID)

	if c.config.Username != "" {
		opts.SetUsername(c.config.Username)
		opts.SetPassword(c.config.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(1 * time.Minute)

	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)

	c.client = MQTT.NewClient(opts)

	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	c.logger.Info("MQTT client connected",
		"broker", c.config.Broker,
		"port", c.config.Port,
	)
	return nil
}

// Disconnect disconnects from the MQTT broker
func (c *Client) Disconnect() error {
	if c.client != nil && c.connected {
		c.client.Disconnect(250)
		c.connected = false
		c.logger.Info("MQTT client disconnected")
	}
	return nil
}

func (c *Client) onConnect(client MQTT.Client) {
	c.connected = true
	c.logger.Info("MQTT connection established")
}

func (c *Client) onConnectionLost(client MQTT.Client, err error) {
	c.connected = false
	c.logger.Error("MQTT connection lost", "error", err.Error())
}

// updateTopic maps an update kind to its topic.
func (c *Client) updateTopic(kind engine.UpdateKind) string {
	switch kind {
	case engine.RealUpdate:
		return fmt.Sprintf("%s/updates/real", c.config.TopicPrefix)
	default:
		return fmt.Sprintf("%s/updates/idle", c.config.TopicPrefix)
	}
}

// PublishUpdate publishes a decided update event. Idle-only updates pass
// through the rate limiter and may be dropped; the drop is not an error.
func (c *Client) PublishUpdate(ev engine.UpdateEvent) error {
	if !c.config.Enabled || !c.connected {
		return nil
	}

	if ev.Kind == engine.IdleOnlyUpdate && !c.idleLimiter.Allow() {
		c.logger.Debug("idle-only update publish rate limited", "session_id", ev.SessionID)
		return nil
	}

	return c.publishJSON(c.updateTopic(ev.Kind), ev)
}

// PublishTransition publishes an engine state transition.
func (c *Client) PublishTransition(tr engine.Transition) error {
	if !c.config.Enabled || !c.connected {
		return nil
	}
	topic := fmt.Sprintf("%s/transitions", c.config.TopicPrefix)
	return c.publishJSON(topic, tr)
}

// PublishStatus publishes the periodic engine status.
func (c *Client) PublishStatus(status interface{}) error {
	if !c.config.Enabled || !c.connected {
		return nil
	}
	topic := fmt.Sprintf("%s/status", c.config.TopicPrefix)
	return c.publishJSON(topic, map[string]interface{}{
		"timestamp": time.Now(),
		"status":    status,
	})
}

// Subscribe subscribes to an MQTT topic (used for the visit signal).
func (c *Client) Subscribe(topic string, handler MQTT.MessageHandler) error {
	if !c.config.Enabled || !c.connected {
		return nil
	}

	token := c.client.Subscribe(topic, byte(c.config.QoS), handler)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", topic, token.Error())
	}

	c.logger.Info("MQTT subscription created", "topic", topic)
	return nil
}

// VisitTopic is the topic the daemon watches for visit-id signals.
func (c *Client) VisitTopic() string {
	return fmt.Sprintf("%s/visit", c.config.TopicPrefix)
}

// publishJSON publishes a JSON payload to an MQTT topic
func (c *Client) publishJSON(topic string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	token := c.client.Publish(topic, byte(c.config.QoS), c.config.Retain, data)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, token.Error())
	}

	c.lastPublish = time.Now()
	c.logger.Debug("MQTT message published", "topic", topic, "size", len(data))
	return nil
}

// IsConnected returns whether the MQTT client is connected
func (c *Client) IsConnected() bool {
	return c.connected && c.client != nil && c.client.IsConnected()
}

// LastPublish returns the timestamp of the last publish
func (c *Client) LastPublish() time.Time {
	return c.lastPublish
}
