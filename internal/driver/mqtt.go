package driver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/autodomum/autodomum/internal/engine"
)

// DefaultTopic is the topic prefix lamp states are published under.
const DefaultTopic = "autodomum/lamps"

const publishTimeout = 5 * time.Second

// ErrMQTTBacklog is returned by Handle when the publisher has fallen behind.
var ErrMQTTBacklog = errors.New("mqtt: backlog full")

// Publisher is the part of an MQTT client the driver uses.
// mqtt.Client satisfies it.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// LampMessage is the retained payload published per lamp.
type LampMessage struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	On   bool   `json:"on"`
}

type outgoing struct {
	topic   string
	payload []byte
	on      bool
}

// MQTT publishes lamp states to a broker. Each lamp gets a retained message
// on <topic>/<lamp id>.
//
// Like Telldus, Handle only enqueues. Run publishes in order and waits for
// each acknowledgement, so a stalled broker never holds up the engine loop.
type MQTT struct {
	client  Publisher
	topic   string
	timeout time.Duration
	logger  *slog.Logger
	queue   chan outgoing
}

// NewMQTT creates an MQTT driver. An empty topic uses DefaultTopic.
func NewMQTT(client Publisher, topic string, logger *slog.Logger) *MQTT {
	topic = strings.TrimRight(topic, "/")
	if topic == "" {
		topic = DefaultTopic
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MQTT{
		client:  client,
		topic:   topic,
		timeout: publishTimeout,
		logger:  logger,
		queue:   make(chan outgoing, DefaultBuffer),
	}
}

// Topic returns the topic a lamp's state is published on.
func (m *MQTT) Topic(lampID string) string {
	return m.topic + "/" + lampID
}

// Handle implements engine.Callback. Other event kinds are ignored.
func (m *MQTT) Handle(_ *engine.Context, ev engine.Event) error {
	l, ok := lampOf(ev)
	if !ok {
		return nil
	}

	payload, err := json.Marshal(LampMessage{ID: l.ID, Name: l.Name, On: l.On})
	if err != nil {
		return fmt.Errorf("marshal lamp %s: %w", l.ID, err)
	}

	select {
	case m.queue <- outgoing{topic: m.Topic(l.ID), payload: payload, on: l.On}:
		return nil
	default:
		return fmt.Errorf("%w: dropping %s", ErrMQTTBacklog, l.ID)
	}
}

// Pending returns the number of queued messages.
func (m *MQTT) Pending() int {
	return len(m.queue)
}

// Run publishes queued messages until ctx is cancelled.
func (m *MQTT) Run(ctx context.Context) error {
	m.logger.Info("mqtt driver started", "topic", m.Topic("+"))
	defer m.logger.Info("mqtt driver stopped")

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-m.queue:
			if err := m.send(msg); err != nil {
				m.logger.Warn("mqtt publish failed", "topic", msg.topic, "error", err)
			}
		}
	}
}

func (m *MQTT) send(msg outgoing) error {
	token := m.client.Publish(msg.topic, 1, true, msg.payload)
	if !token.WaitTimeout(m.timeout) {
		return errors.New("timed out")
	}
	if err := token.Error(); err != nil {
		return err
	}
	m.logger.Debug("lamp state published", "topic", msg.topic, "on", msg.on)
	return nil
}

// MQTTConfig holds broker connection settings.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

// Connect dials the broker and returns a connected client.
func Connect(cfg MQTTConfig) (mqtt.Client, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt: broker is required")
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "autodomum"
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	c := mqtt.NewClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(15 * time.Second) {
		return nil, fmt.Errorf("mqtt: connect to %s timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect to %s: %w", cfg.Broker, err)
	}
	return c, nil
}
