// Package mqtt publishes readings as JSON to an MQTT broker.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/mklimuk/weather/acquisition"
	"github.com/mklimuk/weather/bme280"
)

const (
	DefaultTopic   = "weather/bme280"
	defaultQoS     = 0
	maxQoS         = 2
	publishTimeout = 5 * time.Second
	connectTimeout = 5 * time.Second
)

var ErrPublishTimeout = errors.New("mqtt: publish not confirmed in time")

// Client is the part of paho.Client the publisher needs.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

type Config struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Topic    string `yaml:"topic"`
	QoS      byte   `yaml:"qos"`
	Retained bool   `yaml:"retained"`
}

// Message is the JSON payload of one reading.
type Message struct {
	Time        time.Time `json:"time"`
	Temperature float64   `json:"temperature"`
	Pressure    float64   `json:"pressure"`
	Humidity    float64   `json:"humidity"`
}

var _ acquisition.Emitter = &Publisher{}

type Publisher struct {
	client   Client
	topic    string
	qos      byte
	retained bool
	timeout  time.Duration
	now      func() time.Time
}

// Connect dials the broker and returns a publisher for cfg.Topic.
func Connect(cfg Config) (*Publisher, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt: broker address is empty")
	}
	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetOnConnectHandler(func(_ paho.Client) {
			slog.Info("connected to MQTT broker", "broker", cfg.Broker)
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			slog.Error("connection lost to MQTT broker", "error", err)
		}).
		SetKeepAlive(10 * time.Second).
		SetConnectTimeout(connectTimeout)

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("mqtt: connecting to %s timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connecting to %s: %w", cfg.Broker, err)
	}
	return NewPublisher(client, cfg), nil
}

func NewPublisher(client Client, cfg Config) *Publisher {
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	qos := cfg.QoS
	if qos > maxQoS {
		slog.Warn("invalid mqtt qos, using default", "qos", qos, "default", defaultQoS)
		qos = defaultQoS
	}
	return &Publisher{
		client:   client,
		topic:    topic,
		qos:      qos,
		retained: cfg.Retained,
		timeout:  publishTimeout,
		now:      time.Now,
	}
}

func (p *Publisher) Emit(ctx context.Context, r bme280.Reading) error {
	payload, err := json.Marshal(Message{
		Time:        p.now().UTC(),
		Temperature: r.Temperature,
		Pressure:    r.Pressure,
		Humidity:    r.Humidity,
	})
	if err != nil {
		return fmt.Errorf("mqtt: marshaling reading: %w", err)
	}
	token := p.client.Publish(p.topic, p.qos, p.retained, payload)
	timeout := p.timeout
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < timeout {
		timeout = time.Until(deadline)
	}
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("%w: topic %s", ErrPublishTimeout, p.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: publishing to topic %s: %w", p.topic, err)
	}
	return nil
}

func (p *Publisher) Close() {
	p.client.Disconnect(uint(publishTimeout / time.Millisecond))
}
