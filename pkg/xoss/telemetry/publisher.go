// Package telemetry implements the MQTT telemetry publisher (C9): a
// fire-and-forget egress for operation outcomes, trimmed from the
// teacher's bidirectional MQTT transport down to publish-only, since
// this domain never needs to receive commands over MQTT.
package telemetry

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Config holds the MQTT broker connection settings.
type Config struct {
	Broker         string        `yaml:"broker"`
	ClientID       string        `yaml:"client_id"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	QOS            byte          `yaml:"qos"`
}

// DefaultConfig returns sane defaults for a local broker.
func DefaultConfig() Config {
	return Config{
		Broker:         "tcp://localhost:1883",
		ClientID:       fmt.Sprintf("xoss-sync-%d", time.Now().Unix()),
		ConnectTimeout: 10 * time.Second,
	}
}

// mqttClient is the subset of mqtt.Client that Publisher depends on,
// narrowed so a fake broker can stand in for tests without implementing
// paho's much larger Client interface.
type mqttClient interface {
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Publisher publishes operation telemetry to an MQTT broker. It
// implements device.Publisher.
type Publisher struct {
	client mqttClient
	config Config
}

// Connect dials the configured broker and returns a ready-to-use
// Publisher. Unlike the teacher's transport, there is no subscribe path.
// The client reconnects on its own (paho auto-reconnect); while the
// connection is down, Publish calls fail or time out, which the caller
// logs and moves on from (telemetry is best-effort).
func Connect(cfg Config) (*Publisher, error) {
	if cfg.Broker == "" {
		cfg = DefaultConfig()
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetConnectTimeout(cfg.ConnectTimeout)
	opts.SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	t := client.Connect()
	if !t.WaitTimeout(cfg.ConnectTimeout) {
		return nil, fmt.Errorf("telemetry: connecting to %s: timed out", cfg.Broker)
	}
	if err := t.Error(); err != nil {
		return nil, fmt.Errorf("telemetry: connecting to %s: %w", cfg.Broker, err)
	}

	return newPublisher(client, cfg), nil
}

func newPublisher(client mqttClient, cfg Config) *Publisher {
	return &Publisher{client: client, config: cfg}
}

// Publish fires payload at topic at the configured QOS, without
// retaining the message. It does not block beyond the connect timeout.
func (p *Publisher) Publish(topic string, payload []byte) error {
	t := p.client.Publish(topic, p.config.QOS, false, payload)
	if !t.WaitTimeout(p.config.ConnectTimeout) {
		return fmt.Errorf("telemetry: publishing to %s: timed out", topic)
	}
	return t.Error()
}

// Close disconnects from the broker, waiting up to 250ms for in-flight
// publishes to drain.
func (p *Publisher) Close() error {
	p.client.Disconnect(250)
	return nil
}
