package synapse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	mqtt "github.com/soypat/natiu-mqtt"
)

var (
	ERR_PUBLISH = errors.New("Can't publish")
)

type Publisher interface {
	Publish(ctx context.Context, c *Command) error
}

// Used when mqtt is disabled
type Nop struct{}

func (Nop) Publish(context.Context, *Command) error { return nil }

// Short lived connection per command, summaries are rare
type MqttPublisher struct {
	mu        sync.Mutex
	address   string
	client_id string
	topic     string
	timeout   time.Duration
	logger    *slog.Logger
	next_id   uint
}

func NewMqttPublisher(address, client_id, topic string, timeout time.Duration, parent_logger *slog.Logger) *MqttPublisher {
	return &MqttPublisher{
		address:   address,
		client_id: client_id,
		topic:     topic,
		timeout:   timeout,
		logger:    parent_logger.With("coroutine", "mqttclient"),
	}
}

func (p *MqttPublisher) Publish(ctx context.Context, c *Command) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next_id++
	c.Id = p.next_id

	payload, err := c.ToPayload()
	if err != nil {
		return fmt.Errorf("%w: %w", ERR_PUBLISH, err)
	}

	connection_ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var dialer net.Dialer
	connection, err := dialer.DialContext(connection_ctx, "tcp", p.address)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %w", ERR_PUBLISH, p.address, err)
	}
	defer connection.Close()

	client := mqtt.NewClient(
		mqtt.ClientConfig{
			Decoder: mqtt.DecoderNoAlloc{UserBuffer: make([]byte, 2048)},
			OnPub: func(pubHead mqtt.Header, varPub mqtt.VariablesPublish, r io.Reader) error {
				message, err := io.ReadAll(r)
				if err != nil {
					return err
				}
				p.logger.Debug("Recieved", "header", pubHead.String(), "message", message)
				return nil
			},
		})

	var vars mqtt.VariablesConnect
	vars.SetDefaultMQTT([]byte(p.client_id))
	err = client.Connect(connection_ctx, connection, &vars)
	if err != nil {
		return fmt.Errorf("%w: connect: %w", ERR_PUBLISH, err)
	}
	defer client.Disconnect(nil)

	flags, err := mqtt.NewPublishFlags(mqtt.QoS0, false, false)
	if err != nil {
		return fmt.Errorf("%w: %w", ERR_PUBLISH, err)
	}
	err = client.PublishPayload(flags, mqtt.VariablesPublish{TopicName: []byte(p.topic)}, payload)
	if err != nil {
		return fmt.Errorf("%w: publish: %w", ERR_PUBLISH, err)
	}
	p.logger.Info("Published", "topic", p.topic, "id", c.Id, "subject", c.Subject)
	return nil
}
