package rabbitmq

import (
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// IPublisher publishes raw payloads to a topic.
type IPublisher interface {
	PublishTo(topic string, qos byte, retained bool, payload []byte) error
}

// Publisher publishes on a shared MQTT client.
type Publisher struct {
	client  mqtt.Client
	timeout time.Duration
}

func NewPublisher(client mqtt.Client, timeout time.Duration) *Publisher {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Publisher{client: client, timeout: timeout}
}

var ErrPublishTimeout = errors.New("publish timed out")

// PublishTo blocks until the broker acknowledged the publish or the
// timeout elapsed.
func (p *Publisher) PublishTo(topic string, qos byte, retained bool, payload []byte) error {
	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("%w: topic=%s", ErrPublishTimeout, topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish on %s: %w", topic, err)
	}
	return nil
}
