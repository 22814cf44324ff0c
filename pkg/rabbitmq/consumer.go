package rabbitmq

import (
	"context"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// Handler processes one delivery from topic.
type Handler func(topic string, message mqtt.Message) error

// IConsumer subscribes and dispatches deliveries until ctx is done.
type IConsumer interface {
	ConsumeMessage(ctx context.Context) error
	SetHandler(handler Handler)
}

var _ IConsumer = (*Consumer)(nil)

// Consumer dispatches deliveries of one or more topics to a single handler.
type Consumer struct {
	client  mqtt.Client
	topics  []string
	qos     byte
	handler Handler
	logger  *zap.Logger
}

func NewConsumer(client mqtt.Client, qos byte, logger *zap.Logger, topics ...string) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{
		client: client,
		topics: topics,
		qos:    qos,
		logger: logger.With(zap.String("component", "mqtt-consumer")),
	}
}

func (c *Consumer) SetHandler(handler Handler) {
	c.handler = handler
}

// ConsumeMessage subscribes to every topic and blocks until ctx is done,
// then unsubscribes. A failed subscription aborts with an error.
func (c *Consumer) ConsumeMessage(ctx context.Context) error {
	for i, topic := range c.topics {
		topic := topic
		token := c.client.Subscribe(topic, c.qos, func(_ mqtt.Client, msg mqtt.Message) {
			if c.handler == nil {
				c.logger.Warn("no handler set", zap.String("topic", topic))
				return
			}
			if err := c.handler(topic, msg); err != nil {
				c.logger.Warn("handle failed", zap.String("topic", msg.Topic()), zap.Error(err))
			}
		})
		if token.Wait() && token.Error() != nil {
			c.unsubscribe(c.topics[:i])
			return fmt.Errorf("subscribe %s: %w", topic, token.Error())
		}
		c.logger.Info("subscribed", zap.String("topic", topic), zap.Uint8("qos", c.qos))
	}

	<-ctx.Done()
	c.unsubscribe(c.topics)
	return nil
}

func (c *Consumer) unsubscribe(topics []string) {
	if len(topics) == 0 {
		return
	}
	c.client.Unsubscribe(topics...).Wait()
}
