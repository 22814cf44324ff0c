package rabbitmq

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// RabbitMQConfig addresses the broker's MQTT plugin.
type RabbitMQConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	ClientID string
}

func (c RabbitMQConfig) BrokerURL() string {
	return fmt.Sprintf("tcp://%s:%d", c.Host, c.Port)
}

const maxConnectRetries = 5

// NewRabbitMQConn connects with exponential backoff and disconnects when ctx
// is cancelled.
func NewRabbitMQConn(ctx context.Context, cfg *RabbitMQConfig, logger *zap.Logger) (mqtt.Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "mqtt"))
	addr := cfg.BrokerURL()

	opts := mqtt.NewClientOptions()
	opts.AddBroker(addr)
	opts.SetUsername(cfg.User)
	opts.SetPassword(cfg.Password)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("connection lost", zap.Error(err))
	})

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 10 * time.Second

	var client mqtt.Client
	err := backoff.Retry(func() error {
		client = mqtt.NewClient(opts)
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			logger.Warn("connect failed", zap.String("broker", addr), zap.Error(token.Error()))
			return token.Error()
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, maxConnectRetries-1), ctx))
	if err != nil {
		return nil, fmt.Errorf("could not establish MQTT connection after retries: %w", err)
	}
	logger.Info("connected", zap.String("broker", addr), zap.String("client_id", cfg.ClientID))

	go func() {
		<-ctx.Done()
		CloseRabbitMQConn(client, logger)
	}()
	return client, nil
}

func CloseRabbitMQConn(client mqtt.Client, logger *zap.Logger) {
	if client.IsConnected() {
		client.Disconnect(250)
		if logger != nil {
			logger.Info("connection closed")
		}
	}
}
