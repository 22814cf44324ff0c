package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/smartcrop/internal/model/messages"
	"github.com/LeonardoBeccarini/smartcrop/pkg/rabbitmq"
)

// Topics routes each event kind to an MQTT topic.
type Topics struct {
	Telemetry string
	Alert     string
	State     string
}

// BreakerSettings trips after Fails consecutive failures and stays open for OpenFor.
type BreakerSettings struct {
	Fails   int
	OpenFor time.Duration
}

// Publisher is the MQTT sink. Publishing goes through a circuit breaker so
// a dead broker fails fast instead of stalling the dispatcher.
type Publisher struct {
	pub    rabbitmq.IPublisher
	topics Topics
	cb     *gobreaker.CircuitBreaker
	logger *zap.Logger
}

func NewPublisher(pub rabbitmq.IPublisher, topics Topics, bs BreakerSettings, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "mqtt-sink"))
	fails := bs.Fails
	if fails < 1 {
		fails = 1
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "mqtt-publish",
		Timeout: bs.OpenFor,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= uint32(fails)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("breaker state", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	return &Publisher{pub: pub, topics: topics, cb: cb, logger: logger}
}

func (p *Publisher) Name() string { return "mqtt" }

// BreakerState is "closed", "half-open" or "open".
func (p *Publisher) BreakerState() string { return p.cb.State().String() }

func (p *Publisher) Handle(ev Event) error {
	topic, qos, retained, body, err := p.encode(ev)
	if err != nil {
		return err
	}
	_, err = p.cb.Execute(func() (interface{}, error) {
		return nil, p.pub.PublishTo(topic, qos, retained, body)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("publish %s skipped: %w", topic, err)
	}
	return err
}

// encode picks topic and delivery options per kind. State changes are
// retained so late subscribers see the current pump/simulation state.
func (p *Publisher) encode(ev Event) (topic string, qos byte, retained bool, body []byte, err error) {
	switch ev.Kind {
	case KindSample:
		topic = p.topics.Telemetry
		body, err = json.Marshal(messages.TelemetryMessage{
			Seq:            ev.Seq,
			Sample:         ev.Entry.Sample,
			MoistureStatus: ev.Entry.Sample.Status(),
			Timestamp:      ev.Entry.Timestamp,
		})
	case KindAlert:
		topic, qos = p.topics.Alert, 1
		body, err = json.Marshal(messages.AlertEvent{
			ID:        ev.Alert.ID,
			Kind:      ev.Alert.Kind,
			Message:   ev.Alert.Message,
			Timestamp: ev.Alert.Time,
		})
	case KindState:
		topic, qos, retained = p.topics.State, 1, true
		body, err = json.Marshal(ev.State)
	default:
		err = fmt.Errorf("unknown event kind %q", ev.Kind)
	}
	return
}
