package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/LeonardoBeccarini/smartcrop/internal/model/messages"
	"github.com/LeonardoBeccarini/smartcrop/pkg/dedup"
)

var (
	ErrMalformedCommand = errors.New("malformed command")
	ErrUnknownCommand   = errors.New("unknown command")
	ErrMissingArgument  = errors.New("missing command argument")
	ErrRateLimited      = errors.New("command rate limit exceeded")
)

// Command outcomes reported to OnResult.
const (
	ResultOK          = "ok"
	ResultDuplicate   = "duplicate"
	ResultRateLimited = "rate_limited"
	ResultInvalid     = "invalid"
	ResultFailed      = "failed"
)

// Commander is the set of operator intents the bus can drive.
type Commander interface {
	StartSimulation(ctx context.Context) error
	StopSimulation(ctx context.Context) error
	SetAutoMode(ctx context.Context, on bool) error
	ManualToggle(ctx context.Context) (bool, error)
	SetMoistureThreshold(ctx context.Context, v float64) (float64, error)
	SetInterval(ctx context.Context, d time.Duration) error
}

// DecodeCommand parses and validates a command payload.
func DecodeCommand(payload []byte) (messages.CommandMessage, error) {
	var cmd messages.CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return cmd, fmt.Errorf("%w: %v", ErrMalformedCommand, err)
	}
	cmd.Command = strings.ToLower(strings.TrimSpace(cmd.Command))

	switch cmd.Command {
	case messages.CommandStart, messages.CommandStop, messages.CommandTogglePump:
	case messages.CommandSetAuto:
		if cmd.Enabled == nil {
			return cmd, fmt.Errorf("%w: %s needs enabled", ErrMissingArgument, cmd.Command)
		}
	case messages.CommandSetThreshold:
		if cmd.Value == nil {
			return cmd, fmt.Errorf("%w: %s needs value", ErrMissingArgument, cmd.Command)
		}
	case messages.CommandSetInterval:
		if cmd.IntervalMs == nil {
			return cmd, fmt.Errorf("%w: %s needs interval_ms", ErrMissingArgument, cmd.Command)
		}
	case "":
		return cmd, fmt.Errorf("%w: empty command", ErrMalformedCommand)
	default:
		return cmd, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Command)
	}
	return cmd, nil
}

// ApplyCommand forwards a decoded command to c.
func ApplyCommand(ctx context.Context, c Commander, cmd messages.CommandMessage) error {
	switch cmd.Command {
	case messages.CommandStart:
		return c.StartSimulation(ctx)
	case messages.CommandStop:
		return c.StopSimulation(ctx)
	case messages.CommandSetAuto:
		return c.SetAutoMode(ctx, *cmd.Enabled)
	case messages.CommandTogglePump:
		_, err := c.ManualToggle(ctx)
		return err
	case messages.CommandSetThreshold:
		_, err := c.SetMoistureThreshold(ctx, *cmd.Value)
		return err
	case messages.CommandSetInterval:
		return c.SetInterval(ctx, time.Duration(*cmd.IntervalMs)*time.Millisecond)
	}
	return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Command)
}

// CommandHandler turns MQTT deliveries on the command topic into core
// intents. Redelivered payloads are skipped and bursts are rate limited.
type CommandHandler struct {
	ctx      context.Context
	core     Commander
	dedup    *dedup.Deduper
	limiter  *rate.Limiter
	timeout  time.Duration
	logger   *zap.Logger
	OnResult func(command, result string)
}

// NewCommandHandler applies commands under ctx; d and limiter may be nil.
func NewCommandHandler(ctx context.Context, core Commander, d *dedup.Deduper, limiter *rate.Limiter, logger *zap.Logger) *CommandHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommandHandler{
		ctx:     ctx,
		core:    core,
		dedup:   d,
		limiter: limiter,
		timeout: 2 * time.Second,
		logger:  logger.With(zap.String("component", "command-consumer")),
	}
}

func (h *CommandHandler) report(command, result string) {
	if h.OnResult != nil {
		h.OnResult(command, result)
	}
}

// Handle has the rabbitmq.Handler signature.
func (h *CommandHandler) Handle(topic string, m mqtt.Message) error {
	cmd, err := DecodeCommand(m.Payload())
	if err != nil {
		h.report(cmd.Command, ResultInvalid)
		return err
	}
	if h.redelivered(cmd, m) {
		h.logger.Debug("duplicate command dropped",
			zap.String("command", cmd.Command), zap.String("topic", topic))
		h.report(cmd.Command, ResultDuplicate)
		return nil
	}
	if h.limiter != nil && !h.limiter.Allow() {
		h.report(cmd.Command, ResultRateLimited)
		return ErrRateLimited
	}

	ctx, cancel := context.WithTimeout(h.ctx, h.timeout)
	defer cancel()
	if err := ApplyCommand(ctx, h.core, cmd); err != nil {
		h.report(cmd.Command, ResultFailed)
		return fmt.Errorf("apply %s: %w", cmd.Command, err)
	}
	h.logger.Info("command applied", zap.String("command", cmd.Command), zap.String("topic", topic))
	h.report(cmd.Command, ResultOK)
	return nil
}

// redelivered reports whether m repeats a command already handled. Only a
// client id or a broker redelivery (DUP flag, same packet id and payload)
// count; a fresh publish of the same payload is a new intent.
func (h *CommandHandler) redelivered(cmd messages.CommandMessage, m mqtt.Message) bool {
	if h.dedup == nil {
		return false
	}
	if cmd.ID != "" {
		return !h.dedup.ShouldProcess("id:" + cmd.ID)
	}
	if m.MessageID() == 0 {
		return false
	}
	key := fmt.Sprintf("mid:%d:%s", m.MessageID(), dedup.Key(m.Payload()))
	if m.Duplicate() {
		return !h.dedup.ShouldProcess(key)
	}
	h.dedup.Mark(key)
	return false
}
