package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/LeonardoBeccarini/smartcrop/internal/model/entities"
	"github.com/LeonardoBeccarini/smartcrop/pkg/rabbitmq"
)

var ErrInvalid = errors.New("invalid configuration")

type SimConfig struct {
	Interval  time.Duration
	Autostart bool
	Threshold float64
	Seed      int64 // 0 seeds from the clock
}

type MQTTConfig struct {
	Enabled        bool
	Broker         rabbitmq.RabbitMQConfig
	TelemetryTopic string
	AlertTopic     string
	StateTopic     string
	CommandTopic   string
}

type InfluxConfig struct {
	Enabled       bool
	URL           string
	Token         string
	Org           string
	Bucket        string
	BatchSize     int
	FlushInterval time.Duration
}

type BreakerConfig struct {
	Fails   int
	OpenFor time.Duration
}

type CommandConfig struct {
	RatePerSec float64
	Burst      int
	DedupTTL   time.Duration
}

// Config holds the environment-driven settings of the smartcrop process.
type Config struct {
	LogLevel  string
	LogFormat string

	Sim SimConfig

	HTTPPort int
	GRPCPort int

	MQTT     MQTTConfig
	Influx   InfluxConfig
	Breaker  BreakerConfig
	Commands CommandConfig

	SinkBuffer int
}

// Load reads .env (if present) and the environment, then validates.
func Load() (Config, error) {
	_ = godotenv.Load() // missing file is fine
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(getenv func(string) string) (Config, error) {
	e := env{get: getenv}

	cfg := Config{
		LogLevel:  e.getStr("LOG_LEVEL", "info"),
		LogFormat: e.getStr("LOG_FORMAT", "json"),
		Sim: SimConfig{
			Interval:  time.Duration(e.getInt("SIM_INTERVAL_MS", 3000)) * time.Millisecond,
			Autostart: e.getBool("SIM_AUTOSTART", true),
			Threshold: e.getFloat("MOISTURE_THRESHOLD_PCT", entities.DefaultMoistureThreshold),
			Seed:      int64(e.getInt("SIM_SEED", 0)),
		},
		HTTPPort: e.getInt("HTTP_PORT", 8080),
		GRPCPort: e.getInt("GRPC_PORT", 50051),
		MQTT: MQTTConfig{
			Enabled: e.getBool("MQTT_ENABLED", false),
			Broker: rabbitmq.RabbitMQConfig{
				Host:     e.getStr("RABBITMQ_HOST", "localhost"),
				Port:     e.getInt("RABBITMQ_PORT", 1883),
				User:     e.getStr("RABBITMQ_USER", "guest"),
				Password: e.getStr("RABBITMQ_PASSWORD", "guest"),
				ClientID: e.getStr("MQTT_CLIENT_ID", "smartcrop"),
			},
			TelemetryTopic: e.getStr("TELEMETRY_TOPIC", "sensor/telemetry/smartcrop"),
			AlertTopic:     e.getStr("ALERT_TOPIC", "event/alert/smartcrop"),
			StateTopic:     e.getStr("STATE_TOPIC", "event/StateChange/smartcrop"),
			CommandTopic:   e.getStr("COMMAND_TOPIC", "command/smartcrop"),
		},
		Influx: InfluxConfig{
			Enabled:       e.getBool("INFLUX_ENABLED", false),
			URL:           e.getStr("INFLUX_URL", "http://localhost:8086"),
			Token:         e.getStr("INFLUX_TOKEN", ""),
			Org:           e.getStr("INFLUX_ORG", "smartcrop"),
			Bucket:        e.getStr("INFLUX_BUCKET", "telemetry"),
			BatchSize:     e.getInt("INFLUX_BATCH_SIZE", 20),
			FlushInterval: time.Duration(e.getInt("INFLUX_FLUSH_MS", 1000)) * time.Millisecond,
		},
		Breaker: BreakerConfig{
			Fails:   e.getInt("CB_FAILS", 3),
			OpenFor: time.Duration(e.getInt("CB_OPEN_MS", 10000)) * time.Millisecond,
		},
		Commands: CommandConfig{
			RatePerSec: e.getFloat("CMD_RATE_PER_SEC", 5),
			Burst:      e.getInt("CMD_RATE_BURST", 10),
			DedupTTL:   time.Duration(e.getInt("CMD_DEDUP_TTL_MS", 60000)) * time.Millisecond,
		},
		SinkBuffer: e.getInt("SINK_BUFFER", 256),
	}
	if e.err != nil {
		return cfg, e.err
	}
	return cfg, cfg.Validate()
}

// Validate reports the first setting outside its accepted range.
func (c Config) Validate() error {
	switch {
	case c.Sim.Interval < 100*time.Millisecond:
		return fmt.Errorf("%w: SIM_INTERVAL_MS must be >= 100, got %d", ErrInvalid, c.Sim.Interval.Milliseconds())
	case c.Sim.Threshold < entities.MinMoistureThreshold || c.Sim.Threshold > entities.MaxMoistureThreshold:
		return fmt.Errorf("%w: MOISTURE_THRESHOLD_PCT must be in [%g, %g], got %g", ErrInvalid,
			entities.MinMoistureThreshold, entities.MaxMoistureThreshold, c.Sim.Threshold)
	case !validPort(c.HTTPPort):
		return fmt.Errorf("%w: HTTP_PORT %d", ErrInvalid, c.HTTPPort)
	case !validPort(c.GRPCPort):
		return fmt.Errorf("%w: GRPC_PORT %d", ErrInvalid, c.GRPCPort)
	case c.HTTPPort == c.GRPCPort:
		return fmt.Errorf("%w: HTTP_PORT and GRPC_PORT are both %d", ErrInvalid, c.HTTPPort)
	case c.MQTT.Enabled && !validPort(c.MQTT.Broker.Port):
		return fmt.Errorf("%w: RABBITMQ_PORT %d", ErrInvalid, c.MQTT.Broker.Port)
	case c.Influx.Enabled && c.Influx.URL == "":
		return fmt.Errorf("%w: INFLUX_URL is required when INFLUX_ENABLED", ErrInvalid)
	case c.Breaker.Fails <= 0:
		return fmt.Errorf("%w: CB_FAILS must be > 0", ErrInvalid)
	case c.Commands.RatePerSec <= 0 || c.Commands.Burst <= 0:
		return fmt.Errorf("%w: CMD_RATE_PER_SEC and CMD_RATE_BURST must be > 0", ErrInvalid)
	case c.SinkBuffer <= 0:
		return fmt.Errorf("%w: SINK_BUFFER must be > 0", ErrInvalid)
	}
	return nil
}

func (c Config) HTTPAddr() string { return fmt.Sprintf(":%d", c.HTTPPort) }

func (c Config) GRPCAddr() string { return fmt.Sprintf(":%d", c.GRPCPort) }

func validPort(p int) bool { return p > 0 && p < 65536 }

// env reads typed values and keeps the first parse error.
type env struct {
	get func(string) string
	err error
}

func (e *env) raw(key string) string { return strings.TrimSpace(e.get(key)) }

func (e *env) fail(key, v string) {
	if e.err == nil {
		e.err = fmt.Errorf("%w: %s=%q", ErrInvalid, key, v)
	}
}

func (e *env) getStr(key, def string) string {
	if v := e.raw(key); v != "" {
		return v
	}
	return def
}

func (e *env) getInt(key string, def int) int {
	v := e.raw(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, v)
		return def
	}
	return n
}

func (e *env) getFloat(key string, def float64) float64 {
	v := e.raw(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(key, v)
		return def
	}
	return f
}

func (e *env) getBool(key string, def bool) bool {
	v := e.raw(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, v)
		return def
	}
	return b
}
