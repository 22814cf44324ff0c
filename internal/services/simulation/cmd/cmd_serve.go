package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/LeonardoBeccarini/smartcrop/internal/config"
	"github.com/LeonardoBeccarini/smartcrop/internal/metrics"
	simulator "github.com/LeonardoBeccarini/smartcrop/internal/sensor-simulator"
	"github.com/LeonardoBeccarini/smartcrop/internal/services/event"
	"github.com/LeonardoBeccarini/smartcrop/internal/services/gateway"
	"github.com/LeonardoBeccarini/smartcrop/internal/services/simulation"
	"github.com/LeonardoBeccarini/smartcrop/pkg/dedup"
	"github.com/LeonardoBeccarini/smartcrop/pkg/logger"
	"github.com/LeonardoBeccarini/smartcrop/pkg/rabbitmq"
)

var serveFlags struct {
	intervalMs  int
	httpPort    int
	grpcPort    int
	logLevel    string
	noAutostart bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the simulation with its HTTP, gRPC and MQTT surfaces",
	RunE:  runServe,
}

func init() {
	f := serveCmd.Flags()
	f.IntVar(&serveFlags.intervalMs, "interval-ms", 0, "tick interval in milliseconds (overrides SIM_INTERVAL_MS)")
	f.IntVar(&serveFlags.httpPort, "http-port", 0, "HTTP port (overrides HTTP_PORT)")
	f.IntVar(&serveFlags.grpcPort, "grpc-port", 0, "gRPC health port (overrides GRPC_PORT)")
	f.StringVar(&serveFlags.logLevel, "log-level", "", "debug|info|warn|error (overrides LOG_LEVEL)")
	f.BoolVar(&serveFlags.noAutostart, "paused", false, "start with the simulation paused")
	rootCmd.AddCommand(serveCmd)
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	f := cmd.Flags()
	if f.Changed("interval-ms") {
		cfg.Sim.Interval = time.Duration(serveFlags.intervalMs) * time.Millisecond
	}
	if f.Changed("http-port") {
		cfg.HTTPPort = serveFlags.httpPort
	}
	if f.Changed("grpc-port") {
		cfg.GRPCPort = serveFlags.grpcPort
	}
	if f.Changed("log-level") {
		cfg.LogLevel = serveFlags.logLevel
	}
	if serveFlags.noAutostart {
		cfg.Sim.Autostart = false
	}
	return cfg, cfg.Validate()
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat, "smartcrop")
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	healthSrv := gateway.NewHealthServer(cfg.GRPCAddr(), false, log)
	sinks := []event.Sink{metrics.Sink{}, healthSrv}

	// === InfluxDB ===
	var (
		writer *event.Writer
		store  gateway.TelemetryStore
	)
	if cfg.Influx.Enabled {
		opts := influxdb2.DefaultOptions().
			SetBatchSize(uint(cfg.Influx.BatchSize)).
			SetFlushInterval(uint(cfg.Influx.FlushInterval.Milliseconds()))
		influx := influxdb2.NewClientWithOptions(cfg.Influx.URL, cfg.Influx.Token, opts)
		defer influx.Close()
		writer = event.NewWriter(influx.WriteAPI(cfg.Influx.Org, cfg.Influx.Bucket), log)
		defer writer.Flush()
		store = event.NewTelemetryQuery(influx.QueryAPI(cfg.Influx.Org), cfg.Influx.Bucket)
		sinks = append(sinks, writer)
		log.Info("influx sink enabled", zap.String("url", cfg.Influx.URL), zap.String("bucket", cfg.Influx.Bucket))
	}

	// === MQTT ===
	var (
		conn     event.Connectivity
		consumer rabbitmq.IConsumer
	)
	if cfg.MQTT.Enabled {
		broker := cfg.MQTT.Broker
		broker.ClientID = broker.ClientID + "-" + uuid.NewString()[:8]
		client, err := rabbitmq.NewRabbitMQConn(gctx, &broker, log)
		if err != nil {
			return err
		}
		conn = client
		pub := event.NewPublisher(
			rabbitmq.NewPublisher(client, 2*time.Second),
			event.Topics{Telemetry: cfg.MQTT.TelemetryTopic, Alert: cfg.MQTT.AlertTopic, State: cfg.MQTT.StateTopic},
			event.BreakerSettings{Fails: cfg.Breaker.Fails, OpenFor: cfg.Breaker.OpenFor},
			log,
		)
		sinks = append(sinks, pub)
		consumer = rabbitmq.NewConsumer(client, 1, log, cfg.MQTT.CommandTopic)
	}

	// === Core ===
	dispatcher := event.NewDispatcher(cfg.SinkBuffer, log, metrics.DispatcherHooks(), sinks...)
	svc := simulation.NewService(
		simulation.Config{Interval: cfg.Sim.Interval, Threshold: cfg.Sim.Threshold},
		simulator.NewRandomWalk(simulator.NewRandSource(cfg.Sim.Seed)),
		simulation.SystemClock{},
		dispatcher,
		log,
	)
	healthSrv.Follow(svc.Running)
	metrics.ObserveState(svc.State(), false, svc.Threshold())
	metrics.ObserveSample(svc.CurrentSample())

	if consumer != nil {
		h := event.NewCommandHandler(gctx, svc,
			dedup.New(cfg.Commands.DedupTTL, 10000),
			rate.NewLimiter(rate.Limit(cfg.Commands.RatePerSec), cfg.Commands.Burst),
			log)
		h.OnResult = metrics.CommandResult
		consumer.SetHandler(h.Handle)
		g.Go(func() error { return consumer.ConsumeMessage(gctx) })
	}

	health := event.NewHealth(conn, writer, dispatcher, svc.Running, 2*time.Second)
	api := gateway.New(svc, gateway.Options{
		Addr:       cfg.HTTPAddr(),
		RatePerSec: cfg.Commands.RatePerSec,
		Burst:      cfg.Commands.Burst,
		Health:     health,
		Store:      store,
	}, log)

	g.Go(func() error { return dispatcher.Run(gctx) })
	g.Go(func() error { return svc.Run(gctx) })
	g.Go(func() error { return api.Run(gctx) })
	g.Go(func() error { return healthSrv.Run(gctx) })
	if cfg.Sim.Autostart {
		g.Go(func() error {
			if err := svc.StartSimulation(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("autostart: %w", err)
			}
			return nil
		})
	}

	log.Info("smartcrop started",
		zap.Duration("interval", cfg.Sim.Interval),
		zap.Bool("autostart", cfg.Sim.Autostart),
		zap.Bool("mqtt", cfg.MQTT.Enabled),
		zap.Bool("influx", cfg.Influx.Enabled))

	err = g.Wait()
	log.Info("smartcrop stopped", zap.Uint64("dropped_events", dispatcher.Dropped()))
	return err
}
