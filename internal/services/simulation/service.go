package simulation

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/smartcrop/internal/logbook"
	"github.com/LeonardoBeccarini/smartcrop/internal/model/entities"
	"github.com/LeonardoBeccarini/smartcrop/internal/model/messages"
	controller "github.com/LeonardoBeccarini/smartcrop/internal/services/irrigation-controller"
)

const (
	DefaultInterval = 3 * time.Second
	MinInterval     = 100 * time.Millisecond

	MsgSystemStarted = "System started successfully"
)

var (
	ErrNotRunning      = errors.New("simulation loop not running")
	ErrInvalidInterval = errors.New("invalid tick interval")
)

// Simulator computes the next sample from the current one.
type Simulator interface {
	Next(prev entities.SensorSample) entities.SensorSample
}

// Observer receives every event the core produces. Calls happen on the loop
// goroutine after the state lock is released, so implementations must not block.
type Observer interface {
	OnSample(seq uint64, e entities.HistoryEntry)
	OnAlert(a entities.Alert)
	OnStateChange(evt messages.StateChangeEvent)
}

type nopObserver struct{}

func (nopObserver) OnSample(uint64, entities.HistoryEntry)  {}
func (nopObserver) OnAlert(entities.Alert)                  {}
func (nopObserver) OnStateChange(messages.StateChangeEvent) {}

// Config tunes a Service. Zero values pick the defaults.
type Config struct {
	Interval        time.Duration
	Initial         *entities.SensorSample
	Threshold       float64
	HistoryCapacity int
	AlertCapacity   int
}

// command runs on the loop goroutine, between ticks.
type command struct {
	name  string
	apply func(t Ticker)
	done  chan struct{}
}

// Service is the simulation core: it owns the current sample, the history,
// the alert log and the controller, and drives them from a single loop.
// Ticks and operator intents are serialised on that loop, so an intent is
// applied either fully before or fully after a tick.
type Service struct {
	sim      Simulator
	ctrl     *controller.Controller
	history  *logbook.HistoryBuffer
	alerts   *logbook.AlertLog
	clock    Clock
	observer Observer
	logger   *zap.Logger

	cmds chan command
	done chan struct{}
	once sync.Once
	boot entities.Alert

	// guarded by mu; written only by the loop goroutine
	mu       sync.RWMutex
	current  entities.SensorSample
	running  bool
	interval time.Duration
	seq      uint64
}

// NewService wires a core around sim. clock and observer may be nil.
func NewService(cfg Config, sim Simulator, clock Clock, observer Observer, logger *zap.Logger) *Service {
	if clock == nil {
		clock = SystemClock{}
	}
	if observer == nil {
		observer = nopObserver{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	initial := entities.DefaultSample()
	if cfg.Initial != nil {
		initial = cfg.Initial.Clamped()
	}

	alerts := logbook.NewAlertLog(cfg.AlertCapacity)
	ctrl := controller.NewController(alerts, clock.Now, logger)
	if cfg.Threshold > 0 {
		ctrl.SetMoistureThreshold(cfg.Threshold)
	}

	s := &Service{
		sim:      sim,
		ctrl:     ctrl,
		history:  logbook.NewHistoryBuffer(cfg.HistoryCapacity),
		alerts:   alerts,
		clock:    clock,
		observer: observer,
		logger:   logger.With(zap.String("component", "simulation")),
		cmds:     make(chan command),
		done:     make(chan struct{}),
		current:  initial,
		interval: cfg.Interval,
	}
	s.boot = alerts.Push(entities.AlertInfo, MsgSystemStarted, clock.Now())
	return s
}

// Run drives the loop until ctx is cancelled. The simulation starts paused;
// call StartSimulation to begin ticking.
func (s *Service) Run(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.Interval())
	ticker.Stop()
	defer func() {
		ticker.Stop()
		s.once.Do(func() { close(s.done) })
	}()

	s.observer.OnAlert(s.boot)
	s.logger.Info("loop started", zap.Duration("interval", s.Interval()))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("loop stopped")
			return nil
		case cmd := <-s.cmds:
			s.logger.Debug("command", zap.String("name", cmd.name))
			cmd.apply(ticker)
			close(cmd.done)
		case <-ticker.C():
			// a tick buffered before a stop is dropped here
			if s.Running() {
				s.tick()
			}
		}
	}
}

// Done is closed once Run returned.
func (s *Service) Done() <-chan struct{} { return s.done }

func (s *Service) tick() {
	now := s.clock.Now()

	s.mu.Lock()
	sample := s.sim.Next(s.current)
	s.current = sample
	s.seq++
	seq := s.seq
	entry := entities.HistoryEntry{Sample: sample, Timestamp: now}
	s.history.Append(entry)
	alert, fired := s.ctrl.Evaluate(sample)
	var evt messages.StateChangeEvent
	if fired {
		evt = s.stateEventLocked(messages.ReasonPolicy, now)
	}
	s.mu.Unlock()

	s.logger.Debug("tick",
		zap.Uint64("seq", seq),
		zap.Float64("moisture", sample.SoilMoisture),
		zap.Float64("temperature", sample.Temperature),
		zap.Float64("humidity", sample.Humidity))

	s.observer.OnSample(seq, entry)
	if fired {
		s.observer.OnAlert(alert)
		s.observer.OnStateChange(evt)
	}
}

// do queues fn on the loop and waits until it ran.
func (s *Service) do(ctx context.Context, name string, fn func(t Ticker)) error {
	cmd := command{name: name, apply: fn, done: make(chan struct{})}
	select {
	case s.cmds <- cmd:
	case <-s.done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-cmd.done:
		return nil
	case <-s.done:
		return ErrNotRunning
	}
}

// ===================== intents =====================

// StartSimulation begins (or resumes) ticking from the current state.
// Starting a running simulation is a no-op.
func (s *Service) StartSimulation(ctx context.Context) error {
	return s.do(ctx, "start", func(t Ticker) {
		if s.Running() {
			return
		}
		s.mu.Lock()
		s.running = true
		t.Reset(s.interval)
		evt := s.stateEventLocked(messages.ReasonSimulation, s.clock.Now())
		s.mu.Unlock()
		s.logger.Info("simulation started", zap.Int64("interval_ms", evt.IntervalMs))
		s.observer.OnStateChange(evt)
	})
}

// StopSimulation pauses ticking. It is idempotent, and once it returns no
// further tick executes until the next start. Accumulated state is kept.
func (s *Service) StopSimulation(ctx context.Context) error {
	return s.do(ctx, "stop", func(t Ticker) {
		t.Stop()
		if !s.Running() {
			return
		}
		s.mu.Lock()
		s.running = false
		evt := s.stateEventLocked(messages.ReasonSimulation, s.clock.Now())
		s.mu.Unlock()
		s.logger.Info("simulation paused")
		s.observer.OnStateChange(evt)
	})
}

// Pause is StopSimulation.
func (s *Service) Pause(ctx context.Context) error { return s.StopSimulation(ctx) }

// Resume is StartSimulation.
func (s *Service) Resume(ctx context.Context) error { return s.StartSimulation(ctx) }

func (s *Service) SetAutoMode(ctx context.Context, on bool) error {
	return s.do(ctx, "set_auto", func(Ticker) {
		s.mu.Lock()
		changed := s.ctrl.SetAutoMode(on)
		evt := s.stateEventLocked(messages.ReasonMode, s.clock.Now())
		s.mu.Unlock()
		if changed {
			s.observer.OnStateChange(evt)
		}
	})
}

// ManualToggle flips the pump when auto mode is off; otherwise it is ignored.
// The returned flag reports whether the pump was toggled.
func (s *Service) ManualToggle(ctx context.Context) (bool, error) {
	var toggled bool
	err := s.do(ctx, "toggle_pump", func(Ticker) {
		s.mu.Lock()
		alert, ok := s.ctrl.ManualToggle()
		evt := s.stateEventLocked(messages.ReasonManual, s.clock.Now())
		s.mu.Unlock()
		toggled = ok
		if ok {
			s.observer.OnAlert(alert)
			s.observer.OnStateChange(evt)
		}
	})
	return toggled, err
}

// SetMoistureThreshold stores v clamped into the selectable range and
// returns the value in effect.
func (s *Service) SetMoistureThreshold(ctx context.Context, v float64) (float64, error) {
	var applied float64
	err := s.do(ctx, "set_threshold", func(Ticker) {
		s.mu.Lock()
		applied = s.ctrl.SetMoistureThreshold(v)
		evt := s.stateEventLocked(messages.ReasonThreshold, s.clock.Now())
		s.mu.Unlock()
		s.observer.OnStateChange(evt)
	})
	return applied, err
}

// SetInterval changes the tick period, effective immediately when running.
func (s *Service) SetInterval(ctx context.Context, d time.Duration) error {
	if d < MinInterval {
		return ErrInvalidInterval
	}
	return s.do(ctx, "set_interval", func(t Ticker) {
		s.mu.Lock()
		s.interval = d
		if s.running {
			t.Reset(d)
		}
		evt := s.stateEventLocked(messages.ReasonInterval, s.clock.Now())
		s.mu.Unlock()
		s.logger.Info("interval changed", zap.Duration("interval", d))
		s.observer.OnStateChange(evt)
	})
}

// ===================== snapshots =====================

// Snapshot is a consistent, read-only copy of the core state.
type Snapshot struct {
	Seq            uint64                   `json:"seq"`
	Sample         entities.SensorSample    `json:"sample"`
	MoistureStatus entities.MoistureStatus  `json:"moisture_status"`
	State          entities.IrrigationState `json:"state"`
	Threshold      float64                  `json:"threshold"`
	Running        bool                     `json:"running"`
	IntervalMs     int64                    `json:"interval_ms"`
	History        []entities.HistoryEntry  `json:"history"`
	Stats          logbook.MoistureStats    `json:"stats"`
	Alerts         []entities.Alert         `json:"alerts"`
	Prediction     entities.Prediction      `json:"prediction"`
}

func (s *Service) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Seq:            s.seq,
		Sample:         s.current,
		MoistureStatus: s.current.Status(),
		State:          s.ctrl.State(),
		Threshold:      s.ctrl.Threshold(),
		Running:        s.running,
		IntervalMs:     s.interval.Milliseconds(),
		History:        s.history.All(),
		Stats:          s.history.Stats(),
		Alerts:         s.alerts.All(),
		Prediction:     entities.DefaultPrediction(),
	}
}

func (s *Service) CurrentSample() entities.SensorSample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *Service) State() entities.IrrigationState { return s.ctrl.State() }

func (s *Service) Threshold() float64 { return s.ctrl.Threshold() }

// Recent returns the last n history entries oldest-first.
func (s *Service) Recent(n int) []entities.HistoryEntry { return s.history.Recent(n) }

// Alerts returns the alert log newest-first.
func (s *Service) Alerts() []entities.Alert { return s.alerts.All() }

func (s *Service) Prediction() entities.Prediction { return entities.DefaultPrediction() }

func (s *Service) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Service) Interval() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.interval
}

// stateEventLocked must be called with mu held.
func (s *Service) stateEventLocked(reason string, at time.Time) messages.StateChangeEvent {
	st := s.ctrl.State()
	return messages.StateChangeEvent{
		Pump:       st.Pump(),
		AutoMode:   st.AutoMode,
		Running:    s.running,
		Threshold:  s.ctrl.Threshold(),
		IntervalMs: s.interval.Milliseconds(),
		Reason:     reason,
		Timestamp:  at,
	}
}
