package event

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/smartcrop/internal/model/entities"
	"github.com/LeonardoBeccarini/smartcrop/internal/model/messages"
)

// Hooks observe dispatcher outcomes; nil fields are skipped.
type Hooks struct {
	OnDrop      func(k Kind)
	OnSinkError func(sink string, k Kind)
}

// Dispatcher fans core events out to the sinks on its own goroutine.
// Enqueueing never blocks: with a full buffer the event is dropped and counted.
type Dispatcher struct {
	ch      chan Event
	sinks   []Sink
	hooks   Hooks
	logger  *zap.Logger
	dropped atomic.Uint64
	done    chan struct{}
}

func NewDispatcher(buffer int, logger *zap.Logger, hooks Hooks, sinks ...Sink) *Dispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		ch:     make(chan Event, buffer),
		sinks:  sinks,
		hooks:  hooks,
		logger: logger.With(zap.String("component", "dispatcher")),
		done:   make(chan struct{}),
	}
}

func (d *Dispatcher) OnSample(seq uint64, e entities.HistoryEntry) {
	d.enqueue(Event{Kind: KindSample, Seq: seq, Entry: e})
}

func (d *Dispatcher) OnAlert(a entities.Alert) {
	d.enqueue(Event{Kind: KindAlert, Alert: a})
}

func (d *Dispatcher) OnStateChange(evt messages.StateChangeEvent) {
	d.enqueue(Event{Kind: KindState, State: evt})
}

func (d *Dispatcher) enqueue(ev Event) {
	select {
	case d.ch <- ev:
	default:
		d.dropped.Add(1)
		if d.hooks.OnDrop != nil {
			d.hooks.OnDrop(ev.Kind)
		}
		d.logger.Debug("buffer full, event dropped", zap.String("kind", string(ev.Kind)))
	}
}

// Dropped counts events lost to a full buffer.
func (d *Dispatcher) Dropped() uint64 { return d.dropped.Load() }

// Run delivers events until ctx is done, then drains what is already
// buffered so the last state reaches the sinks.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer close(d.done)
	for {
		select {
		case ev := <-d.ch:
			d.deliver(ev)
		case <-ctx.Done():
			for {
				select {
				case ev := <-d.ch:
					d.deliver(ev)
				default:
					return nil
				}
			}
		}
	}
}

// Done is closed once Run returned.
func (d *Dispatcher) Done() <-chan struct{} { return d.done }

func (d *Dispatcher) deliver(ev Event) {
	for _, s := range d.sinks {
		if err := s.Handle(ev); err != nil {
			if d.hooks.OnSinkError != nil {
				d.hooks.OnSinkError(s.Name(), ev.Kind)
			}
			d.logger.Warn("sink failed", zap.String("sink", s.Name()), zap.String("kind", string(ev.Kind)), zap.Error(err))
		}
	}
}
