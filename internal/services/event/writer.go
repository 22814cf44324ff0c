package event

import (
	"sync"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.uber.org/zap"
)

// PointWriter is the part of the Influx async WriteAPI the writer needs.
type PointWriter interface {
	WritePoint(point *write.Point)
	Errors() <-chan error
	Flush()
}

// Writer is the Influx sink. It tracks the last asynchronous write error
// for the health probes.
type Writer struct {
	api    PointWriter
	logger *zap.Logger
	now    func() time.Time

	mu      sync.RWMutex
	lastErr time.Time
	counts  map[Kind]int64
}

// NewWriter starts the error listener of w.
func NewWriter(w PointWriter, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	ww := &Writer{
		api:     w,
		logger:  logger.With(zap.String("component", "influx-writer")),
		now:     time.Now,
		lastErr: time.Now().Add(-24 * time.Hour),
		counts:  make(map[Kind]int64),
	}
	go ww.listen(w.Errors())
	return ww
}

func (w *Writer) listen(errs <-chan error) {
	for err := range errs {
		if err == nil {
			continue
		}
		w.mu.Lock()
		w.lastErr = w.now()
		w.mu.Unlock()
		w.logger.Warn("write failed", zap.Error(err))
	}
}

func (w *Writer) Name() string { return "influx" }

// Handle queues the point; the client batches and flushes it.
func (w *Writer) Handle(ev Event) error {
	w.api.WritePoint(EventToPoint(ev))
	w.mu.Lock()
	w.counts[ev.Kind]++
	w.mu.Unlock()
	return nil
}

func (w *Writer) Flush() { w.api.Flush() }

// LastErrorAge is the time since the last write error.
func (w *Writer) LastErrorAge() time.Duration {
	if w == nil {
		return 99999 * time.Hour
	}
	w.mu.RLock()
	t := w.lastErr
	w.mu.RUnlock()
	return w.now().Sub(t)
}

func (w *Writer) Count(k Kind) int64 {
	if w == nil {
		return 0
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.counts[k]
}
