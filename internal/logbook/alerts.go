package logbook

import (
	"sync"
	"time"

	"github.com/LeonardoBeccarini/smartcrop/internal/model/entities"
)

// AlertCapacity is the number of alerts kept by default.
const AlertCapacity = 10

// AlertLog is the newest-first log of operator notifications.
// Ids are assigned under the write lock, so they are strictly increasing
// across concurrent pushes and follow log order.
type AlertLog struct {
	mu     sync.RWMutex
	ring   *ring[entities.Alert]
	lastID uint64
}

func NewAlertLog(capacity int) *AlertLog {
	if capacity <= 0 {
		capacity = AlertCapacity
	}
	return &AlertLog{ring: newRing[entities.Alert](capacity)}
}

// Push records a new alert at the front and returns it.
// The oldest alert is dropped when the log is full.
func (l *AlertLog) Push(kind entities.AlertKind, message string, at time.Time) entities.Alert {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.lastID++
	a := entities.Alert{
		ID:      l.lastID,
		Kind:    kind,
		Message: message,
		Time:    at,
	}
	l.ring.push(a)
	return a
}

// All returns a newest-first copy of the log.
func (l *AlertLog) All() []entities.Alert {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := l.ring.len()
	out := make([]entities.Alert, n)
	for i := 0; i < n; i++ {
		out[i] = l.ring.at(n - 1 - i)
	}
	return out
}

func (l *AlertLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ring.len()
}

// LastID is the id of the newest alert, 0 if none was ever pushed.
func (l *AlertLog) LastID() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastID
}
