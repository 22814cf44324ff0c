package logbook

import (
	"math"
	"sync"

	"github.com/LeonardoBeccarini/smartcrop/internal/model/entities"
)

// HistoryCapacity is the number of samples kept by default.
const HistoryCapacity = 20

// HistoryBuffer is the oldest-first log of captured samples.
type HistoryBuffer struct {
	mu   sync.RWMutex
	ring *ring[entities.HistoryEntry]
}

func NewHistoryBuffer(capacity int) *HistoryBuffer {
	if capacity <= 0 {
		capacity = HistoryCapacity
	}
	return &HistoryBuffer{ring: newRing[entities.HistoryEntry](capacity)}
}

// Append adds e at the back, evicting the oldest entry when full.
func (h *HistoryBuffer) Append(e entities.HistoryEntry) {
	h.mu.Lock()
	h.ring.push(e)
	h.mu.Unlock()
}

// Recent returns the last n entries oldest-first. The buffer is not modified.
func (h *HistoryBuffer) Recent(n int) []entities.HistoryEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ring.tail(n)
}

// All is Recent(Len()).
func (h *HistoryBuffer) All() []entities.HistoryEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ring.tail(h.ring.len())
}

func (h *HistoryBuffer) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ring.len()
}

func (h *HistoryBuffer) Cap() int { return h.ring.cap() }

// MoistureStats summarises soil moisture over the buffered window.
type MoistureStats struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// Stats returns zero values when the buffer is empty.
func (h *HistoryBuffer) Stats() MoistureStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := h.ring.len()
	if n == 0 {
		return MoistureStats{}
	}
	st := MoistureStats{Count: n, Min: math.MaxFloat64, Max: -math.MaxFloat64}
	var sum float64
	for i := 0; i < n; i++ {
		v := h.ring.at(i).Sample.SoilMoisture
		sum += v
		st.Min = math.Min(st.Min, v)
		st.Max = math.Max(st.Max, v)
	}
	st.Mean = sum / float64(n)
	return st
}
