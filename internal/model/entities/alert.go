package entities

import "time"

// AlertKind is the severity class of an operator notification.
type AlertKind string

const (
	AlertInfo    AlertKind = "info"
	AlertWarning AlertKind = "warning"
	AlertSuccess AlertKind = "success"
)

// Alert is one entry of the operator-facing event log.
type Alert struct {
	ID      uint64    `json:"id"`
	Kind    AlertKind `json:"kind"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// HistoryEntry is a sample captured at a tick.
type HistoryEntry struct {
	Sample    SensorSample `json:"sample"`
	Timestamp time.Time    `json:"timestamp"`
}
