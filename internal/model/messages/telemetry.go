package messages

import (
	"time"

	"github.com/LeonardoBeccarini/smartcrop/internal/model/entities"
)

// TelemetryMessage is published for every tick.
type TelemetryMessage struct {
	Seq            uint64                  `json:"seq"`
	Sample         entities.SensorSample   `json:"sample"`
	MoistureStatus entities.MoistureStatus `json:"moisture_status"`
	Timestamp      time.Time               `json:"timestamp"`
}

// AlertEvent mirrors an alert pushed to the alert log.
type AlertEvent struct {
	ID        uint64             `json:"id"`
	Kind      entities.AlertKind `json:"kind"`
	Message   string             `json:"message"`
	Timestamp time.Time          `json:"timestamp"`
}

// Reasons carried by StateChangeEvent.
const (
	ReasonPolicy     = "policy"
	ReasonManual     = "manual"
	ReasonMode       = "mode"
	ReasonSimulation = "simulation"
	ReasonThreshold  = "threshold"
	ReasonInterval   = "interval"
)

// StateChangeEvent is emitted when the pump, the mode, the policy or the
// simulation state changes. It always carries the full state.
type StateChangeEvent struct {
	Pump       entities.PumpState `json:"pump"`
	AutoMode   bool               `json:"auto_mode"`
	Running    bool               `json:"running"`
	Threshold  float64            `json:"threshold"`
	IntervalMs int64              `json:"interval_ms"`
	Reason     string             `json:"reason"`
	Timestamp  time.Time          `json:"timestamp"`
}
