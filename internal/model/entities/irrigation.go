package entities

// PumpState indicates whether the irrigation pump is on or off.
type PumpState string

const (
	PumpOff PumpState = "off"
	PumpOn  PumpState = "on"
)

// IrrigationState is the pair of bits the controller owns.
type IrrigationState struct {
	PumpOn   bool `json:"pump_on"`
	AutoMode bool `json:"auto_mode"`
}

// Pump maps PumpOn onto the on/off state used in published events.
func (s IrrigationState) Pump() PumpState {
	if s.PumpOn {
		return PumpOn
	}
	return PumpOff
}

// Prediction is the static crop recommendation shown on the dashboard.
// It is never recomputed.
type Prediction struct {
	Crop        string  `json:"crop"`
	PumpCommand string  `json:"pump_command"`
	Confidence  float64 `json:"confidence"`
}

// DefaultPrediction is the mocked model output.
func DefaultPrediction() Prediction {
	return Prediction{Crop: "rice", PumpCommand: "PUMP_ON", Confidence: 0.92}
}
