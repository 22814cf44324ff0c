package entities

const (
	DefaultMoistureThreshold = 35.0
	MinMoistureThreshold     = 20.0
	MaxMoistureThreshold     = 60.0
)

// Policy holds the soil-moisture threshold of the auto-irrigation policy.
// Below the threshold the policy wants the pump on.
type Policy struct {
	MoistureThreshold float64 `json:"moisture_threshold"`
}

// WantsPump reports the desired pump state for a sample.
func (p Policy) WantsPump(s SensorSample) bool {
	return s.SoilMoisture < p.MoistureThreshold
}

// ClampThreshold keeps a threshold inside the operator-selectable range.
func ClampThreshold(v float64) float64 {
	return Bounds{Min: MinMoistureThreshold, Max: MaxMoistureThreshold}.Clamp(v)
}
