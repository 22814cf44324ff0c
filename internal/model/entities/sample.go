package entities

import "math"

// Bounds is the closed range a sensor field is allowed to take.
type Bounds struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Clamp forces v into [Min, Max]. NaN collapses to Min.
func (b Bounds) Clamp(v float64) float64 {
	if math.IsNaN(v) || v < b.Min {
		return b.Min
	}
	if v > b.Max {
		return b.Max
	}
	return v
}

// Contains reports whether v lies in [Min, Max].
func (b Bounds) Contains(v float64) bool {
	return v >= b.Min && v <= b.Max
}

// Declared ranges of every sensor field.
var (
	SoilMoistureBounds = Bounds{Min: 10, Max: 100}
	TemperatureBounds  = Bounds{Min: 15, Max: 35}
	HumidityBounds     = Bounds{Min: 40, Max: 95}
	NitrogenBounds     = Bounds{Min: 0, Max: 140}
	PhosphorusBounds   = Bounds{Min: 5, Max: 145}
	PotassiumBounds    = Bounds{Min: 5, Max: 205}
	RainfallBounds     = Bounds{Min: 20, Max: 300}
)

// SensorSample is one reading of the seven simulated sensors.
// Values are percent (moisture, humidity), °C, mg/kg (NPK) and mm (rainfall).
type SensorSample struct {
	SoilMoisture float64 `json:"soil_moisture"`
	Temperature  float64 `json:"temperature"`
	Humidity     float64 `json:"humidity"`
	Nitrogen     float64 `json:"n"`
	Phosphorus   float64 `json:"p"`
	Potassium    float64 `json:"k"`
	Rainfall     float64 `json:"rainfall"`
}

// DefaultSample is the reading the simulation starts from.
func DefaultSample() SensorSample {
	return SensorSample{
		SoilMoisture: 35,
		Temperature:  21.5,
		Humidity:     83.0,
		Nitrogen:     90,
		Phosphorus:   42,
		Potassium:    43,
		Rainfall:     203.2,
	}
}

// Clamped returns a copy of s with every field forced into its range.
func (s SensorSample) Clamped() SensorSample {
	return SensorSample{
		SoilMoisture: SoilMoistureBounds.Clamp(s.SoilMoisture),
		Temperature:  TemperatureBounds.Clamp(s.Temperature),
		Humidity:     HumidityBounds.Clamp(s.Humidity),
		Nitrogen:     NitrogenBounds.Clamp(s.Nitrogen),
		Phosphorus:   PhosphorusBounds.Clamp(s.Phosphorus),
		Potassium:    PotassiumBounds.Clamp(s.Potassium),
		Rainfall:     RainfallBounds.Clamp(s.Rainfall),
	}
}

// InRange reports whether every field lies within its declared range.
func (s SensorSample) InRange() bool {
	return SoilMoistureBounds.Contains(s.SoilMoisture) &&
		TemperatureBounds.Contains(s.Temperature) &&
		HumidityBounds.Contains(s.Humidity) &&
		NitrogenBounds.Contains(s.Nitrogen) &&
		PhosphorusBounds.Contains(s.Phosphorus) &&
		PotassiumBounds.Contains(s.Potassium) &&
		RainfallBounds.Contains(s.Rainfall)
}

// MoistureStatus is the coarse label shown next to the soil moisture gauge.
type MoistureStatus string

const (
	MoistureDry    MoistureStatus = "dry"
	MoistureNormal MoistureStatus = "normal"
	MoistureWet    MoistureStatus = "wet"
)

// Status classifies the soil moisture of s.
func (s SensorSample) Status() MoistureStatus {
	switch {
	case s.SoilMoisture < 30:
		return MoistureDry
	case s.SoilMoisture < 50:
		return MoistureNormal
	default:
		return MoistureWet
	}
}
