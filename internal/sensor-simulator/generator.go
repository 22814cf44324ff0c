package sensor_simulator

import (
	"math/rand"
	"sync"
	"time"

	"github.com/LeonardoBeccarini/smartcrop/internal/model/entities"
)

// ====== Tunables ======
// Half-width of the uniform step applied to each field per tick.
const (
	moistureStep    = 2.5
	temperatureStep = 1.0
	humidityStep    = 1.5
	nitrogenStep    = 2.5
	phosphorusStep  = 1.5
	potassiumStep   = 1.5
	rainfallStep    = 5.0
)

// RandSource yields uniformly distributed values in [0, 1).
// *rand.Rand satisfies it.
type RandSource interface {
	Float64() float64
}

// NewRandSource returns a seeded source. Seed 0 means time-based.
func NewRandSource(seed int64) RandSource {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

// RandomWalk produces the next telemetry sample from the previous one by a
// bounded random perturbation of every field.
type RandomWalk struct {
	mu  sync.Mutex
	rnd RandSource
}

// NewRandomWalk builds a simulator drawing from rnd.
func NewRandomWalk(rnd RandSource) *RandomWalk {
	if rnd == nil {
		rnd = NewRandSource(0)
	}
	return &RandomWalk{rnd: rnd}
}

// Next never fails: out-of-range inputs and results are clamped.
func (w *RandomWalk) Next(prev entities.SensorSample) entities.SensorSample {
	w.mu.Lock()
	defer w.mu.Unlock()

	prev = prev.Clamped()
	return entities.SensorSample{
		SoilMoisture: prev.SoilMoisture + w.step(moistureStep),
		Temperature:  prev.Temperature + w.step(temperatureStep),
		Humidity:     prev.Humidity + w.step(humidityStep),
		Nitrogen:     prev.Nitrogen + w.step(nitrogenStep),
		Phosphorus:   prev.Phosphorus + w.step(phosphorusStep),
		Potassium:    prev.Potassium + w.step(potassiumStep),
		Rainfall:     prev.Rainfall + w.step(rainfallStep),
	}.Clamped()
}

// step draws from [-amp, +amp).
func (w *RandomWalk) step(amp float64) float64 {
	return (w.rnd.Float64() - 0.5) * 2 * amp
}
