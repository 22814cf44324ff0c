package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/LeonardoBeccarini/smartcrop/internal/model/entities"
	"github.com/LeonardoBeccarini/smartcrop/internal/services/event"
)

const namespace = "smartcrop"

var (
	TicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "simulation",
		Name:      "ticks_total",
		Help:      "Total simulation ticks applied",
	})

	AlertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "alerts",
		Name:      "pushed_total",
		Help:      "Total alerts pushed, by kind",
	}, []string{"kind"})

	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "commands",
		Name:      "received_total",
		Help:      "Operator commands received on the bus, by command and result",
	}, []string{"command", "result"})

	SinkDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sink",
		Name:      "dropped_total",
		Help:      "Events dropped because the dispatcher buffer was full",
	}, []string{"kind"})

	SinkErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sink",
		Name:      "errors_total",
		Help:      "Sink delivery failures, by sink and event kind",
	}, []string{"sink", "kind"})

	SensorValue = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "sensor",
		Name:      "value",
		Help:      "Latest simulated reading, by field",
	}, []string{"field"})

	PumpOn = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "irrigation",
		Name:      "pump_on",
		Help:      "1 while the pump is on",
	})

	AutoMode = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "irrigation",
		Name:      "auto_mode",
		Help:      "1 while auto-irrigation is enabled",
	})

	MoistureThreshold = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "irrigation",
		Name:      "moisture_threshold_percent",
		Help:      "Soil moisture below which the pump is switched on",
	})

	Running = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "simulation",
		Name:      "running",
		Help:      "1 while the simulation clock is ticking",
	})
)

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Sink mirrors core events into the collectors above.
type Sink struct{}

func (Sink) Name() string { return "metrics" }

func (Sink) Handle(ev event.Event) error {
	switch ev.Kind {
	case event.KindSample:
		TicksTotal.Inc()
		ObserveSample(ev.Entry.Sample)
	case event.KindAlert:
		AlertsTotal.WithLabelValues(string(ev.Alert.Kind)).Inc()
	case event.KindState:
		PumpOn.Set(boolGauge(ev.State.Pump == entities.PumpOn))
		AutoMode.Set(boolGauge(ev.State.AutoMode))
		Running.Set(boolGauge(ev.State.Running))
		MoistureThreshold.Set(ev.State.Threshold)
	}
	return nil
}

func ObserveSample(s entities.SensorSample) {
	SensorValue.WithLabelValues("soil_moisture").Set(s.SoilMoisture)
	SensorValue.WithLabelValues("temperature").Set(s.Temperature)
	SensorValue.WithLabelValues("humidity").Set(s.Humidity)
	SensorValue.WithLabelValues("n").Set(s.Nitrogen)
	SensorValue.WithLabelValues("p").Set(s.Phosphorus)
	SensorValue.WithLabelValues("k").Set(s.Potassium)
	SensorValue.WithLabelValues("rainfall").Set(s.Rainfall)
}

// ObserveState seeds the state gauges before the first event arrives.
func ObserveState(st entities.IrrigationState, running bool, threshold float64) {
	PumpOn.Set(boolGauge(st.PumpOn))
	AutoMode.Set(boolGauge(st.AutoMode))
	Running.Set(boolGauge(running))
	MoistureThreshold.Set(threshold)
}

// DispatcherHooks counts drops and sink failures.
func DispatcherHooks() event.Hooks {
	return event.Hooks{
		OnDrop: func(k event.Kind) {
			SinkDroppedTotal.WithLabelValues(string(k)).Inc()
		},
		OnSinkError: func(sink string, k event.Kind) {
			SinkErrorsTotal.WithLabelValues(sink, string(k)).Inc()
		},
	}
}

// CommandResult counts one bus command outcome.
func CommandResult(command, result string) {
	if command == "" {
		command = "unknown"
	}
	CommandsTotal.WithLabelValues(command, result).Inc()
}
