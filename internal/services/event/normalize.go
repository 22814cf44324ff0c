package event

import (
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/LeonardoBeccarini/smartcrop/internal/model/entities"
)

const (
	MeasurementSample = "sensor_sample"
	MeasurementEvent  = "system_event"

	sourceService = "smartcrop-simulation"
)

// EventToPoint normalises an event into an Influx point.
func EventToPoint(ev Event) *write.Point {
	switch ev.Kind {
	case KindSample:
		return sampleToPoint(ev)
	case KindAlert:
		return alertToPoint(ev)
	default:
		return stateToPoint(ev)
	}
}

func sampleToPoint(ev Event) *write.Point {
	s := ev.Entry.Sample
	tags := map[string]string{
		"source_service":  sourceService,
		"moisture_status": string(s.Status()),
	}
	fields := map[string]interface{}{
		"seq":           int64(ev.Seq),
		"soil_moisture": s.SoilMoisture,
		"temperature":   s.Temperature,
		"humidity":      s.Humidity,
		"n":             s.Nitrogen,
		"p":             s.Phosphorus,
		"k":             s.Potassium,
		"rainfall":      s.Rainfall,
	}
	return influxdb2.NewPoint(MeasurementSample, tags, fields, ev.Entry.Timestamp)
}

func alertToPoint(ev Event) *write.Point {
	a := ev.Alert
	tags := map[string]string{
		"event_type":     "alert",
		"source_service": sourceService,
		"severity":       severity(a.Kind),
		"kind":           string(a.Kind),
	}
	fields := map[string]interface{}{
		"id":      int64(a.ID),
		"message": a.Message,
		"count":   int64(1),
	}
	return influxdb2.NewPoint(MeasurementEvent, tags, fields, a.Time)
}

func stateToPoint(ev Event) *write.Point {
	st := ev.State
	tags := map[string]string{
		"event_type":     "state_change",
		"source_service": sourceService,
		"severity":       "info",
		"reason":         st.Reason,
	}
	fields := map[string]interface{}{
		"pump_on":     st.Pump == entities.PumpOn,
		"auto_mode":   st.AutoMode,
		"running":     st.Running,
		"threshold":   st.Threshold,
		"interval_ms": st.IntervalMs,
		"count":       int64(1),
	}
	return influxdb2.NewPoint(MeasurementEvent, tags, fields, st.Timestamp)
}

// severity maps alert kinds onto the info|warning|error scale used in tags.
func severity(k entities.AlertKind) string {
	if k == entities.AlertWarning {
		return "warning"
	}
	return "info"
}
