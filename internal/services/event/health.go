package event

import "time"

// Connectivity is the part of an MQTT client the probes look at.
type Connectivity interface {
	IsConnectionOpen() bool
}

// HealthStatus is served on /healthz.
type HealthStatus struct {
	Status          string  `json:"status"`
	Running         bool    `json:"running"`
	MQTTEnabled     bool    `json:"mqtt_enabled"`
	MQTTConnected   bool    `json:"mqtt_connected"`
	InfluxEnabled   bool    `json:"influx_enabled"`
	LastWriteErrorS float64 `json:"last_write_error_age_sec,omitempty"`
	DroppedEvents   uint64  `json:"dropped_events"`
}

// Health derives liveness and readiness from the optional sinks. A disabled
// sink never degrades the status.
type Health struct {
	mqtt       Connectivity
	writer     *Writer
	dispatcher *Dispatcher
	running    func() bool
	minErrAge  time.Duration
}

// NewHealth accepts nil mqtt and writer for disabled sinks.
func NewHealth(mqtt Connectivity, writer *Writer, d *Dispatcher, running func() bool, minErrAge time.Duration) *Health {
	if running == nil {
		running = func() bool { return false }
	}
	return &Health{mqtt: mqtt, writer: writer, dispatcher: d, running: running, minErrAge: minErrAge}
}

func (h *Health) Status() HealthStatus {
	st := HealthStatus{
		Running:       h.running(),
		MQTTEnabled:   h.mqtt != nil,
		MQTTConnected: h.mqtt != nil && h.mqtt.IsConnectionOpen(),
		InfluxEnabled: h.writer != nil,
	}
	if h.dispatcher != nil {
		st.DroppedEvents = h.dispatcher.Dropped()
	}
	influxOK := true
	if h.writer != nil {
		age := h.writer.LastErrorAge()
		st.LastWriteErrorS = age.Seconds()
		influxOK = age > 30*time.Second
	}
	mqttOK := !st.MQTTEnabled || st.MQTTConnected

	switch {
	case mqttOK && influxOK:
		st.Status = "ok"
	case mqttOK || influxOK:
		st.Status = "degraded"
	default:
		st.Status = "down"
	}
	return st
}

// Ready is true when every enabled sink is usable.
func (h *Health) Ready() bool {
	if h.mqtt != nil && !h.mqtt.IsConnectionOpen() {
		return false
	}
	if h.writer != nil && h.writer.LastErrorAge() <= h.minErrAge {
		return false
	}
	return true
}
