package irrigation_controller

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/smartcrop/internal/logbook"
	"github.com/LeonardoBeccarini/smartcrop/internal/model/entities"
)

// Alert messages pushed on pump transitions.
const (
	MsgPumpActivated           = "Pump activated - Low soil moisture"
	MsgPumpDeactivated         = "Pump deactivated"
	MsgPumpManuallyActivated   = "Pump manually activated"
	MsgPumpManuallyDeactivated = "Pump manually deactivated"
)

// ===================== Controller =====================

// Controller owns the (autoMode, pumpOn) pair and the auto-irrigation policy.
// Every operation is a single read-modify-write under mu and none can fail:
// calls that are not allowed in the current mode are no-ops.
type Controller struct {
	mu     sync.Mutex
	state  entities.IrrigationState
	policy entities.Policy

	alerts *logbook.AlertLog
	now    func() time.Time
	logger *zap.Logger
}

// NewController starts in auto mode with the pump off and the default threshold.
func NewController(alerts *logbook.AlertLog, now func() time.Time, logger *zap.Logger) *Controller {
	if alerts == nil {
		alerts = logbook.NewAlertLog(logbook.AlertCapacity)
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		state:  entities.IrrigationState{PumpOn: false, AutoMode: true},
		policy: entities.Policy{MoistureThreshold: entities.DefaultMoistureThreshold},
		alerts: alerts,
		now:    now,
		logger: logger.With(zap.String("component", "irrigation-controller")),
	}
}

// Evaluate applies the policy to s when auto mode is on. An alert is pushed
// only on an edge crossing, i.e. when the desired pump state differs from the
// current one; repeated samples on the same side of the threshold are silent.
func (c *Controller) Evaluate(s entities.SensorSample) (entities.Alert, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.AutoMode {
		return entities.Alert{}, false
	}
	desired := c.policy.WantsPump(s)
	if desired == c.state.PumpOn {
		return entities.Alert{}, false
	}
	c.state.PumpOn = desired

	kind, msg := entities.AlertSuccess, MsgPumpDeactivated
	if desired {
		kind, msg = entities.AlertWarning, MsgPumpActivated
	}
	a := c.alerts.Push(kind, msg, c.now())
	c.logger.Info("decision: pump edge",
		zap.Bool("pump_on", desired),
		zap.Float64("moisture", s.SoilMoisture),
		zap.Float64("threshold", c.policy.MoistureThreshold),
		zap.Uint64("alert_id", a.ID))
	return a, true
}

// ManualToggle flips the pump. It is ignored while auto mode is on, mirroring
// the disabled pump button: no state change and no alert.
func (c *Controller) ManualToggle() (entities.Alert, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.AutoMode {
		c.logger.Debug("manual toggle ignored in auto mode")
		return entities.Alert{}, false
	}
	c.state.PumpOn = !c.state.PumpOn

	msg := MsgPumpManuallyDeactivated
	if c.state.PumpOn {
		msg = MsgPumpManuallyActivated
	}
	a := c.alerts.Push(entities.AlertInfo, msg, c.now())
	c.logger.Info("manual: pump toggled", zap.Bool("pump_on", c.state.PumpOn), zap.Uint64("alert_id", a.ID))
	return a, true
}

// SetAutoMode switches between policy and operator control. Enabling leaves
// the pump to the next evaluation; disabling freezes it. Neither pushes an
// alert. It reports whether the mode changed.
func (c *Controller) SetAutoMode(on bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.AutoMode == on {
		return false
	}
	c.state.AutoMode = on
	c.logger.Info("mode changed", zap.Bool("auto_mode", on), zap.Bool("pump_on", c.state.PumpOn))
	return true
}

// SetMoistureThreshold clamps v into the selectable range and returns the
// stored value. It takes effect from the next evaluation.
func (c *Controller) SetMoistureThreshold(v float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.policy.MoistureThreshold = entities.ClampThreshold(v)
	c.logger.Info("threshold changed", zap.Float64("requested", v), zap.Float64("threshold", c.policy.MoistureThreshold))
	return c.policy.MoistureThreshold
}

func (c *Controller) State() entities.IrrigationState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Threshold() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.policy.MoistureThreshold
}
