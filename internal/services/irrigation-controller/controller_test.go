package irrigation_controller

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/LeonardoBeccarini/smartcrop/internal/logbook"
	"github.com/LeonardoBeccarini/smartcrop/internal/model/entities"
)

var testNow = time.Date(2025, 6, 1, 8, 30, 0, 0, time.UTC)

func newTestController(t *testing.T) (*Controller, *logbook.AlertLog) {
	t.Helper()
	alerts := logbook.NewAlertLog(logbook.AlertCapacity)
	return NewController(alerts, func() time.Time { return testNow }, zaptest.NewLogger(t)), alerts
}

func moisture(v float64) entities.SensorSample {
	s := entities.DefaultSample()
	s.SoilMoisture = v
	return s
}

func TestController_InitialState(t *testing.T) {
	c, alerts := newTestController(t)

	assert.Equal(t, entities.IrrigationState{PumpOn: false, AutoMode: true}, c.State())
	assert.Equal(t, entities.DefaultMoistureThreshold, c.Threshold())
	assert.Zero(t, alerts.Len())
}

// Scenarios A, B and C run on the same controller.
func TestController_AutoScenarios(t *testing.T) {
	c, alerts := newTestController(t)

	// initial sample at the threshold: pump stays off
	_, fired := c.Evaluate(moisture(35))
	require.False(t, fired)

	// A: dry sample turns the pump on with one warning
	a, fired := c.Evaluate(moisture(28))
	require.True(t, fired)
	assert.True(t, c.State().PumpOn)
	assert.Equal(t, entities.AlertWarning, a.Kind)
	assert.Equal(t, "Pump activated - Low soil moisture", a.Message)
	assert.Equal(t, testNow, a.Time)
	require.Len(t, alerts.All(), 1)

	// B: still dry, no duplicate
	before := alerts.All()
	_, fired = c.Evaluate(moisture(25))
	assert.False(t, fired)
	assert.True(t, c.State().PumpOn)
	assert.Equal(t, before, alerts.All())

	// C: wet sample turns it off with one success
	a, fired = c.Evaluate(moisture(40))
	require.True(t, fired)
	assert.False(t, c.State().PumpOn)
	assert.Equal(t, entities.AlertSuccess, a.Kind)
	assert.Equal(t, "Pump deactivated", a.Message)

	all := alerts.All()
	require.Len(t, all, 2)
	assert.Equal(t, "Pump deactivated", all[0].Message)
	assert.Equal(t, "Pump activated - Low soil moisture", all[1].Message)
}

func TestController_EdgeTriggeredOnce(t *testing.T) {
	c, alerts := newTestController(t)

	for _, m := range []float64{34, 20, 12, 10, 33.9, 30} {
		c.Evaluate(moisture(m))
	}

	all := alerts.All()
	require.Len(t, all, 1)
	assert.Equal(t, MsgPumpActivated, all[0].Message)
}

// Scenario D.
func TestController_ManualToggleTwice(t *testing.T) {
	c, alerts := newTestController(t)
	orig := c.State().PumpOn

	require.True(t, c.SetAutoMode(false))

	a1, ok := c.ManualToggle()
	require.True(t, ok)
	assert.Equal(t, entities.AlertInfo, a1.Kind)
	assert.Equal(t, "Pump manually activated", a1.Message)
	assert.True(t, c.State().PumpOn)

	a2, ok := c.ManualToggle()
	require.True(t, ok)
	assert.Equal(t, "Pump manually deactivated", a2.Message)

	assert.Equal(t, orig, c.State().PumpOn)
	all := alerts.All()
	require.Len(t, all, 2)
	for _, a := range all {
		assert.Equal(t, entities.AlertInfo, a.Kind)
	}
}

func TestController_ManualToggleIgnoredInAuto(t *testing.T) {
	c, alerts := newTestController(t)
	before := c.State()

	_, ok := c.ManualToggle()

	assert.False(t, ok)
	assert.Equal(t, before, c.State())
	assert.Zero(t, alerts.Len())
}

func TestController_ManualModeIgnoresPolicy(t *testing.T) {
	c, alerts := newTestController(t)
	c.SetAutoMode(false)

	_, fired := c.Evaluate(moisture(11))

	assert.False(t, fired)
	assert.False(t, c.State().PumpOn)
	assert.Zero(t, alerts.Len())
}

func TestController_SetAutoModeFreezesAndResumes(t *testing.T) {
	c, alerts := newTestController(t)
	c.Evaluate(moisture(20)) // pump on
	require.True(t, c.State().PumpOn)

	assert.True(t, c.SetAutoMode(false))
	assert.False(t, c.SetAutoMode(false), "idempotent")
	assert.True(t, c.State().PumpOn, "pump frozen")

	// re-enabling raises no alert by itself
	n := alerts.Len()
	assert.True(t, c.SetAutoMode(true))
	assert.Equal(t, n, alerts.Len())

	// next evaluation governs the pump
	_, fired := c.Evaluate(moisture(80))
	assert.True(t, fired)
	assert.False(t, c.State().PumpOn)
}

func TestController_Threshold(t *testing.T) {
	c, _ := newTestController(t)

	assert.Equal(t, 45.0, c.SetMoistureThreshold(45))
	_, fired := c.Evaluate(moisture(40))
	assert.True(t, fired)
	assert.True(t, c.State().PumpOn)

	assert.Equal(t, entities.MinMoistureThreshold, c.SetMoistureThreshold(-10))
	assert.Equal(t, entities.MaxMoistureThreshold, c.SetMoistureThreshold(95))
}
