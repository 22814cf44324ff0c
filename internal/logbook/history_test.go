package logbook

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/smartcrop/internal/model/entities"
)

func entryAt(i int, moisture float64) entities.HistoryEntry {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return entities.HistoryEntry{
		Sample:    entities.SensorSample{SoilMoisture: moisture},
		Timestamp: base.Add(time.Duration(i) * 3 * time.Second),
	}
}

func TestHistoryBuffer_KeepsLastTwentyInOrder(t *testing.T) {
	h := NewHistoryBuffer(HistoryCapacity)
	for i := 0; i < 25; i++ {
		h.Append(entryAt(i, float64(10+i)))
		require.LessOrEqual(t, h.Len(), HistoryCapacity)
	}

	all := h.All()
	require.Len(t, all, 20)
	for i, e := range all {
		assert.Equal(t, entryAt(i+5, float64(15+i)), e)
	}
}

func TestHistoryBuffer_Recent(t *testing.T) {
	h := NewHistoryBuffer(0)
	assert.Equal(t, HistoryCapacity, h.Cap())
	assert.Empty(t, h.Recent(5))

	for i := 0; i < 8; i++ {
		h.Append(entryAt(i, float64(i)))
	}

	last3 := h.Recent(3)
	require.Len(t, last3, 3)
	assert.Equal(t, 5.0, last3[0].Sample.SoilMoisture)
	assert.Equal(t, 7.0, last3[2].Sample.SoilMoisture)

	assert.Len(t, h.Recent(100), 8)
	assert.Equal(t, 8, h.Len(), "Recent must not mutate")
}

func TestHistoryBuffer_RecentReturnsCopy(t *testing.T) {
	h := NewHistoryBuffer(4)
	h.Append(entryAt(0, 30))

	got := h.Recent(1)
	got[0].Sample.SoilMoisture = 99

	assert.Equal(t, 30.0, h.Recent(1)[0].Sample.SoilMoisture)
}

func TestHistoryBuffer_Stats(t *testing.T) {
	h := NewHistoryBuffer(3)
	assert.Equal(t, MoistureStats{}, h.Stats())

	for i, m := range []float64{50, 20, 30, 40} {
		h.Append(entryAt(i, m))
	}
	st := h.Stats()
	assert.Equal(t, 3, st.Count)
	assert.InDelta(t, 30.0, st.Mean, 1e-9)
	assert.Equal(t, 20.0, st.Min)
	assert.Equal(t, 40.0, st.Max)
}
