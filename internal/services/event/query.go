package event

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api"
)

var ErrQueryUnavailable = errors.New("telemetry store not configured")

// MoisturePoint is one stored soil-moisture reading.
type MoisturePoint struct {
	Moisture float64 `json:"soil_moisture"`
	Time     string  `json:"time"` // RFC3339
}

// QueryParams bounds a stored-telemetry lookup.
type QueryParams struct {
	Minutes int
	Limit   int
	Timeout time.Duration
}

// ParseQueryParams reads minutes, limit and timeout_ms, clamping each into
// its accepted range. Missing or malformed values fall back to defaults.
func ParseQueryParams(get func(string) string) QueryParams {
	num := func(k string, def, min, max int) int {
		v := strings.TrimSpace(get(k))
		if v == "" {
			return def
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return def
		}
		if n < min {
			return min
		}
		if n > max {
			return max
		}
		return n
	}
	return QueryParams{
		Minutes: num("minutes", 60, 1, 7*24*60),
		Limit:   num("limit", 100, 1, 1000),
		Timeout: time.Duration(num("timeout_ms", 2000, 200, 5000)) * time.Millisecond,
	}
}

func buildMoistureFlux(bucket string, minutes, limit int) string {
	return fmt.Sprintf(`
from(bucket: %q)
  |> range(start: -%dm)
  |> filter(fn: (r) => r._measurement == %q)
  |> filter(fn: (r) => r._field == "soil_moisture")
  |> keep(columns: ["_time","_value"])
  |> sort(columns: ["_time"], desc: true)
  |> limit(n:%d)
`, bucket, minutes, MeasurementSample, limit)
}

// TelemetryQuery reads back sensor samples written by the Influx sink.
type TelemetryQuery struct {
	api    api.QueryAPI
	bucket string
}

func NewTelemetryQuery(q api.QueryAPI, bucket string) *TelemetryQuery {
	return &TelemetryQuery{api: q, bucket: bucket}
}

// RecentMoisture returns stored moisture readings newest-first.
func (t *TelemetryQuery) RecentMoisture(ctx context.Context, p QueryParams) ([]MoisturePoint, error) {
	if t == nil || t.api == nil {
		return nil, ErrQueryUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	res, err := t.api.Query(ctx, buildMoistureFlux(t.bucket, p.Minutes, p.Limit))
	if err != nil {
		return nil, fmt.Errorf("influx query: %w", err)
	}
	defer res.Close()

	out := make([]MoisturePoint, 0, p.Limit)
	for res.Next() {
		rec := res.Record()
		v, ok := toFloat(rec.Value())
		if !ok {
			continue
		}
		out = append(out, MoisturePoint{Moisture: v, Time: rec.Time().UTC().Format(time.RFC3339)})
	}
	if err := res.Err(); err != nil {
		return out, fmt.Errorf("influx iterate: %w", err)
	}
	return out, nil
}

func toFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	}
	return 0, false
}
