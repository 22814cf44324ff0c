package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/time/rate"

	"github.com/LeonardoBeccarini/smartcrop/internal/model/entities"
	"github.com/LeonardoBeccarini/smartcrop/internal/model/messages"
	simulator "github.com/LeonardoBeccarini/smartcrop/internal/sensor-simulator"
	"github.com/LeonardoBeccarini/smartcrop/internal/services/simulation"
	"github.com/LeonardoBeccarini/smartcrop/pkg/dedup"
)

var t0 = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

func sampleEvent(seq uint64) Event {
	return Event{Kind: KindSample, Seq: seq, Entry: entities.HistoryEntry{Sample: entities.DefaultSample(), Timestamp: t0}}
}

func alertEvent(id uint64, kind entities.AlertKind) Event {
	return Event{Kind: KindAlert, Alert: entities.Alert{ID: id, Kind: kind, Message: "m", Time: t0}}
}

func stateEvent() Event {
	return Event{Kind: KindState, State: messages.StateChangeEvent{
		Pump: entities.PumpOn, AutoMode: true, Running: true, Threshold: 35, IntervalMs: 3000,
		Reason: messages.ReasonPolicy, Timestamp: t0,
	}}
}

func tags(p *write.Point) map[string]string {
	out := map[string]string{}
	for _, t := range p.TagList() {
		out[t.Key] = t.Value
	}
	return out
}

func fields(p *write.Point) map[string]interface{} {
	out := map[string]interface{}{}
	for _, f := range p.FieldList() {
		out[f.Key] = f.Value
	}
	return out
}

// ===================== normalize =====================

func TestEventToPoint(t *testing.T) {
	p := EventToPoint(sampleEvent(4))
	assert.Equal(t, MeasurementSample, p.Name())
	assert.Equal(t, t0, p.Time())
	assert.Equal(t, "normal", tags(p)["moisture_status"])
	f := fields(p)
	assert.Equal(t, 35.0, f["soil_moisture"])
	assert.Equal(t, 203.2, f["rainfall"])
	assert.Equal(t, int64(4), f["seq"])
	assert.Len(t, f, 8)

	p = EventToPoint(alertEvent(2, entities.AlertWarning))
	assert.Equal(t, MeasurementEvent, p.Name())
	assert.Equal(t, "warning", tags(p)["severity"])
	assert.Equal(t, "alert", tags(p)["event_type"])
	assert.Equal(t, "m", fields(p)["message"])

	p = EventToPoint(alertEvent(3, entities.AlertSuccess))
	assert.Equal(t, "info", tags(p)["severity"])

	p = EventToPoint(stateEvent())
	assert.Equal(t, "state_change", tags(p)["event_type"])
	assert.Equal(t, messages.ReasonPolicy, tags(p)["reason"])
	assert.Equal(t, true, fields(p)["pump_on"])
	assert.Equal(t, int64(3000), fields(p)["interval_ms"])
}

// ===================== writer =====================

type fakeWriteAPI struct {
	mu     sync.Mutex
	points []*write.Point
	errs   chan error
	flush  int
}

func (f *fakeWriteAPI) WritePoint(p *write.Point) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points = append(f.points, p)
}
func (f *fakeWriteAPI) Errors() <-chan error { return f.errs }
func (f *fakeWriteAPI) Flush() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flush++
}

func TestWriter(t *testing.T) {
	api := &fakeWriteAPI{errs: make(chan error)}
	defer close(api.errs)
	w := NewWriter(api, zaptest.NewLogger(t))
	now := time.Now()
	w.now = func() time.Time { return now }

	require.NoError(t, w.Handle(sampleEvent(1)))
	require.NoError(t, w.Handle(alertEvent(1, entities.AlertInfo)))
	w.Flush()
	assert.Len(t, api.points, 2)
	assert.Equal(t, 1, api.flush)
	assert.Equal(t, int64(1), w.Count(KindSample))
	assert.Equal(t, int64(0), w.Count(KindState))
	assert.Greater(t, w.LastErrorAge(), time.Hour)

	api.errs <- errors.New("unauthorized")
	require.Eventually(t, func() bool { return w.LastErrorAge() == 0 }, time.Second, 5*time.Millisecond)

	var nilWriter *Writer
	assert.Equal(t, int64(0), nilWriter.Count(KindSample))
	assert.Greater(t, nilWriter.LastErrorAge(), time.Hour)
}

// ===================== publisher =====================

type fakePublisher struct {
	mu    sync.Mutex
	err   error
	calls []string
	last  []byte
	flags []bool
}

func (f *fakePublisher) PublishTo(topic string, qos byte, retained bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, topic)
	f.flags = append(f.flags, retained)
	f.last = payload
	return f.err
}

var testTopics = Topics{Telemetry: "t/tel", Alert: "t/alert", State: "t/state"}

func TestPublisher_Routes(t *testing.T) {
	fp := &fakePublisher{}
	p := NewPublisher(fp, testTopics, BreakerSettings{Fails: 3, OpenFor: time.Minute}, zaptest.NewLogger(t))

	require.NoError(t, p.Handle(sampleEvent(1)))
	assert.JSONEq(t, `{"seq":1,"moisture_status":"normal","timestamp":"2024-06-01T08:00:00Z",
		"sample":{"soil_moisture":35,"temperature":21.5,"humidity":83,"n":90,"p":42,"k":43,"rainfall":203.2}}`, string(fp.last))

	require.NoError(t, p.Handle(alertEvent(7, entities.AlertWarning)))
	assert.JSONEq(t, `{"id":7,"kind":"warning","message":"m","timestamp":"2024-06-01T08:00:00Z"}`, string(fp.last))

	require.NoError(t, p.Handle(stateEvent()))
	assert.Equal(t, []string{"t/tel", "t/alert", "t/state"}, fp.calls)
	assert.Equal(t, []bool{false, false, true}, fp.flags)

	assert.Error(t, p.Handle(Event{Kind: "bogus"}))
}

func TestPublisher_BreakerOpens(t *testing.T) {
	fp := &fakePublisher{err: errors.New("broker down")}
	p := NewPublisher(fp, testTopics, BreakerSettings{Fails: 2, OpenFor: time.Minute}, nil)

	require.Error(t, p.Handle(sampleEvent(1)))
	require.Error(t, p.Handle(sampleEvent(2)))
	assert.Equal(t, "open", p.BreakerState())

	err := p.Handle(sampleEvent(3))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "skipped")
	assert.Len(t, fp.calls, 2, "open breaker does not reach the broker")
}

// ===================== dispatcher =====================

type recordingSink struct {
	name string
	err  error

	mu   sync.Mutex
	seen []Kind
}

func (r *recordingSink) Name() string { return r.name }
func (r *recordingSink) Handle(ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, ev.Kind)
	return r.err
}
func (r *recordingSink) kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Kind(nil), r.seen...)
}

func TestDispatcher_FansOut(t *testing.T) {
	a := &recordingSink{name: "a"}
	b := &recordingSink{name: "b", err: errors.New("nope")}
	var sinkErrs []string
	var mu sync.Mutex
	d := NewDispatcher(8, zaptest.NewLogger(t), Hooks{OnSinkError: func(sink string, _ Kind) {
		mu.Lock()
		defer mu.Unlock()
		sinkErrs = append(sinkErrs, sink)
	}}, a, b)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = d.Run(ctx) }()

	d.OnSample(1, entities.HistoryEntry{})
	d.OnAlert(entities.Alert{})
	d.OnStateChange(messages.StateChangeEvent{})

	require.Eventually(t, func() bool { return len(a.kinds()) == 3 }, time.Second, 5*time.Millisecond)
	cancel()
	<-d.Done()

	assert.Equal(t, []Kind{KindSample, KindAlert, KindState}, a.kinds())
	assert.Equal(t, a.kinds(), b.kinds())
	mu.Lock()
	assert.Equal(t, []string{"b", "b", "b"}, sinkErrs)
	mu.Unlock()
	assert.Equal(t, uint64(0), d.Dropped())
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	var drops int
	d := NewDispatcher(2, nil, Hooks{OnDrop: func(Kind) { drops++ }})
	for i := 0; i < 5; i++ {
		d.OnSample(uint64(i), entities.HistoryEntry{})
	}
	assert.Equal(t, uint64(3), d.Dropped())
	assert.Equal(t, 3, drops)
}

func TestDispatcher_DrainsOnShutdown(t *testing.T) {
	var seqs []uint64
	s := SinkFunc{ID: "fn", Fn: func(ev Event) error {
		seqs = append(seqs, ev.Seq)
		return nil
	}}
	assert.Equal(t, "fn", s.Name())
	d := NewDispatcher(4, nil, Hooks{}, s)
	d.OnSample(1, entities.HistoryEntry{})
	d.OnSample(2, entities.HistoryEntry{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, d.Run(ctx))
	assert.Equal(t, []uint64{1, 2}, seqs)
}

// ===================== commands =====================

func TestDecodeCommand(t *testing.T) {
	ok := []string{
		`{"command":"start"}`,
		`{"command":" STOP "}`,
		`{"command":"toggle_pump"}`,
		`{"command":"set_auto","enabled":false}`,
		`{"command":"set_threshold","value":42}`,
		`{"command":"set_interval","interval_ms":5000}`,
	}
	for _, p := range ok {
		_, err := DecodeCommand([]byte(p))
		assert.NoError(t, err, p)
	}

	bad := map[string]error{
		`not json`:                    ErrMalformedCommand,
		`{}`:                          ErrMalformedCommand,
		`{"command":"explode"}`:       ErrUnknownCommand,
		`{"command":"set_auto"}`:      ErrMissingArgument,
		`{"command":"set_threshold"}`: ErrMissingArgument,
		`{"command":"set_interval"}`:  ErrMissingArgument,
	}
	for p, want := range bad {
		_, err := DecodeCommand([]byte(p))
		assert.ErrorIs(t, err, want, p)
	}
}

type fakeCore struct {
	mu        sync.Mutex
	calls     []string
	auto      bool
	threshold float64
	interval  time.Duration
	err       error
}

func (f *fakeCore) record(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	return f.err
}
func (f *fakeCore) StartSimulation(context.Context) error { return f.record("start") }
func (f *fakeCore) StopSimulation(context.Context) error  { return f.record("stop") }
func (f *fakeCore) SetAutoMode(_ context.Context, on bool) error {
	f.auto = on
	return f.record("set_auto")
}
func (f *fakeCore) ManualToggle(context.Context) (bool, error) {
	return true, f.record("toggle_pump")
}
func (f *fakeCore) SetMoistureThreshold(_ context.Context, v float64) (float64, error) {
	f.threshold = v
	return v, f.record("set_threshold")
}
func (f *fakeCore) SetInterval(_ context.Context, d time.Duration) error {
	f.interval = d
	return f.record("set_interval")
}

type msg struct {
	mqtt.Message
	payload []byte
	id      uint16
	dup     bool
}

func (m msg) Payload() []byte   { return m.payload }
func (m msg) Topic() string     { return "cmd" }
func (m msg) MessageID() uint16 { return m.id }
func (m msg) Duplicate() bool   { return m.dup }

func TestCommandHandler_Applies(t *testing.T) {
	core := &fakeCore{}
	h := NewCommandHandler(context.Background(), core, nil, nil, zaptest.NewLogger(t))
	var results []string
	h.OnResult = func(c, r string) { results = append(results, c+":"+r) }

	require.NoError(t, h.Handle("cmd", msg{payload: []byte(`{"command":"set_auto","enabled":false}`)}))
	require.NoError(t, h.Handle("cmd", msg{payload: []byte(`{"command":"toggle_pump"}`)}))
	require.NoError(t, h.Handle("cmd", msg{payload: []byte(`{"command":"set_threshold","value":48}`)}))
	require.NoError(t, h.Handle("cmd", msg{payload: []byte(`{"command":"set_interval","interval_ms":5000}`)}))
	require.NoError(t, h.Handle("cmd", msg{payload: []byte(`{"command":"start"}`)}))

	assert.Equal(t, []string{"set_auto", "toggle_pump", "set_threshold", "set_interval", "start"}, core.calls)
	assert.False(t, core.auto)
	assert.Equal(t, 48.0, core.threshold)
	assert.Equal(t, 5*time.Second, core.interval)
	assert.Equal(t, "start:ok", results[len(results)-1])

	err := h.Handle("cmd", msg{payload: []byte(`{"command":"warp"}`)})
	require.ErrorIs(t, err, ErrUnknownCommand)
	assert.Equal(t, "warp:invalid", results[len(results)-1])

	core.err = errors.New("loop gone")
	err = h.Handle("cmd", msg{payload: []byte(`{"command":"stop"}`)})
	require.Error(t, err)
	assert.Equal(t, "stop:failed", results[len(results)-1])
}

func TestCommandHandler_RepeatedIntentsApply(t *testing.T) {
	core := &fakeCore{}
	h := NewCommandHandler(context.Background(), core, dedup.New(time.Minute, 100), nil, nil)

	toggle := []byte(`{"command":"toggle_pump"}`)
	require.NoError(t, h.Handle("cmd", msg{payload: toggle, id: 1}))
	require.NoError(t, h.Handle("cmd", msg{payload: toggle, id: 2}))
	require.NoError(t, h.Handle("cmd", msg{payload: toggle}))
	assert.Equal(t, []string{"toggle_pump", "toggle_pump", "toggle_pump"}, core.calls)
}

func TestCommandHandler_Redelivery(t *testing.T) {
	core := &fakeCore{}
	h := NewCommandHandler(context.Background(), core, dedup.New(time.Minute, 100), nil, nil)
	var results []string
	h.OnResult = func(c, r string) { results = append(results, c+":"+r) }

	start := []byte(`{"command":"start"}`)
	require.NoError(t, h.Handle("cmd", msg{payload: start, id: 9}))
	require.NoError(t, h.Handle("cmd", msg{payload: start, id: 9, dup: true}))
	assert.Equal(t, []string{"start"}, core.calls)
	assert.Equal(t, "start:duplicate", results[len(results)-1])

	// packet ids are recycled by the broker
	require.NoError(t, h.Handle("cmd", msg{payload: start, id: 9}))
	assert.Equal(t, []string{"start", "start"}, core.calls)

	// a DUP flag for a delivery never seen is still applied
	require.NoError(t, h.Handle("cmd", msg{payload: []byte(`{"command":"stop"}`), id: 10, dup: true}))
	assert.Equal(t, []string{"start", "start", "stop"}, core.calls)
}

func TestCommandHandler_ClientID(t *testing.T) {
	core := &fakeCore{}
	h := NewCommandHandler(context.Background(), core, dedup.New(time.Minute, 100), nil, nil)

	require.NoError(t, h.Handle("cmd", msg{payload: []byte(`{"id":"op-1","command":"toggle_pump"}`)}))
	require.NoError(t, h.Handle("cmd", msg{payload: []byte(`{"id":"op-1","command":"toggle_pump"}`), id: 4}))
	require.NoError(t, h.Handle("cmd", msg{payload: []byte(`{"id":"op-2","command":"toggle_pump"}`)}))
	assert.Equal(t, []string{"toggle_pump", "toggle_pump"}, core.calls)
}

func TestCommandHandler_RateLimit(t *testing.T) {
	core := &fakeCore{}
	limiter := rate.NewLimiter(rate.Every(time.Hour), 2)
	h := NewCommandHandler(context.Background(), core, nil, limiter, nil)
	var results []string
	h.OnResult = func(c, r string) { results = append(results, c+":"+r) }

	require.NoError(t, h.Handle("cmd", msg{payload: []byte(`{"command":"start"}`)}))
	require.NoError(t, h.Handle("cmd", msg{payload: []byte(`{"command":"stop"}`)}))
	err := h.Handle("cmd", msg{payload: []byte(`{"command":"toggle_pump"}`)})
	require.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, []string{"start", "stop"}, core.calls)
	assert.Equal(t, "toggle_pump:rate_limited", results[len(results)-1])
}

func TestCommandHandler_ManualSequenceOnService(t *testing.T) {
	svc := simulation.NewService(
		simulation.Config{Interval: time.Hour},
		simulator.NewRandomWalk(simulator.NewRandSource(1)),
		nil, nil, nil,
	)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = svc.Run(ctx) }()
	defer func() {
		cancel()
		<-svc.Done()
	}()

	h := NewCommandHandler(ctx, svc, dedup.New(time.Minute, 100), nil, nil)
	var results []string
	h.OnResult = func(c, r string) { results = append(results, c+":"+r) }

	for i, p := range []string{
		`{"command":"set_auto","enabled":false}`,
		`{"command":"toggle_pump"}`,
		`{"command":"toggle_pump"}`,
		`{"command":"set_auto","enabled":true}`,
		`{"command":"set_auto","enabled":false}`,
	} {
		require.NoError(t, h.Handle("cmd", msg{payload: []byte(p), id: uint16(i + 1)}))
	}

	assert.Equal(t, []string{"set_auto:ok", "toggle_pump:ok", "toggle_pump:ok", "set_auto:ok", "set_auto:ok"}, results)
	st := svc.State()
	assert.False(t, st.AutoMode)
	assert.False(t, st.PumpOn)
}

// ===================== health =====================

type conn bool

func (c conn) IsConnectionOpen() bool { return bool(c) }

func TestHealth(t *testing.T) {
	running := func() bool { return true }

	h := NewHealth(nil, nil, nil, running, time.Second)
	st := h.Status()
	assert.Equal(t, "ok", st.Status)
	assert.True(t, st.Running)
	assert.True(t, h.Ready())

	h = NewHealth(conn(false), nil, nil, running, time.Second)
	assert.Equal(t, "degraded", h.Status().Status)
	assert.False(t, h.Ready())

	api := &fakeWriteAPI{errs: make(chan error)}
	defer close(api.errs)
	w := NewWriter(api, nil)
	h = NewHealth(conn(true), w, NewDispatcher(1, nil, Hooks{}), running, time.Second)
	st = h.Status()
	assert.Equal(t, "ok", st.Status)
	assert.True(t, st.InfluxEnabled)
	assert.True(t, h.Ready())
}

// ===================== query =====================

func TestParseQueryParams(t *testing.T) {
	q := map[string]string{"minutes": "0", "limit": "5000", "timeout_ms": "x"}
	p := ParseQueryParams(func(k string) string { return q[k] })
	assert.Equal(t, 1, p.Minutes)
	assert.Equal(t, 1000, p.Limit)
	assert.Equal(t, 2*time.Second, p.Timeout)

	p = ParseQueryParams(func(string) string { return "" })
	assert.Equal(t, QueryParams{Minutes: 60, Limit: 100, Timeout: 2 * time.Second}, p)
}

func TestBuildMoistureFlux(t *testing.T) {
	f := buildMoistureFlux("telemetry", 30, 10)
	assert.Contains(t, f, `from(bucket: "telemetry")`)
	assert.Contains(t, f, "range(start: -30m)")
	assert.Contains(t, f, `r._measurement == "sensor_sample"`)
	assert.Contains(t, f, "limit(n:10)")
}

func TestTelemetryQuery_Unavailable(t *testing.T) {
	var q *TelemetryQuery
	_, err := q.RecentMoisture(context.Background(), QueryParams{Timeout: time.Second})
	require.ErrorIs(t, err, ErrQueryUnavailable)
}
