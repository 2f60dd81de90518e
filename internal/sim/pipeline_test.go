package sim

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"twinsim/internal/config"
	"twinsim/internal/fault"
	"twinsim/internal/telemetry"
)

// MockWriter collects tick records for validation
type MockWriter struct {
	Records []telemetry.TickRecord
}

func (w *MockWriter) Write(rec telemetry.TickRecord) error {
	w.Records = append(w.Records, rec)
	return nil
}

// MockAlertWriter collects alerts for validation
type MockAlertWriter struct {
	Alerts []fault.Alert
}

func (w *MockAlertWriter) WriteAlert(a fault.Alert) error {
	w.Alerts = append(w.Alerts, a)
	return nil
}

func testConfig(strategy string) *config.Config {
	cfg := config.Default()
	cfg.Simulation.DurationHours = 0.1 // 360 ticks
	cfg.Sync.Strategy = strategy
	return cfg
}

func newTestPipeline(t *testing.T, cfg *config.Config, w RecordWriter, aw AlertWriter) *Pipeline {
	t.Helper()
	p, err := NewPipeline(cfg, rand.New(rand.NewSource(cfg.Simulation.RandomSeed)), w, aw)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	return p
}

func TestPipelineStepProducesOrderedRecords(t *testing.T) {
	p := newTestPipeline(t, testConfig("adaptive"), &MockWriter{}, nil)

	for i := 0; i < 50; i++ {
		rec, ok := p.Step()
		if !ok {
			t.Fatalf("device depleted unexpectedly at step %d", i)
		}
		if rec.Tick != i+1 {
			t.Fatalf("tick %d out of order, got %d", i+1, rec.Tick)
		}
	}
	if len(p.History()) != 50 {
		t.Errorf("history length = %d, want 50", len(p.History()))
	}
	if len(p.TwinHistory()) != 50 {
		t.Errorf("twin history length = %d, want 50", len(p.TwinHistory()))
	}
}

func TestLastSyncTickInvariant(t *testing.T) {
	p := newTestPipeline(t, testConfig("adaptive"), &MockWriter{}, nil)

	prevLast := 0
	for i := 0; i < 200; i++ {
		rec, ok := p.Step()
		if !ok {
			break
		}
		if rec.LastSyncTick > rec.Tick {
			t.Fatalf("tick %d: last_sync_tick %d exceeds current tick", rec.Tick, rec.LastSyncTick)
		}
		if rec.LastSyncTick != prevLast && !rec.SyncEvent {
			t.Fatalf("tick %d: last_sync_tick moved without a sync event", rec.Tick)
		}
		prevLast = rec.LastSyncTick
	}
}

func TestRunsAreDeterministic(t *testing.T) {
	run := func() []telemetry.TickRecord {
		w := &MockWriter{}
		p := newTestPipeline(t, testConfig("adaptive"), w, nil)
		if err := p.Run(context.Background()); err != nil {
			t.Fatalf("Run: %v", err)
		}
		return w.Records
	}

	a, b := run(), run()
	if len(a) != len(b) {
		t.Fatalf("run lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		// RunID and wall-clock timestamps differ by construction; every
		// simulated quantity must match exactly.
		if a[i].Tick != b[i].Tick ||
			a[i].CPUUtilization != b[i].CPUUtilization ||
			a[i].BatteryRemainingMAh != b[i].BatteryRemainingMAh ||
			a[i].MemoryUsedKB != b[i].MemoryUsedKB ||
			a[i].StateDrift != b[i].StateDrift ||
			a[i].LastSyncTick != b[i].LastSyncTick ||
			a[i].SyncEvent != b[i].SyncEvent {
			t.Fatalf("tick %d: runs diverge with identical seeds", a[i].Tick)
		}
	}
}

func TestDeltaPayloadsSmallerThanFullState(t *testing.T) {
	run := func(strategy string) Metrics {
		p := newTestPipeline(t, testConfig(strategy), &MockWriter{}, nil)
		if err := p.Run(context.Background()); err != nil {
			t.Fatalf("Run: %v", err)
		}
		return p.Metrics()
	}

	full := run("full_state")
	delta := run("delta")
	if full.Sync.SyncCount == 0 || delta.Sync.SyncCount == 0 {
		t.Fatalf("both strategies should sync: full=%d delta=%d",
			full.Sync.SyncCount, delta.Sync.SyncCount)
	}

	// Delta evaluates every tick but carries only changed fields, so its
	// average payload must undercut a full snapshot.
	fullPer := float64(full.Sync.BytesSynced) / float64(full.Sync.SyncCount)
	deltaPer := float64(delta.Sync.BytesSynced) / float64(delta.Sync.SyncCount)
	if deltaPer >= fullPer {
		t.Errorf("delta averaged %.1f bytes/sync, full state %.1f; delta payloads should be smaller",
			deltaPer, fullPer)
	}
}

func TestDeltaTotalBytesUnderMatchedCadence(t *testing.T) {
	run := func(strategy string) Metrics {
		cfg := testConfig(strategy)
		// Full state at a 1s interval mirrors every field every tick; delta at
		// the same cadence transmits only what changed.
		cfg.Sync.FullStateIntervalS = 1
		p := newTestPipeline(t, cfg, &MockWriter{}, nil)
		if err := p.Run(context.Background()); err != nil {
			t.Fatalf("Run: %v", err)
		}
		return p.Metrics()
	}

	full := run("full_state")
	delta := run("delta")
	if delta.Sync.BytesSynced >= full.Sync.BytesSynced {
		t.Errorf("delta synced %d bytes, full state %d at the same cadence",
			delta.Sync.BytesSynced, full.Sync.BytesSynced)
	}
}

func TestDriftBoundsOverRun(t *testing.T) {
	p := newTestPipeline(t, testConfig("full_state"), &MockWriter{}, nil)
	for i := 0; i < 300; i++ {
		rec, ok := p.Step()
		if !ok {
			break
		}
		if rec.StateDrift < 0 || rec.StateDrift > 1 {
			t.Fatalf("tick %d: drift %v out of [0,1]", rec.Tick, rec.StateDrift)
		}
		if rec.StateAccuracy != 1-rec.StateDrift {
			t.Fatalf("tick %d: accuracy %v != 1-drift", rec.Tick, rec.StateAccuracy)
		}
	}
}

func TestDriftZeroAfterFullSyncWithEdgeEnabled(t *testing.T) {
	cfg := testConfig("full_state")
	// Align the sync interval with the sensing cadence so full syncs land on
	// ticks that carry every field, edge filtering active throughout.
	cfg.Sync.FullStateIntervalS = 5
	cfg.Simulation.SamplingRateS = 5
	cfg.Edge.Enabled = true
	p := newTestPipeline(t, cfg, &MockWriter{}, nil)

	fullSyncs := 0
	for i := 0; i < 60; i++ {
		rec, ok := p.Step()
		if !ok {
			break
		}
		if !rec.SyncEvent || rec.Temperature == nil {
			continue
		}
		fullSyncs++
		if rec.StateDrift != 0 {
			t.Fatalf("tick %d: full sync of all fields but drift = %v, want 0", rec.Tick, rec.StateDrift)
		}
		if rec.StateAccuracy != 1 {
			t.Fatalf("tick %d: accuracy after full sync = %v, want 1", rec.Tick, rec.StateAccuracy)
		}
	}
	if fullSyncs == 0 {
		t.Fatalf("no full sync on a sensing tick in 60 ticks")
	}
}

type failingAlertWriter struct{ calls int }

func (w *failingAlertWriter) WriteAlert(fault.Alert) error {
	w.calls++
	return errors.New("sink unavailable")
}

func TestAlertWriterFailureDoesNotAbortRun(t *testing.T) {
	cfg := testConfig("adaptive")
	cfg.FaultDetection.MemoryWarningThreshold = 0.01
	aw := &failingAlertWriter{}
	p := newTestPipeline(t, cfg, &MockWriter{}, aw)

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("alert writer errors must not fail the run: %v", err)
	}
	if aw.calls == 0 {
		t.Fatalf("expected alert write attempts")
	}
	if p.Metrics().Ticks != 360 {
		t.Errorf("run should complete all ticks, got %d", p.Metrics().Ticks)
	}
}

func TestAlertsReachAlertWriter(t *testing.T) {
	cfg := testConfig("adaptive")
	// Drop the warning threshold so the default run trips it early.
	cfg.FaultDetection.MemoryWarningThreshold = 0.01
	aw := &MockAlertWriter{}
	p := newTestPipeline(t, cfg, &MockWriter{}, aw)

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(aw.Alerts) == 0 {
		t.Fatalf("expected alerts with a 1%% memory threshold")
	}
	if len(p.Alerts()) < len(aw.Alerts) {
		t.Errorf("alert log (%d) smaller than written alerts (%d)", len(p.Alerts()), len(aw.Alerts))
	}
}

func TestMidRunStrategySwitch(t *testing.T) {
	p := newTestPipeline(t, testConfig("full_state"), &MockWriter{}, nil)
	for i := 0; i < 50; i++ {
		p.Step()
	}
	histBefore := len(p.TwinHistory())

	if err := p.SetStrategy("event_driven"); err != nil {
		t.Fatalf("SetStrategy: %v", err)
	}
	for i := 0; i < 50; i++ {
		p.Step()
	}
	if len(p.TwinHistory()) != histBefore+50 {
		t.Errorf("strategy switch must not reset twin history")
	}
	if p.Metrics().Strategy != "event_driven" {
		t.Errorf("metrics should report the active strategy")
	}
}

func TestMetricsAggregation(t *testing.T) {
	p := newTestPipeline(t, testConfig("adaptive"), &MockWriter{}, nil)
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	m := p.Metrics()
	if m.Ticks != 360 {
		t.Errorf("ticks = %d, want 360", m.Ticks)
	}
	if m.Sync.SyncCount == 0 {
		t.Errorf("a 360-tick adaptive run should sync at least once")
	}
	if m.BatteryConsumedMAh <= 0 {
		t.Errorf("no energy accounted")
	}
	if m.AvgAccuracy <= 0 || m.AvgAccuracy > 1 {
		t.Errorf("avg accuracy out of range: %v", m.AvgAccuracy)
	}
	if len(m.Forecasts) != 3 {
		t.Errorf("expected 3 forecast kinds, got %d", len(m.Forecasts))
	}
}

func TestWhatIfComparison(t *testing.T) {
	base := testConfig("full_state")
	variant := testConfig("delta")

	cmp, err := RunWhatIf(context.Background(), base, variant, &MockWriter{})
	if err != nil {
		t.Fatalf("RunWhatIf: %v", err)
	}
	if cmp.Base.Strategy != "full_state" || cmp.Variant.Strategy != "delta" {
		t.Errorf("strategies mixed up: %s vs %s", cmp.Base.Strategy, cmp.Variant.Strategy)
	}
	if len(cmp.Deltas) == 0 {
		t.Fatalf("comparison produced no deltas")
	}
	for _, d := range cmp.Deltas {
		if d.AbsDelta != d.Variant-d.Base {
			t.Errorf("%s: abs delta inconsistent", d.Name)
		}
	}
}
