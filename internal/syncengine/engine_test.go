package syncengine

import (
	"testing"

	"twinsim/internal/config"
	"twinsim/internal/edge"
	"twinsim/internal/telemetry"
)

// stubTwin implements TwinView with a fixed set of synced values.
type stubTwin struct {
	values map[string]float64
}

func (s *stubTwin) LastSyncedValue(field string) (float64, bool) {
	v, ok := s.values[field]
	return v, ok
}

func snapshotAt(batteryPct float64) telemetry.DeviceSnapshot {
	return telemetry.DeviceSnapshot{
		Tick:                10,
		CPUUtilization:      0.30,
		MemoryUsedKB:        100,
		MemoryTotalKB:       256,
		BatteryRemainingMAh: batteryPct * 1000,
		BatteryCapacityMAh:  1000,
		Active:              true,
	}
}

func newTestEngine(t *testing.T, strategy string) *Engine {
	t.Helper()
	cfg := config.Default().Sync
	cfg.Strategy = strategy
	e, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestNewRejectsUnknownStrategy(t *testing.T) {
	cfg := config.Default().Sync
	cfg.Strategy = "telepathy"
	if _, err := New(cfg, nil); err == nil {
		t.Fatalf("expected error for unknown strategy")
	}
}

func TestFullStateSyncsOnInterval(t *testing.T) {
	e := newTestEngine(t, StrategyFullState)
	tw := &stubTwin{}
	snap := snapshotAt(0.9)

	d := e.Decide(5, snap, edge.Output{}, tw)
	if d.ShouldSync {
		t.Errorf("tick 5 with interval 10 should not sync")
	}
	d = e.Decide(10, snap, edge.Output{}, tw)
	if !d.ShouldSync {
		t.Fatalf("tick 10 with interval 10 should sync")
	}
	if len(d.Fields) == 0 {
		t.Errorf("full state sync must include fields")
	}
}

func TestLastSyncTickAdvancesOnlyOnSuccess(t *testing.T) {
	e := newTestEngine(t, StrategyFullState)
	tw := &stubTwin{}
	snap := snapshotAt(0.9)

	d := e.Decide(10, snap, edge.Output{}, tw)
	if !d.ShouldSync {
		t.Fatalf("expected sync decision")
	}
	e.RecordSync(10, d, false, 0)
	if e.LastSyncTick() != 0 {
		t.Errorf("failed transmission must not advance last sync tick, got %d", e.LastSyncTick())
	}
	e.RecordSync(10, d, true, 64)
	if e.LastSyncTick() != 10 {
		t.Errorf("successful transmission should advance last sync tick, got %d", e.LastSyncTick())
	}
	if e.Stats().FailedCount != 1 || e.Stats().SyncCount != 1 {
		t.Errorf("unexpected stats: %+v", e.Stats())
	}
}

func TestDeltaExcludesUnchangedFields(t *testing.T) {
	e := newTestEngine(t, StrategyDelta)
	snap := snapshotAt(0.9)
	tw := &stubTwin{values: map[string]float64{
		telemetry.FieldCPUUtilization:       0.30, // unchanged
		telemetry.FieldMemoryUsedKB:         50,   // doubled
		telemetry.FieldBatteryRemainingMAh:  900,  // unchanged
		telemetry.FieldBandwidthUtilization: 0,    // unchanged (zero)
	}}

	d := e.Decide(11, snap, edge.Output{}, tw)
	if !d.ShouldSync {
		t.Fatalf("memory change should trigger a delta sync")
	}
	for _, f := range d.Fields {
		if f == telemetry.FieldCPUUtilization || f == telemetry.FieldBatteryRemainingMAh {
			t.Errorf("unchanged field %s included in delta", f)
		}
	}
	found := false
	for _, f := range d.Fields {
		if f == telemetry.FieldMemoryUsedKB {
			found = true
		}
	}
	if !found {
		t.Errorf("changed field missing from delta: %v", d.Fields)
	}
}

func TestDeltaConstantDeviceSyncsNothing(t *testing.T) {
	e := newTestEngine(t, StrategyDelta)
	snap := snapshotAt(0.9)
	tw := &stubTwin{values: map[string]float64{
		telemetry.FieldCPUUtilization:       snap.CPUUtilization,
		telemetry.FieldMemoryUsedKB:         snap.MemoryUsedKB,
		telemetry.FieldBatteryRemainingMAh:  snap.BatteryRemainingMAh,
		telemetry.FieldBandwidthUtilization: snap.BandwidthUtilization,
	}}
	d := e.Decide(11, snap, edge.Output{}, tw)
	if d.ShouldSync {
		t.Errorf("no field changed, delta should not sync, fields=%v", d.Fields)
	}
}

func TestEventDrivenCriticalAndHeartbeat(t *testing.T) {
	e := newTestEngine(t, StrategyEventDriven)
	snap := snapshotAt(0.9)
	tw := &stubTwin{values: map[string]float64{
		telemetry.FieldCPUUtilization:       snap.CPUUtilization,
		telemetry.FieldMemoryUsedKB:         snap.MemoryUsedKB,
		telemetry.FieldBatteryRemainingMAh:  snap.BatteryRemainingMAh,
		telemetry.FieldBandwidthUtilization: snap.BandwidthUtilization,
	}}

	d := e.Decide(10, snap, edge.Output{Critical: true}, tw)
	if !d.ShouldSync || d.Heartbeat {
		t.Errorf("critical edge output should force a non-heartbeat sync: %+v", d)
	}

	d = e.Decide(10, snap, edge.Output{}, tw)
	if d.ShouldSync {
		t.Errorf("quiet device before max silence should not sync")
	}

	// Default max silence is 60 ticks.
	d = e.Decide(60, snap, edge.Output{}, tw)
	if !d.ShouldSync || !d.Heartbeat {
		t.Errorf("silence bound should force a heartbeat sync: %+v", d)
	}
}

func TestAdaptiveIntervalTiers(t *testing.T) {
	e := newTestEngine(t, StrategyAdaptive)
	s := e.strategy.(adaptive)

	cases := []struct {
		pct  float64
		want int
	}{
		{0.60, 5},
		{0.51, 5},
		{0.50, 15}, // boundary: exactly 50% uses the medium tier
		{0.30, 15},
		{0.15, 60}, // boundary: exactly 15% uses the low tier
		{0.10, 60},
	}
	for _, c := range cases {
		if got := s.interval(c.pct); got != c.want {
			t.Errorf("battery %.0f%%: interval = %d, want %d", c.pct*100, got, c.want)
		}
	}
}

func TestAdaptiveDecidesWithCurrentInterval(t *testing.T) {
	e := newTestEngine(t, StrategyAdaptive)
	tw := &stubTwin{}

	d := e.Decide(5, snapshotAt(0.9), edge.Output{}, tw)
	if !d.ShouldSync || d.NextCheckIntervalS != 5 {
		t.Errorf("high battery at tick 5 should sync on 5s interval: %+v", d)
	}
	d = e.Decide(5, snapshotAt(0.10), edge.Output{}, tw)
	if d.ShouldSync || d.NextCheckIntervalS != 60 {
		t.Errorf("low battery at tick 5 should wait for 60s interval: %+v", d)
	}
}

func TestSetStrategyKeepsLastSyncTick(t *testing.T) {
	e := newTestEngine(t, StrategyFullState)
	tw := &stubTwin{}
	snap := snapshotAt(0.9)

	d := e.Decide(10, snap, edge.Output{}, tw)
	e.RecordSync(10, d, true, 32)

	if err := e.SetStrategy(StrategyAdaptive); err != nil {
		t.Fatalf("SetStrategy: %v", err)
	}
	if e.LastSyncTick() != 10 {
		t.Errorf("strategy switch must preserve last sync tick, got %d", e.LastSyncTick())
	}
	if err := e.SetStrategy("bogus"); err == nil {
		t.Errorf("expected error for bogus strategy")
	}
	if e.Strategy() != StrategyAdaptive {
		t.Errorf("failed switch must keep previous strategy, got %s", e.Strategy())
	}
}

func TestPayloadBytesSmallerForFewerFields(t *testing.T) {
	e := newTestEngine(t, StrategyFullState)
	snap := snapshotAt(0.9)

	full := Decision{ShouldSync: true, Fields: presentFields(snap)}
	partial := Decision{ShouldSync: true, Fields: []string{telemetry.FieldCPUUtilization}}

	fb := e.PayloadBytes(full, snap, edge.Output{})
	pb := e.PayloadBytes(partial, snap, edge.Output{})
	if pb >= fb {
		t.Errorf("partial payload (%d) should be smaller than full payload (%d)", pb, fb)
	}
	if e.PayloadBytes(Decision{}, snap, edge.Output{}) != 0 {
		t.Errorf("no-sync decision should have zero payload")
	}
}
