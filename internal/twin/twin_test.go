package twin

import (
	"math"
	"testing"

	"twinsim/internal/config"
	"twinsim/internal/telemetry"
)

func snapWith(cpu, mem, bat, bw float64) telemetry.DeviceSnapshot {
	return telemetry.DeviceSnapshot{
		CPUUtilization:       cpu,
		MemoryUsedKB:         mem,
		MemoryTotalKB:        256,
		BatteryRemainingMAh:  bat,
		BatteryCapacityMAh:   1000,
		BandwidthUtilization: bw,
		Active:               true,
	}
}

var allFields = []string{
	telemetry.FieldCPUUtilization,
	telemetry.FieldMemoryUsedKB,
	telemetry.FieldBatteryRemainingMAh,
	telemetry.FieldBandwidthUtilization,
}

func TestHoldFlatWithSingleSync(t *testing.T) {
	tw := New(config.Twin{}, nil)
	snap := snapWith(0.5, 100, 900, 0.1)
	tw.ApplySync(1, allFields, snap)

	v, ok := tw.Value(telemetry.FieldBatteryRemainingMAh, 50)
	if !ok || v != 900 {
		t.Errorf("single synced value should hold flat, got %v ok=%v", v, ok)
	}
}

func TestLinearExtrapolationFromTwoSyncs(t *testing.T) {
	tw := New(config.Twin{}, nil)
	tw.ApplySync(10, allFields, snapWith(0.5, 100, 900, 0.1))
	tw.ApplySync(20, allFields, snapWith(0.5, 100, 880, 0.1))

	// Slope is -2 mAh per tick; 5 ticks past the last sync.
	v, ok := tw.Value(telemetry.FieldBatteryRemainingMAh, 25)
	if !ok {
		t.Fatalf("field should be synced")
	}
	if math.Abs(v-870) > 1e-9 {
		t.Errorf("extrapolated battery = %v, want 870", v)
	}

	// At the sync tick itself the stored value is returned.
	v, _ = tw.Value(telemetry.FieldBatteryRemainingMAh, 20)
	if v != 880 {
		t.Errorf("value at sync tick = %v, want 880", v)
	}
}

func TestDriftZeroAfterFullSync(t *testing.T) {
	tw := New(config.Twin{}, nil)
	snap := snapWith(0.5, 100, 900, 0.1)
	tw.ApplySync(1, allFields, snap)
	rec := tw.Tick(1, snap)
	if rec.Drift != 0 {
		t.Errorf("drift after full sync = %v, want 0", rec.Drift)
	}
	if rec.Accuracy != 1 {
		t.Errorf("accuracy after full sync = %v, want 1", rec.Accuracy)
	}
}

func TestDriftNonNegativeAndClamped(t *testing.T) {
	tw := New(config.Twin{}, nil)
	tw.ApplySync(1, allFields, snapWith(0.5, 100, 900, 0.1))

	// Device moves far away from the mirror; per-field terms clamp at 1.
	rec := tw.Tick(2, snapWith(5.0, 1000, 1, 0.9))
	if rec.Drift < 0 || rec.Drift > 1 {
		t.Errorf("drift out of range: %v", rec.Drift)
	}
}

func TestNeverSyncedFieldContributesZeroDrift(t *testing.T) {
	tw := New(config.Twin{}, nil)
	snap := snapWith(0.5, 100, 900, 0.1)
	rec := tw.Tick(1, snap)
	if rec.Drift != 0 {
		t.Errorf("never-synced twin should report zero drift, got %v", rec.Drift)
	}
}

func TestHistoryGrowsOncePerTick(t *testing.T) {
	tw := New(config.Twin{}, nil)
	snap := snapWith(0.5, 100, 900, 0.1)
	for tick := 1; tick <= 25; tick++ {
		if tick%5 == 0 {
			tw.ApplySync(tick, allFields, snap)
		}
		tw.Tick(tick, snap)
	}
	if len(tw.History()) != 25 {
		t.Errorf("history length = %d, want 25", len(tw.History()))
	}
	for i, r := range tw.History() {
		if r.Tick != i+1 {
			t.Fatalf("history out of order at %d: tick %d", i, r.Tick)
		}
	}
}

func TestMirrorStoresTrueSensorValues(t *testing.T) {
	tw := New(config.Twin{}, nil)
	snap := snapWith(0.5, 100, 900, 0.1)
	snap.Reading = &telemetry.SensorReading{Temperature: 30}
	tw.ApplySync(1, []string{telemetry.FieldTemperature}, snap)

	v, ok := tw.LastSyncedValue(telemetry.FieldTemperature)
	if !ok || v != 30 {
		t.Errorf("mirror should hold the raw reading, got %v ok=%v", v, ok)
	}
	rec := tw.Tick(1, snap)
	if rec.Drift != 0 {
		t.Errorf("drift after syncing the true value = %v, want 0", rec.Drift)
	}
}

func TestFailedSyncLeavesMirrorUntouched(t *testing.T) {
	tw := New(config.Twin{}, nil)
	tw.ApplySync(1, allFields, snapWith(0.5, 100, 900, 0.1))
	tw.RecordFailedSync(2)

	if tw.LastSyncTick() != 1 {
		t.Errorf("failed sync must not advance last sync tick, got %d", tw.LastSyncTick())
	}
	s := tw.Stats()
	if s.SyncSuccess != 1 || s.SyncFailed != 1 {
		t.Errorf("unexpected stats: %+v", s)
	}
}
