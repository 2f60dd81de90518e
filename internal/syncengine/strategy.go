package syncengine

import (
	"math"

	"twinsim/internal/config"
	"twinsim/internal/edge"
	"twinsim/internal/telemetry"
)

// TwinView is the read-only view of the twin that strategies may consult.
// Strategies hold no state of their own; per-field last-synced values live
// in the twin and last_sync_tick lives in the Engine.
type TwinView interface {
	// LastSyncedValue returns the value of a field as of its most recent
	// sync, and whether the field has ever been synced.
	LastSyncedValue(field string) (float64, bool)
}

// strategy is the single capability all sync variants implement. The set is
// closed: full_state, delta, event_driven, adaptive.
type strategy interface {
	decide(tick, lastSyncTick int, snap telemetry.DeviceSnapshot, out edge.Output, twin TwinView) Decision
}

// fullState transmits every field at a fixed interval.
type fullState struct {
	intervalS int
}

func (s fullState) decide(tick, lastSyncTick int, snap telemetry.DeviceSnapshot, out edge.Output, twin TwinView) Decision {
	d := Decision{NextCheckIntervalS: s.intervalS}
	if tick-lastSyncTick >= s.intervalS {
		d.ShouldSync = true
		d.Fields = presentFields(snap)
	}
	return d
}

// delta transmits only fields whose change since their last sync exceeds
// the configured threshold. Unchanged fields are left for the twin to hold
// or interpolate.
type delta struct {
	intervalS int
	threshold float64
}

func (s delta) decide(tick, lastSyncTick int, snap telemetry.DeviceSnapshot, out edge.Output, twin TwinView) Decision {
	d := Decision{NextCheckIntervalS: s.intervalS}
	for _, f := range presentFields(snap) {
		cur, _ := snap.Field(f)
		prev, synced := twin.LastSyncedValue(f)
		if !synced || changedSignificantly(prev, cur, s.threshold) {
			d.Fields = append(d.Fields, f)
		}
	}
	d.ShouldSync = len(d.Fields) > 0
	return d
}

// changedSignificantly compares relative change against the threshold, with
// an absolute comparison when the reference is zero.
func changedSignificantly(old, new, threshold float64) bool {
	if old == 0 {
		return new != 0
	}
	return math.Abs(new-old)/math.Abs(old) > threshold
}

// eventDriven transmits on critical edge output or on a deviation beyond
// the anomaly threshold, with a heartbeat bounding silence.
type eventDriven struct {
	changeThreshold float64
	maxSilenceS     int
}

func (s eventDriven) decide(tick, lastSyncTick int, snap telemetry.DeviceSnapshot, out edge.Output, twin TwinView) Decision {
	d := Decision{NextCheckIntervalS: 1}

	heartbeat := tick-lastSyncTick >= s.maxSilenceS
	triggered := out.Critical
	if !triggered {
		for _, f := range presentFields(snap) {
			cur, _ := snap.Field(f)
			prev, synced := twin.LastSyncedValue(f)
			if !synced {
				triggered = true
				break
			}
			// Resource fields are fractions; compare absolute deviation the
			// way an on-device comparator would.
			if math.Abs(cur-prev) > s.changeThreshold*scale(f, snap) {
				triggered = true
				break
			}
		}
	}

	if triggered || heartbeat {
		d.ShouldSync = true
		d.Heartbeat = heartbeat && !triggered
		d.Fields = presentFields(snap)
	}
	return d
}

// scale normalizes the event threshold per field: utilization fields are
// already fractions, capacity fields compare against their full scale.
func scale(f string, snap telemetry.DeviceSnapshot) float64 {
	switch f {
	case telemetry.FieldBatteryRemainingMAh:
		return snap.BatteryCapacityMAh
	case telemetry.FieldMemoryUsedKB:
		return snap.MemoryTotalKB
	case telemetry.FieldTemperature, telemetry.FieldHumidity, telemetry.FieldLight:
		v, _ := snap.Field(f)
		return math.Max(math.Abs(v), 1)
	}
	return 1
}

// adaptive recomputes the full-state interval each tick from battery level.
// Tier boundaries are inclusive on the lower bound: exactly 50% uses the
// medium tier, exactly 15% uses the low tier.
type adaptive struct {
	cfg config.Adaptive
}

func (s adaptive) interval(batteryPct float64) int {
	switch {
	case batteryPct > s.cfg.HighBatteryThreshold:
		return s.cfg.HighBatteryIntervalS
	case batteryPct > s.cfg.LowBatteryThreshold:
		return s.cfg.MediumBatteryIntervalS
	default:
		return s.cfg.LowBatteryIntervalS
	}
}

func (s adaptive) decide(tick, lastSyncTick int, snap telemetry.DeviceSnapshot, out edge.Output, twin TwinView) Decision {
	interval := s.interval(snap.BatteryPct())
	d := Decision{NextCheckIntervalS: interval}
	if tick-lastSyncTick >= interval {
		d.ShouldSync = true
		d.Fields = presentFields(snap)
	}
	return d
}

// presentFields lists the syncable fields carried by this snapshot, in
// stable order.
func presentFields(snap telemetry.DeviceSnapshot) []string {
	fields := make([]string, 0, len(telemetry.Fields))
	for _, f := range telemetry.Fields {
		if _, ok := snap.Field(f); ok {
			fields = append(fields, f)
		}
	}
	return fields
}
