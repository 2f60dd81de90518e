// Package twin maintains the cloud-side mirror of the device: last-synced
// field values, interpolation between syncs, and the drift metric that
// scores mirror fidelity against ground truth.
package twin

import (
	"log/slog"
	"math"

	"twinsim/internal/config"
	"twinsim/internal/telemetry"
)

// fieldState tracks one mirrored field. prev* retain the second most recent
// sync so reads can extrapolate linearly.
type fieldState struct {
	value        float64
	lastSyncTick int
	prevValue    float64
	prevSyncTick int
	synced       bool
	syncCount    int
}

// Twin is the digital mirror. It only ever learns about the device through
// ApplySync; between syncs its knowledge ages.
type Twin struct {
	cfg config.Twin
	log *slog.Logger

	fields map[string]*fieldState

	lastSyncTick int
	syncSuccess  int
	syncFailed   int

	drift    float64
	accuracy float64

	history []StateRecord
}

// StateRecord is one per-tick history entry, appended exactly once per tick.
type StateRecord struct {
	Tick     int
	Synced   bool
	Fields   map[string]float64
	Drift    float64
	Accuracy float64
}

func New(cfg config.Twin, log *slog.Logger) *Twin {
	if log == nil {
		log = slog.Default()
	}
	return &Twin{
		cfg:      cfg,
		log:      log,
		fields:   make(map[string]*fieldState),
		accuracy: 1,
	}
}

// LastSyncedValue implements the view consumed by sync strategies.
func (t *Twin) LastSyncedValue(field string) (float64, bool) {
	fs, ok := t.fields[field]
	if !ok || !fs.synced {
		return 0, false
	}
	return fs.value, true
}

// LastSyncTick returns the most recent tick any field was synced at.
func (t *Twin) LastSyncTick() int { return t.lastSyncTick }

// ApplySync copies the listed fields from the snapshot into the mirror.
// Fields not listed keep their previous state. The mirror always stores the
// true device values; edge filtering affects what travels on the wire, not
// what the twin learns.
func (t *Twin) ApplySync(tick int, fields []string, snap telemetry.DeviceSnapshot) {
	for _, f := range fields {
		v, ok := snap.Field(f)
		if !ok {
			continue
		}
		fs := t.fields[f]
		if fs == nil {
			fs = &fieldState{}
			t.fields[f] = fs
		}
		if fs.synced {
			fs.prevValue = fs.value
			fs.prevSyncTick = fs.lastSyncTick
		}
		fs.value = v
		fs.lastSyncTick = tick
		fs.synced = true
		fs.syncCount++
	}
	t.lastSyncTick = tick
	t.syncSuccess++
}

// RecordFailedSync counts a sync attempt whose transmission did not reach
// the twin. The mirror is unchanged.
func (t *Twin) RecordFailedSync(tick int) {
	t.syncFailed++
	t.log.Debug("sync lost in transit", "tick", tick)
}

// Value returns the twin's estimate for a field at the given tick. With two
// or more syncs behind it the estimate is a linear extrapolation from the
// two most recent synced points; with fewer it holds the last value flat.
func (t *Twin) Value(field string, tick int) (float64, bool) {
	fs, ok := t.fields[field]
	if !ok || !fs.synced {
		return 0, false
	}
	if fs.syncCount < 2 || tick <= fs.lastSyncTick {
		return fs.value, true
	}
	dt := fs.lastSyncTick - fs.prevSyncTick
	if dt <= 0 {
		return fs.value, true
	}
	slope := (fs.value - fs.prevValue) / float64(dt)
	return fs.value + slope*float64(tick-fs.lastSyncTick), true
}

// Tick closes the twin's view of one simulation tick: computes drift
// against the ground-truth snapshot and appends the history record. Called
// exactly once per tick, after any ApplySync for that tick.
func (t *Twin) Tick(tick int, snap telemetry.DeviceSnapshot) StateRecord {
	t.drift = t.computeDrift(tick, snap)
	t.accuracy = 1 - t.drift

	if t.cfg.BakeInterpolation {
		// Write extrapolated values back so the stored mirror matches what
		// reads would return. Sync bookkeeping is untouched.
		for f, fs := range t.fields {
			if v, ok := t.Value(f, tick); ok {
				fs.value = v
			}
		}
	}

	rec := StateRecord{
		Tick:     tick,
		Synced:   t.lastSyncTick == tick,
		Fields:   t.estimates(tick),
		Drift:    t.drift,
		Accuracy: t.accuracy,
	}
	t.history = append(t.history, rec)
	return rec
}

// computeDrift is the mean absolute percentage difference between twin
// estimates and actual values over the fields the snapshot carries. Each
// term is clamped to [0,1]; never-synced fields contribute 0.
func (t *Twin) computeDrift(tick int, snap telemetry.DeviceSnapshot) float64 {
	var sum float64
	var n int
	for _, f := range telemetry.Fields {
		actual, ok := snap.Field(f)
		if !ok {
			continue
		}
		n++
		est, synced := t.Value(f, tick)
		if !synced {
			continue
		}
		var term float64
		if actual == 0 {
			if est != 0 {
				term = 1
			}
		} else {
			term = math.Abs(est-actual) / math.Abs(actual)
		}
		if term > 1 {
			term = 1
		}
		sum += term
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// estimates snapshots the twin's current per-field estimates.
func (t *Twin) estimates(tick int) map[string]float64 {
	m := make(map[string]float64, len(t.fields))
	for f := range t.fields {
		if v, ok := t.Value(f, tick); ok {
			m[f] = v
		}
	}
	return m
}

// Drift returns the most recent drift value.
func (t *Twin) Drift() float64 { return t.drift }

// Accuracy returns 1 minus the most recent drift.
func (t *Twin) Accuracy() float64 { return t.accuracy }

// History returns the append-only per-tick state records.
func (t *Twin) History() []StateRecord { return t.history }

// Stats summarizes twin activity for reports.
type Stats struct {
	SyncSuccess  int
	SyncFailed   int
	LastSyncTick int
	Drift        float64
	Accuracy     float64
	FieldCount   int
}

func (t *Twin) Stats() Stats {
	return Stats{
		SyncSuccess:  t.syncSuccess,
		SyncFailed:   t.syncFailed,
		LastSyncTick: t.lastSyncTick,
		Drift:        t.drift,
		Accuracy:     t.accuracy,
		FieldCount:   len(t.fields),
	}
}
