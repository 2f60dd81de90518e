// Package syncengine decides, tick by tick, whether and what to transmit
// from the device to its digital twin.
package syncengine

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"twinsim/internal/config"
	"twinsim/internal/edge"
	"twinsim/internal/telemetry"
)

// Strategy names accepted by New and SetStrategy.
const (
	StrategyFullState   = "full_state"
	StrategyDelta       = "delta"
	StrategyEventDriven = "event_driven"
	StrategyAdaptive    = "adaptive"
)

// Decision is the outcome of one sync evaluation. Fields is empty when
// ShouldSync is false.
type Decision struct {
	ShouldSync         bool
	Fields             []string
	NextCheckIntervalS int
	// Heartbeat marks an event-driven sync forced by the silence bound
	// rather than by a triggering condition.
	Heartbeat bool
}

// Engine owns last_sync_tick and dispatches to the configured strategy.
// Strategies themselves carry no mutable state, so switching mid-run is
// safe: the new strategy inherits the engine's last_sync_tick as is.
type Engine struct {
	cfg config.Sync
	log *slog.Logger

	strategyName string
	strategy     strategy

	lastSyncTick int

	syncCount      int
	failedCount    int
	heartbeatCount int
	bytesSynced    int64
}

func New(cfg config.Sync, log *slog.Logger) (*Engine, error) {
	if log == nil {
		log = slog.Default()
	}
	e := &Engine{cfg: cfg, log: log}
	if err := e.SetStrategy(cfg.Strategy); err != nil {
		return nil, err
	}
	return e, nil
}

// SetStrategy switches the active strategy. Unknown names are rejected;
// the previous strategy stays active.
func (e *Engine) SetStrategy(name string) error {
	s, err := e.build(name)
	if err != nil {
		return err
	}
	if e.strategy != nil && name != e.strategyName {
		e.log.Info("sync strategy switched", "from", e.strategyName, "to", name)
	}
	e.strategyName = name
	e.strategy = s
	return nil
}

func (e *Engine) build(name string) (strategy, error) {
	switch name {
	case StrategyFullState:
		return fullState{intervalS: e.cfg.FullStateIntervalS}, nil
	case StrategyDelta:
		return delta{intervalS: 1, threshold: e.cfg.DeltaThreshold}, nil
	case StrategyEventDriven:
		return eventDriven{
			changeThreshold: e.cfg.EventChangeThreshold,
			maxSilenceS:     e.cfg.MaxSilenceIntervalS,
		}, nil
	case StrategyAdaptive:
		return adaptive{cfg: e.cfg.Adaptive}, nil
	}
	return nil, fmt.Errorf("unknown sync strategy %q", name)
}

// Strategy returns the active strategy name.
func (e *Engine) Strategy() string { return e.strategyName }

// LastSyncTick returns the tick of the most recent successful sync, 0 if
// none has happened yet.
func (e *Engine) LastSyncTick() int { return e.lastSyncTick }

// Decide evaluates the active strategy for this tick. It does not advance
// last_sync_tick; callers confirm the transmission first via RecordSync.
func (e *Engine) Decide(tick int, snap telemetry.DeviceSnapshot, out edge.Output, twin TwinView) Decision {
	return e.strategy.decide(tick, e.lastSyncTick, snap, out, twin)
}

// PayloadBytes estimates the wire size of a sync carrying the decided
// fields, preferring edge-filtered values and applying the edge compression
// ratio observed this tick.
func (e *Engine) PayloadBytes(d Decision, snap telemetry.DeviceSnapshot, out edge.Output) int {
	if !d.ShouldSync || len(d.Fields) == 0 {
		return 0
	}
	payload := make(map[string]float64, len(d.Fields))
	for _, f := range d.Fields {
		if v, ok := out.Values[f]; ok {
			payload[f] = v
		} else if v, ok := snap.Field(f); ok {
			payload[f] = v
		}
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return 0
	}
	size := len(b)
	if out.OriginalBytes > 0 && out.PayloadSizeBytes < out.OriginalBytes {
		size = size * out.PayloadSizeBytes / out.OriginalBytes
		if size < 1 {
			size = 1
		}
	}
	return size
}

// RecordSync commits the outcome of a transmission attempt. last_sync_tick
// advances only on success; a failed attempt leaves it untouched so the
// strategy retries on the next evaluation.
func (e *Engine) RecordSync(tick int, d Decision, transmitted bool, payloadBytes int) {
	if !transmitted {
		e.failedCount++
		e.log.Debug("sync transmission failed", "tick", tick, "strategy", e.strategyName)
		return
	}
	e.lastSyncTick = tick
	e.syncCount++
	e.bytesSynced += int64(payloadBytes)
	if d.Heartbeat {
		e.heartbeatCount++
	}
}

// Stats summarizes sync activity for reports.
type Stats struct {
	Strategy       string
	SyncCount      int
	FailedCount    int
	HeartbeatCount int
	BytesSynced    int64
	LastSyncTick   int
}

func (e *Engine) Stats() Stats {
	return Stats{
		Strategy:       e.strategyName,
		SyncCount:      e.syncCount,
		FailedCount:    e.failedCount,
		HeartbeatCount: e.heartbeatCount,
		BytesSynced:    e.bytesSynced,
		LastSyncTick:   e.lastSyncTick,
	}
}
