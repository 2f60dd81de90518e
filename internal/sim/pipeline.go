// Pipeline wires the device, edge processor, sync engine, twin, fault
// detector, and maintenance predictor into the per-tick loop.
package sim

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"twinsim/internal/config"
	"twinsim/internal/device"
	"twinsim/internal/edge"
	"twinsim/internal/fault"
	"twinsim/internal/logging"
	"twinsim/internal/maintenance"
	"twinsim/internal/syncengine"
	"twinsim/internal/telemetry"
	"twinsim/internal/twin"
)

// Pipeline owns one device and its twin for the duration of a run. Ticks
// are strictly sequential; tick N settles completely before N+1 starts.
type Pipeline struct {
	RunID string

	cfg  *config.Config
	node *device.Node
	proc *edge.Processor
	eng  *syncengine.Engine
	twin *twin.Twin
	det  *fault.Detector
	pred *maintenance.Predictor

	writer      RecordWriter
	alertWriter AlertWriter

	tick    int
	records []telemetry.TickRecord
	started time.Time

	mu sync.Mutex
}

// NewPipeline builds a run from configuration. The rng is the single seeded
// source for every stochastic element; callers derive it from the
// configured seed so runs reproduce exactly.
func NewPipeline(cfg *config.Config, rng *rand.Rand, writer RecordWriter, alertWriter AlertWriter) (*Pipeline, error) {
	eng, err := syncengine.New(cfg.Sync, nil)
	if err != nil {
		return nil, fmt.Errorf("sync engine: %w", err)
	}
	return &Pipeline{
		RunID:       uuid.NewString(),
		cfg:         cfg,
		node:        device.NewNode(cfg, rng),
		proc:        edge.NewProcessor(cfg.Edge, nil),
		eng:         eng,
		twin:        twin.New(cfg.Twin, nil),
		det:         fault.NewDetector(cfg.FaultDetection, nil),
		pred:        maintenance.NewPredictor(cfg.Maintenance, nil),
		writer:      writer,
		alertWriter: alertWriter,
	}, nil
}

// Step runs one full tick through the pipeline and returns its record.
// The second return is false once the device has depleted and the run is
// over.
func (p *Pipeline) Step() (telemetry.TickRecord, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap := p.node.Tick(p.cfg.Simulation.TimeStepSeconds)
	if !snap.Active {
		return telemetry.TickRecord{}, false
	}
	p.tick = snap.Tick

	out := p.proc.Process(snap)

	decision := p.eng.Decide(snap.Tick, snap, out, p.twin)
	syncEvent := false
	if decision.ShouldSync {
		payloadBytes := p.eng.PayloadBytes(decision, snap, out)
		result := p.node.Transmit(payloadBytes)
		if result.Success {
			p.twin.ApplySync(snap.Tick, decision.Fields, snap)
			p.eng.RecordSync(snap.Tick, decision, true, payloadBytes)
			syncEvent = true
		} else {
			p.twin.RecordFailedSync(snap.Tick)
			p.eng.RecordSync(snap.Tick, decision, false, 0)
		}
	}

	twinRec := p.twin.Tick(snap.Tick, snap)

	alerts := p.det.Check(snap.Tick, snap, twinRec.Drift, p.eng.LastSyncTick(), decision.NextCheckIntervalS)

	p.pred.Observe(snap.Tick, snap)

	rec := p.record(snap, twinRec, alerts, syncEvent)
	p.records = append(p.records, rec)
	return rec, true
}

func (p *Pipeline) record(snap telemetry.DeviceSnapshot, twinRec twin.StateRecord, alerts []fault.Alert, syncEvent bool) telemetry.TickRecord {
	rec := telemetry.TickRecord{
		RunID:      p.RunID,
		Tick:       snap.Tick,
		TimestampS: snap.TimestampS,

		CPUUtilization:      snap.CPUUtilization,
		MemoryUsedKB:        snap.MemoryUsedKB,
		MemoryTotalKB:       snap.MemoryTotalKB,
		BatteryRemainingMAh: snap.BatteryRemainingMAh,
		BatteryPercent:      snap.BatteryPct() * 100,

		BytesSent:            snap.TotalBytesSent,
		BandwidthUtilization: snap.BandwidthUtilization,
		PacketLossRate:       snap.PacketLossRate,

		StateAccuracy: twinRec.Accuracy,
		StateDrift:    twinRec.Drift,
		LastSyncTick:  p.eng.LastSyncTick(),

		SyncEvent: syncEvent,
		Timestamp: p.started.Add(time.Duration(snap.TimestampS * float64(time.Second))),
	}
	if snap.Reading != nil {
		t, h, l := snap.Reading.Temperature, snap.Reading.Humidity, snap.Reading.Light
		rec.Temperature, rec.Humidity, rec.Light = &t, &h, &l
	}
	for _, a := range alerts {
		rec.Alerts = append(rec.Alerts, a.String())
	}
	return rec
}

// Run executes the configured number of ticks, writing each record as its
// tick settles. It stops early on context cancellation or battery
// depletion.
func (p *Pipeline) Run(ctx context.Context) error {
	log := logging.FromContext(ctx)
	p.started = time.Now()
	total := p.cfg.Simulation.TotalTicks()
	log.Info("starting run", "run_id", p.RunID,
		"ticks", total, "strategy", p.eng.Strategy(), "seed", p.cfg.Simulation.RandomSeed)

	var batch []telemetry.TickRecord
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if bw, ok := p.writer.(batchWriter); ok {
			if err := bw.WriteBatch(batch); err != nil {
				return err
			}
		} else {
			for _, r := range batch {
				if err := p.writer.Write(r); err != nil {
					return err
				}
			}
		}
		batch = batch[:0]
		return nil
	}

	for i := 0; i < total; i++ {
		select {
		case <-ctx.Done():
			log.Info("run cancelled", "tick", p.tick)
			return flush()
		default:
		}

		rec, ok := p.Step()
		if !ok {
			log.Info("battery depleted, ending run early", "tick", p.tick)
			break
		}
		batch = append(batch, rec)

		if len(rec.Alerts) > 0 && p.alertWriter != nil {
			p.writeAlerts(log)
		}

		if len(batch) >= 100 {
			if err := flush(); err != nil {
				log.Error("write failed", "tick", rec.Tick, "err", err)
			}
		}
	}
	if err := flush(); err != nil {
		log.Error("final flush failed", "err", err)
		return err
	}
	log.Info("run complete", "run_id", p.RunID, "ticks", p.tick,
		"syncs", p.eng.Stats().SyncCount, "alerts", len(p.det.Alerts()))
	return nil
}

// writeAlerts sends any alerts emitted this tick. Called with p.mu held by
// Step's caller only through Run, so it re-reads the detector log tail.
// Writer failures are logged and the run continues.
func (p *Pipeline) writeAlerts(log *slog.Logger) {
	all := p.det.Alerts()
	var fresh []fault.Alert
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].Tick != p.tick {
			break
		}
		fresh = append([]fault.Alert{all[i]}, fresh...)
	}
	if len(fresh) == 0 {
		return
	}
	if bw, ok := p.alertWriter.(batchAlertWriter); ok {
		if err := bw.WriteAlerts(fresh); err != nil {
			log.Error("alert write failed", "tick", p.tick, "err", err)
		}
		return
	}
	for _, a := range fresh {
		if err := p.alertWriter.WriteAlert(a); err != nil {
			log.Error("alert write failed", "tick", p.tick, "err", err)
		}
	}
}

// SetStrategy switches the sync strategy mid-run. Twin history and the
// engine's last_sync_tick are untouched.
func (p *Pipeline) SetStrategy(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.eng.SetStrategy(name)
}

// History returns the per-tick records accumulated so far.
func (p *Pipeline) History() []telemetry.TickRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.records
}

// TwinHistory returns the twin's per-tick state records.
func (p *Pipeline) TwinHistory() []twin.StateRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.twin.History()
}

// Alerts returns the run's alert log.
func (p *Pipeline) Alerts() []fault.Alert {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.det.Alerts()
}

// Forecasts returns the current maintenance forecasts.
func (p *Pipeline) Forecasts() []maintenance.Forecast {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pred.Forecasts()
}

// Metrics aggregates the run for reports. See metrics.go.
func (p *Pipeline) Metrics() Metrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.metricsLocked()
}
