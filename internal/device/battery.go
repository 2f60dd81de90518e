package device

import (
	"sort"

	"twinsim/internal/config"
	"twinsim/internal/telemetry"
)

// Battery simulates a Li-Po cell with per-operation current draw. Energy is
// tracked both cumulatively and as a per-tick delta per operation, which is
// what flows into the DeviceSnapshot.
type Battery struct {
	cfg        config.Battery
	thresholds []float64

	remainingMAh float64
	consumedMAh  float64
	breakdown    map[telemetry.Operation]float64
	tickDelta    map[telemetry.Operation]float64
	triggered    map[float64]bool
	depleted     bool
}

func NewBattery(cfg config.Battery) *Battery {
	thresholds := append([]float64(nil), cfg.WarningThresholds...)
	sort.Sort(sort.Reverse(sort.Float64Slice(thresholds)))
	return &Battery{
		cfg:          cfg,
		thresholds:   thresholds,
		remainingMAh: cfg.CapacityMAh,
		breakdown:    make(map[telemetry.Operation]float64),
		tickDelta:    make(map[telemetry.Operation]float64),
		triggered:    make(map[float64]bool),
	}
}

func (b *Battery) draw(op telemetry.Operation) float64 {
	switch op {
	case telemetry.OpSensing:
		return b.cfg.CurrentDrawMA.SensingMA
	case telemetry.OpProcessing:
		return b.cfg.CurrentDrawMA.ProcessingMA
	case telemetry.OpTransmission:
		return b.cfg.CurrentDrawMA.TransmissionMA
	case telemetry.OpIdle:
		return b.cfg.CurrentDrawMA.IdleMA
	}
	return 0
}

// Consume drains energy for an operation of the given duration.
func (b *Battery) Consume(op telemetry.Operation, durationS float64) {
	if b.depleted {
		return
	}
	// mAh = mA * h
	consumed := b.draw(op) * (durationS / 3600.0)
	if consumed > b.remainingMAh {
		consumed = b.remainingMAh
	}
	b.remainingMAh -= consumed
	b.consumedMAh += consumed
	b.breakdown[op] += consumed
	b.tickDelta[op] += consumed
	if b.remainingMAh <= 0 {
		b.remainingMAh = 0
		b.depleted = true
	}
}

// Tick drains energy for every active operation and returns the per-tick
// energy delta by operation. The returned map is a fresh copy.
func (b *Battery) Tick(active []telemetry.Operation, timeStepS float64) map[telemetry.Operation]float64 {
	for k := range b.tickDelta {
		delete(b.tickDelta, k)
	}
	if !b.depleted {
		if len(active) == 0 {
			b.Consume(telemetry.OpIdle, timeStepS)
		}
		for _, op := range active {
			b.Consume(op, timeStepS)
		}
	}
	delta := make(map[telemetry.Operation]float64, len(b.tickDelta))
	for k, v := range b.tickDelta {
		delta[k] = v
	}
	return delta
}

// CheckWarnings returns newly crossed warning thresholds, highest first.
// Each threshold fires once per run.
func (b *Battery) CheckWarnings() []float64 {
	pct := b.Pct()
	var crossed []float64
	for _, t := range b.thresholds {
		if pct <= t && !b.triggered[t] {
			b.triggered[t] = true
			crossed = append(crossed, t)
		}
	}
	return crossed
}

// Pct returns remaining charge as a fraction in [0,1].
func (b *Battery) Pct() float64 {
	if b.cfg.CapacityMAh <= 0 {
		return 0
	}
	return b.remainingMAh / b.cfg.CapacityMAh
}

func (b *Battery) RemainingMAh() float64 { return b.remainingMAh }
func (b *Battery) CapacityMAh() float64  { return b.cfg.CapacityMAh }
func (b *Battery) ConsumedMAh() float64  { return b.consumedMAh }
func (b *Battery) Depleted() bool        { return b.depleted }

// Breakdown returns cumulative energy use per operation.
func (b *Battery) Breakdown() map[telemetry.Operation]float64 {
	out := make(map[telemetry.Operation]float64, len(b.breakdown))
	for k, v := range b.breakdown {
		out[k] = v
	}
	return out
}
