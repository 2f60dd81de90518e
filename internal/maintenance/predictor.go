// Package maintenance extrapolates resource exhaustion from the run's
// telemetry history using least-squares trends over a trailing window.
package maintenance

import (
	"fmt"
	"log/slog"

	"gonum.org/v1/gonum/stat"

	"twinsim/internal/config"
	"twinsim/internal/telemetry"
)

// Forecast kinds.
const (
	KindBatteryDepletion  = "battery_depletion"
	KindMemoryExhaustion  = "memory_exhaustion"
	KindMaintenanceWindow = "maintenance_window"
)

// Confidence buckets derived from regression R².
const (
	ConfidenceLow    = "low"
	ConfidenceMedium = "medium"
	ConfidenceHigh   = "high"
)

// Forecast is one exhaustion prediction. ETATicks counts from the tick the
// forecast was computed at; Undetermined means the trend does not point at
// exhaustion (flat or improving slope, or too little history).
type Forecast struct {
	Kind         string  `json:"kind"`
	ETATicks     float64 `json:"eta_ticks"`
	RSquared     float64 `json:"r_squared"`
	Confidence   string  `json:"confidence"`
	Undetermined bool    `json:"undetermined"`
	ComputedTick int     `json:"computed_tick"`
}

func (f Forecast) String() string {
	if f.Undetermined {
		return fmt.Sprintf("%s: undetermined", f.Kind)
	}
	return fmt.Sprintf("%s: %.0f ticks (confidence %s, r2=%.2f)", f.Kind, f.ETATicks, f.Confidence, f.RSquared)
}

// sample is one (tick, value) observation pair.
type sample struct {
	tick    float64
	battery float64
	memory  float64
}

// Predictor accumulates observations and recomputes forecasts on a cadence.
// Queries between recomputes return the cached forecasts unless they have
// gone stale, in which case they are recomputed first.
type Predictor struct {
	cfg config.Maintenance
	log *slog.Logger

	window     []sample
	memTotal   float64
	lastTick   int
	computedAt int

	forecasts map[string]Forecast
}

func NewPredictor(cfg config.Maintenance, log *slog.Logger) *Predictor {
	if log == nil {
		log = slog.Default()
	}
	return &Predictor{
		cfg:        cfg,
		log:        log,
		computedAt: -1,
		forecasts:  make(map[string]Forecast),
	}
}

// Observe records one tick's resource levels. The trailing window is
// bounded by the configured regression window.
func (p *Predictor) Observe(tick int, snap telemetry.DeviceSnapshot) {
	p.lastTick = tick
	p.memTotal = snap.MemoryTotalKB
	p.window = append(p.window, sample{
		tick:    float64(tick),
		battery: snap.BatteryRemainingMAh,
		memory:  snap.MemoryUsedKB,
	})
	if max := p.cfg.RegressionWindowS; max > 0 && len(p.window) > max {
		p.window = p.window[len(p.window)-max:]
	}

	if p.computedAt < 0 || tick-p.computedAt >= p.cfg.RecomputeIntervalS {
		p.recompute(tick)
	}
}

// Forecasts returns the current forecast set, recomputing first if the
// cached set is older than the recompute cadence.
func (p *Predictor) Forecasts() []Forecast {
	if p.computedAt < 0 || p.lastTick-p.computedAt >= p.cfg.RecomputeIntervalS {
		p.recompute(p.lastTick)
	}
	out := make([]Forecast, 0, 3)
	for _, k := range []string{KindBatteryDepletion, KindMemoryExhaustion, KindMaintenanceWindow} {
		if f, ok := p.forecasts[k]; ok {
			out = append(out, f)
		}
	}
	return out
}

// Forecast returns the cached forecast of one kind.
func (p *Predictor) Forecast(kind string) (Forecast, bool) {
	f, ok := p.forecasts[kind]
	return f, ok
}

func (p *Predictor) recompute(tick int) {
	p.computedAt = tick

	battery := p.regress(tick, KindBatteryDepletion, func(s sample) float64 { return s.battery }, 0)
	memory := p.regress(tick, KindMemoryExhaustion, func(s sample) float64 { return s.memory }, p.memTotal)
	p.forecasts[KindBatteryDepletion] = battery
	p.forecasts[KindMemoryExhaustion] = memory
	p.forecasts[KindMaintenanceWindow] = p.maintenanceWindow(tick, battery, memory)

	p.log.Debug("forecasts recomputed", "tick", tick,
		"battery", battery.String(), "memory", memory.String())
}

// regress fits value = alpha + beta*tick over the trailing window and
// projects when the value crosses target. For battery the target is empty
// (0); for memory it is total RAM, approached from below.
func (p *Predictor) regress(tick int, kind string, value func(sample) float64, target float64) Forecast {
	f := Forecast{Kind: kind, Undetermined: true, Confidence: ConfidenceLow, ComputedTick: tick}
	if len(p.window) < 2 {
		return f
	}

	xs := make([]float64, len(p.window))
	ys := make([]float64, len(p.window))
	for i, s := range p.window {
		xs[i] = s.tick
		ys[i] = value(s)
	}

	alpha, beta := stat.LinearRegression(xs, ys, nil, false)
	r2 := stat.RSquared(xs, ys, nil, alpha, beta)

	f.RSquared = r2
	f.Confidence = bucket(r2)

	current := alpha + beta*float64(tick)
	switch {
	case target == 0:
		// Depletion toward zero requires a negative slope.
		if beta >= 0 {
			return f
		}
		f.ETATicks = -current / beta
	default:
		// Exhaustion toward a ceiling requires a positive slope and headroom.
		if beta <= 0 || current >= target {
			return f
		}
		f.ETATicks = (target - current) / beta
	}
	if f.ETATicks < 0 {
		f.ETATicks = 0
	}
	f.Undetermined = false
	return f
}

// maintenanceWindow recommends maintenance ahead of the earlier predicted
// failure, scaled by the safety factor.
func (p *Predictor) maintenanceWindow(tick int, battery, memory Forecast) Forecast {
	f := Forecast{Kind: KindMaintenanceWindow, Undetermined: true, Confidence: ConfidenceLow, ComputedTick: tick}

	earliest, ok := Forecast{}, false
	for _, c := range []Forecast{battery, memory} {
		if c.Undetermined {
			continue
		}
		if !ok || c.ETATicks < earliest.ETATicks {
			earliest = c
			ok = true
		}
	}
	if !ok {
		return f
	}
	f.ETATicks = earliest.ETATicks * p.cfg.SafetyFactor
	f.RSquared = earliest.RSquared
	f.Confidence = earliest.Confidence
	f.Undetermined = false
	return f
}

// bucket maps R² to a reporting confidence label. Boundaries follow the
// same inclusive-lower-bound convention as the sync tiers.
func bucket(r2 float64) string {
	switch {
	case r2 > 0.8:
		return ConfidenceHigh
	case r2 >= 0.5:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}
