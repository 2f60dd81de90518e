package maintenance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"twinsim/internal/config"
	"twinsim/internal/telemetry"
)

func testCfg() config.Maintenance {
	return config.Maintenance{
		RegressionWindowS:  500,
		RecomputeIntervalS: 30,
		SafetyFactor:       0.70,
	}
}

func observeLinearDrain(p *Predictor, ticks int) {
	for tick := 1; tick <= ticks; tick++ {
		p.Observe(tick, telemetry.DeviceSnapshot{
			Tick:                tick,
			BatteryRemainingMAh: 1000 - float64(tick),
			BatteryCapacityMAh:  1000,
			MemoryUsedKB:        100,
			MemoryTotalKB:       256,
		})
	}
}

func TestBatteryDepletionForecast(t *testing.T) {
	p := NewPredictor(testCfg(), nil)
	observeLinearDrain(p, 100)

	f, ok := p.Forecast(KindBatteryDepletion)
	require.True(t, ok)
	require.False(t, f.Undetermined)

	// Perfectly linear drain of 1 mAh per tick: depletion lands exactly
	// 1000 ticks from the start, measured from the recompute tick.
	assert.InDelta(t, 1000-float64(f.ComputedTick), f.ETATicks, 1e-6)
	assert.InDelta(t, 1.0, f.RSquared, 1e-9)
	assert.Equal(t, ConfidenceHigh, f.Confidence)
}

func TestFlatMemoryIsUndetermined(t *testing.T) {
	p := NewPredictor(testCfg(), nil)
	observeLinearDrain(p, 100)

	f, ok := p.Forecast(KindMemoryExhaustion)
	require.True(t, ok)
	assert.True(t, f.Undetermined, "constant memory must not forecast exhaustion")
}

func TestMemoryExhaustionForecast(t *testing.T) {
	p := NewPredictor(testCfg(), nil)
	for tick := 1; tick <= 100; tick++ {
		p.Observe(tick, telemetry.DeviceSnapshot{
			Tick:                tick,
			BatteryRemainingMAh: 900,
			BatteryCapacityMAh:  1000,
			MemoryUsedKB:        100 + 0.5*float64(tick),
			MemoryTotalKB:       256,
		})
	}
	f, ok := p.Forecast(KindMemoryExhaustion)
	require.True(t, ok)
	require.False(t, f.Undetermined)

	// Growth of 0.5 KB per tick from 100 KB toward 256 KB.
	current := 100 + 0.5*float64(f.ComputedTick)
	assert.InDelta(t, (256-current)/0.5, f.ETATicks, 1e-6)
	assert.Equal(t, ConfidenceHigh, f.Confidence)
}

func TestMaintenanceWindowUsesSafetyFactor(t *testing.T) {
	p := NewPredictor(testCfg(), nil)
	observeLinearDrain(p, 100)

	battery, ok := p.Forecast(KindBatteryDepletion)
	require.True(t, ok)
	window, ok := p.Forecast(KindMaintenanceWindow)
	require.True(t, ok)
	require.False(t, window.Undetermined)

	assert.InDelta(t, battery.ETATicks*0.70, window.ETATicks, 1e-6)
}

func TestInsufficientHistoryIsUndetermined(t *testing.T) {
	p := NewPredictor(testCfg(), nil)
	p.Observe(1, telemetry.DeviceSnapshot{Tick: 1, BatteryRemainingMAh: 1000})

	for _, f := range p.Forecasts() {
		assert.True(t, f.Undetermined, "%s should be undetermined with one sample", f.Kind)
	}
}

func TestForecastRecomputedOnStaleQuery(t *testing.T) {
	p := NewPredictor(testCfg(), nil)
	observeLinearDrain(p, 31) // recomputes at tick 1 and tick 31

	first, _ := p.Forecast(KindBatteryDepletion)
	assert.Equal(t, 31, first.ComputedTick)

	// Forecasts from before the cadence boundary are superseded once the
	// boundary is crossed.
	for tick := 32; tick <= 61; tick++ {
		p.Observe(tick, telemetry.DeviceSnapshot{
			Tick:                tick,
			BatteryRemainingMAh: 1000 - float64(tick),
			BatteryCapacityMAh:  1000,
		})
	}
	fs := p.Forecasts()
	require.NotEmpty(t, fs)
	assert.Equal(t, 61, fs[0].ComputedTick)
}

func TestConfidenceBuckets(t *testing.T) {
	assert.Equal(t, ConfidenceLow, bucket(0.49))
	assert.Equal(t, ConfidenceMedium, bucket(0.5))
	assert.Equal(t, ConfidenceMedium, bucket(0.8))
	assert.Equal(t, ConfidenceHigh, bucket(0.81))
}
