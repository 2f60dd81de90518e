package edge

import (
	"testing"

	"twinsim/internal/config"
	"twinsim/internal/telemetry"
)

func edgeCfg() config.Edge {
	return config.Edge{
		Enabled:            true,
		FilterWindowSize:   5,
		OutlierSigma:       3.0,
		CompressionEnabled: true,
		CompressionRatio:   0.6,
		AnomalyThreshold:   3.0,
	}
}

func sensingSnap(tick int, temp, hum, light float64) telemetry.DeviceSnapshot {
	return telemetry.DeviceSnapshot{
		Tick:          tick,
		IsSensingTick: true,
		Reading:       &telemetry.SensorReading{Temperature: temp, Humidity: hum, Light: light},
		Active:        true,
	}
}

func TestFilterMovingAverage(t *testing.T) {
	p := NewProcessor(edgeCfg(), nil)

	p.Process(sensingSnap(1, 20, 50, 100))
	out := p.Process(sensingSnap(2, 22, 50, 100))

	if got := out.Values[telemetry.FieldTemperature]; got != 21 {
		t.Errorf("moving average = %v, want 21", got)
	}
}

func TestOutlierReplacedByWindowMean(t *testing.T) {
	p := NewProcessor(edgeCfg(), nil)

	for i := 1; i <= 5; i++ {
		p.Process(sensingSnap(i, 20+float64(i%2), 50, 100))
	}
	out := p.Process(sensingSnap(6, 500, 50, 100))

	if v := out.Values[telemetry.FieldTemperature]; v > 30 {
		t.Errorf("outlier should be rejected, filtered value = %v", v)
	}
}

func TestCompressionNeverIncreasesPayload(t *testing.T) {
	p := NewProcessor(edgeCfg(), nil)
	out := p.Process(sensingSnap(1, 20, 50, 100))

	if out.PayloadSizeBytes > out.OriginalBytes {
		t.Errorf("compressed %d > original %d", out.PayloadSizeBytes, out.OriginalBytes)
	}
	if out.PayloadSizeBytes <= 0 {
		t.Errorf("sensing tick should produce a payload, got %d bytes", out.PayloadSizeBytes)
	}
}

func TestAlarmMarksCritical(t *testing.T) {
	p := NewProcessor(edgeCfg(), nil)
	snap := sensingSnap(1, 20, 50, 100)
	snap.Alarm = true

	out := p.Process(snap)
	if !out.Critical {
		t.Errorf("device alarm should mark the tick critical")
	}
	if !p.Queue().HasCritical() {
		t.Errorf("critical payload should land in the priority queue")
	}
}

func TestAnomalousReadingMarksCritical(t *testing.T) {
	p := NewProcessor(edgeCfg(), nil)
	snap := sensingSnap(1, 20, 50, 100)
	snap.Reading.Anomalies = []string{"temperature_spike"}

	if out := p.Process(snap); !out.Critical {
		t.Errorf("sensor anomaly should mark the tick critical")
	}
}

func TestNonSensingTickPassesThrough(t *testing.T) {
	p := NewProcessor(edgeCfg(), nil)
	out := p.Process(telemetry.DeviceSnapshot{Tick: 1, Active: true})

	if len(out.Values) != 0 {
		t.Errorf("no reading means no filtered values, got %v", out.Values)
	}
	if out.Critical {
		t.Errorf("quiet non-sensing tick must not be critical")
	}
}

func TestDisabledProcessorPassesRawValues(t *testing.T) {
	cfg := edgeCfg()
	cfg.Enabled = false
	p := NewProcessor(cfg, nil)

	out := p.Process(sensingSnap(1, 20, 50, 100))
	if out.Values[telemetry.FieldTemperature] != 20 {
		t.Errorf("disabled edge should pass raw values, got %v", out.Values)
	}
	if out.PayloadSizeBytes != out.OriginalBytes {
		t.Errorf("disabled edge must not compress")
	}
}

func TestStatsTrackReduction(t *testing.T) {
	p := NewProcessor(edgeCfg(), nil)
	for i := 1; i <= 10; i++ {
		p.Process(sensingSnap(i, 20, 50, 100))
	}
	s := p.Stats()
	if s.TotalProcessed != 10 {
		t.Errorf("processed = %d, want 10", s.TotalProcessed)
	}
	if s.BytesSaved <= 0 || s.ReductionRatio <= 0 {
		t.Errorf("compression should save bytes: %+v", s)
	}
}

func TestQueuePendingIsBounded(t *testing.T) {
	q := NewPriorityQueue()
	for i := 0; i < maxPending+100; i++ {
		q.Enqueue(map[string]float64{"seq": float64(i)}, PriorityNormal)
		q.Enqueue(map[string]float64{"seq": float64(i)}, PriorityCritical)
	}

	pc, pn, tc, tn := q.Stats()
	if pc != maxPending || pn != maxPending {
		t.Errorf("pending = %d/%d, want capped at %d", pc, pn, maxPending)
	}
	if tc != maxPending+100 || tn != maxPending+100 {
		t.Errorf("cumulative totals should count evicted payloads: %d/%d", tc, tn)
	}

	// Overflow evicts the oldest; the newest payload survives.
	items := q.DrainCritical()
	if got := items[len(items)-1]["seq"]; got != float64(maxPending+99) {
		t.Errorf("newest payload lost on overflow, tail seq = %v", got)
	}
	if got := items[0]["seq"]; got != 100 {
		t.Errorf("oldest surviving payload seq = %v, want 100", got)
	}
}

func TestRingEviction(t *testing.T) {
	r := newRing(3)
	for _, v := range []float64{1, 2, 3, 4} {
		r.push(v)
	}
	if r.len() != 3 {
		t.Fatalf("len = %d, want 3", r.len())
	}
	if m := r.mean(); m != 3 {
		t.Errorf("mean after eviction = %v, want 3", m)
	}
}
