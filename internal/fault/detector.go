// Package fault evaluates the per-tick alerting rules: resource thresholds,
// sustained-condition counters, windowed packet loss, sensor anomalies,
// and sync staleness. Alerts are edge-triggered; a rule fires once per
// contiguous violation and re-arms only after its condition clears.
package fault

import (
	"fmt"
	"log/slog"
	"math"

	"twinsim/internal/config"
	"twinsim/internal/telemetry"
)

// Alert severities.
const (
	SeverityWarning  = "WARNING"
	SeverityCritical = "CRITICAL"
)

// Fault kinds.
const (
	KindCPUOverload       = "cpu_overload"
	KindMemoryCritical    = "memory_critical"
	KindMemoryWarning     = "memory_warning"
	KindBatteryLow        = "battery_low"
	KindCommFailure       = "comm_failure"
	KindNetworkCongestion = "network_congestion"
	KindSyncDrift         = "sync_drift"
	KindSensorAnomaly     = "sensor_anomaly"
	KindMemoryLeak        = "memory_leak"
	KindCommTimeout       = "comm_timeout"
)

// Alert is one fault occurrence. Immutable once emitted.
type Alert struct {
	Severity string `json:"severity"`
	Kind     string `json:"kind"`
	Tick     int    `json:"tick"`
	Message  string `json:"message"`
}

func (a Alert) String() string {
	return fmt.Sprintf("[%s] %s @t=%d: %s", a.Severity, a.Kind, a.Tick, a.Message)
}

// ruleID distinguishes the two cpu and battery rules that share a kind.
type ruleID int

const (
	ruleCPUCritical ruleID = iota
	ruleCPUWarning
	ruleMemCritical
	ruleMemWarning
	ruleBatteryCritical
	ruleBatteryWarning
	rulePacketLoss
	ruleBandwidth
	ruleDrift
	ruleSensorTemp
	ruleSensorHumidity
	ruleSensorLight
	ruleMemLeak
	ruleCommTimeout
	ruleCount
)

// rollingStat keeps a bounded sample window for sensor anomaly z-scores.
type rollingStat struct {
	buf  []float64
	head int
	size int
}

func newRollingStat(capacity int) *rollingStat {
	return &rollingStat{buf: make([]float64, capacity)}
}

func (r *rollingStat) push(v float64) {
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
	if r.size < len(r.buf) {
		r.size++
	}
}

func (r *rollingStat) meanStddev() (mean, sd float64) {
	if r.size == 0 {
		return 0, 0
	}
	sum := 0.0
	for i := 0; i < r.size; i++ {
		sum += r.buf[i]
	}
	mean = sum / float64(r.size)
	sq := 0.0
	for i := 0; i < r.size; i++ {
		d := r.buf[i] - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(r.size))
}

// Detector evaluates the full rule set once per tick. Per-rule state is a
// sustain counter and a firing latch; nothing else persists.
type Detector struct {
	cfg config.FaultDetection
	log *slog.Logger

	sustain [ruleCount]int
	firing  [ruleCount]bool

	lossWindow []bool
	lossHead   int
	lossSize   int

	sensorStats map[string]*rollingStat

	prevMemUsed  float64
	leakRunTicks int

	alerts []Alert
}

func NewDetector(cfg config.FaultDetection, log *slog.Logger) *Detector {
	if log == nil {
		log = slog.Default()
	}
	window := cfg.PacketLossWindowS
	if window < 1 {
		window = 1
	}
	return &Detector{
		cfg:        cfg,
		log:        log,
		lossWindow: make([]bool, window),
		sensorStats: map[string]*rollingStat{
			telemetry.FieldTemperature: newRollingStat(60),
			telemetry.FieldHumidity:    newRollingStat(60),
			telemetry.FieldLight:       newRollingStat(60),
		},
	}
}

// Check evaluates every rule against this tick's snapshot and twin metrics.
// Returned alerts are also appended to the run-scoped log. expectedIntervalS
// is the active strategy's current sync interval, used by the comm_timeout
// rule.
func (d *Detector) Check(tick int, snap telemetry.DeviceSnapshot, drift float64, lastSyncTick, expectedIntervalS int) []Alert {
	var fired []Alert

	add := func(id ruleID, active bool, severity, kind, message string) {
		if !active {
			d.sustain[id] = 0
			d.firing[id] = false
			return
		}
		d.sustain[id]++
		if d.firing[id] {
			return
		}
		d.firing[id] = true
		a := Alert{Severity: severity, Kind: kind, Tick: tick, Message: message}
		fired = append(fired, a)
		d.alerts = append(d.alerts, a)
		d.log.Warn("fault detected", "severity", severity, "kind", kind, "tick", tick, "message", message)
	}

	// Sustained rules gate on the counter, not the instantaneous reading,
	// so the counter must advance before the latch check.
	sustained := func(id ruleID, active bool, durationS int, severity, kind, message string) {
		if !active {
			d.sustain[id] = 0
			d.firing[id] = false
			return
		}
		d.sustain[id]++
		if d.sustain[id] < durationS || d.firing[id] {
			return
		}
		d.firing[id] = true
		a := Alert{Severity: severity, Kind: kind, Tick: tick, Message: message}
		fired = append(fired, a)
		d.alerts = append(d.alerts, a)
		d.log.Warn("fault detected", "severity", severity, "kind", kind, "tick", tick, "message", message)
	}

	cpu := snap.CPUUtilization
	sustained(ruleCPUCritical, cpu > d.cfg.CPUCriticalThreshold, d.cfg.CPUCriticalDurationS,
		SeverityCritical, KindCPUOverload,
		fmt.Sprintf("cpu at %.0f%% for %ds", cpu*100, d.cfg.CPUCriticalDurationS))
	sustained(ruleCPUWarning, cpu > d.cfg.CPUWarningThreshold, d.cfg.CPUWarningDurationS,
		SeverityWarning, KindCPUOverload,
		fmt.Sprintf("cpu at %.0f%% for %ds", cpu*100, d.cfg.CPUWarningDurationS))

	memPct := snap.MemoryPct()
	add(ruleMemCritical, memPct > d.cfg.MemoryCriticalThreshold,
		SeverityCritical, KindMemoryCritical,
		fmt.Sprintf("memory at %.0f%%", memPct*100))
	add(ruleMemWarning, memPct > d.cfg.MemoryWarningThreshold,
		SeverityWarning, KindMemoryWarning,
		fmt.Sprintf("memory at %.0f%%", memPct*100))

	batPct := snap.BatteryPct()
	add(ruleBatteryCritical, batPct < d.cfg.BatteryCriticalThreshold,
		SeverityCritical, KindBatteryLow,
		fmt.Sprintf("battery at %.1f%%", batPct*100))
	add(ruleBatteryWarning, batPct < d.cfg.BatteryWarningThreshold,
		SeverityWarning, KindBatteryLow,
		fmt.Sprintf("battery at %.1f%%", batPct*100))

	lossRate := d.windowedLossRate(snap.PacketLoss)
	add(rulePacketLoss, lossRate > d.cfg.PacketLossCriticalThreshold,
		SeverityCritical, KindCommFailure,
		fmt.Sprintf("packet loss %.0f%% over %ds window", lossRate*100, d.cfg.PacketLossWindowS))

	add(ruleBandwidth, snap.BandwidthUtilization > d.cfg.BandwidthWarningThreshold,
		SeverityWarning, KindNetworkCongestion,
		fmt.Sprintf("bandwidth at %.0f%%", snap.BandwidthUtilization*100))

	add(ruleDrift, drift > d.cfg.StateDriftWarningThreshold,
		SeverityWarning, KindSyncDrift,
		fmt.Sprintf("twin drift %.3f exceeds %.3f", drift, d.cfg.StateDriftWarningThreshold))

	d.checkSensors(tick, snap, add)
	d.checkMemoryLeak(tick, snap, add)

	timeout := float64(tick-lastSyncTick) > d.cfg.CommTimeoutMultiplier*float64(expectedIntervalS)
	add(ruleCommTimeout, timeout,
		SeverityWarning, KindCommTimeout,
		fmt.Sprintf("no sync for %d ticks (expected every %ds)", tick-lastSyncTick, expectedIntervalS))

	return fired
}

// windowedLossRate records this tick's loss flag and returns the fraction of
// lossy ticks in the trailing window. The divisor is the full window size so
// a single lossy tick at run start does not read as total loss.
func (d *Detector) windowedLossRate(lost bool) float64 {
	d.lossWindow[d.lossHead] = lost
	d.lossHead = (d.lossHead + 1) % len(d.lossWindow)
	if d.lossSize < len(d.lossWindow) {
		d.lossSize++
	}
	n := 0
	for i := 0; i < d.lossSize; i++ {
		if d.lossWindow[i] {
			n++
		}
	}
	return float64(n) / float64(len(d.lossWindow))
}

// sensorRules fixes the channel evaluation order so same-tick alerts land
// in the log in a stable sequence.
var sensorRules = []struct {
	ch string
	id ruleID
}{
	{telemetry.FieldTemperature, ruleSensorTemp},
	{telemetry.FieldHumidity, ruleSensorHumidity},
	{telemetry.FieldLight, ruleSensorLight},
}

// checkSensors compares each channel's latest reading against its rolling
// mean. The sample joins the window after the comparison so a spike cannot
// mask itself.
func (d *Detector) checkSensors(tick int, snap telemetry.DeviceSnapshot, add func(ruleID, bool, string, string, string)) {
	for _, r := range sensorRules {
		ch, id := r.ch, r.id
		v, ok := snap.Field(ch)
		if !ok {
			add(id, false, "", "", "")
			continue
		}
		stat := d.sensorStats[ch]
		mean, sd := stat.meanStddev()
		anomalous := stat.size >= 10 && sd > 0 && math.Abs(v-mean) > d.cfg.SensorAnomalySigma*sd
		add(id, anomalous, SeverityWarning, KindSensorAnomaly,
			fmt.Sprintf("%s reading %.2f outside %.0f sigma of rolling mean %.2f", ch, v, d.cfg.SensorAnomalySigma, mean))
		stat.push(v)
	}
}

// checkMemoryLeak tracks the length of the current run of non-decreasing
// memory usage. Any decrease breaks the run and re-arms the rule.
func (d *Detector) checkMemoryLeak(tick int, snap telemetry.DeviceSnapshot, add func(ruleID, bool, string, string, string)) {
	if tick > 1 && snap.MemoryUsedKB >= d.prevMemUsed {
		d.leakRunTicks++
	} else {
		d.leakRunTicks = 0
	}
	d.prevMemUsed = snap.MemoryUsedKB

	leaking := d.cfg.MemoryLeakWindowS > 0 && d.leakRunTicks >= d.cfg.MemoryLeakWindowS
	add(ruleMemLeak, leaking,
		SeverityWarning, KindMemoryLeak,
		fmt.Sprintf("memory non-decreasing for %d ticks", d.leakRunTicks))
}

// Alerts returns the run-scoped alert log in tick order.
func (d *Detector) Alerts() []Alert { return d.alerts }

// Stats summarizes alert activity by severity and kind.
type Stats struct {
	Total      int
	Critical   int
	Warning    int
	ByKind     map[string]int
	FirstAlert *Alert
	LastAlert  *Alert
}

func (d *Detector) Stats() Stats {
	s := Stats{ByKind: make(map[string]int)}
	for i := range d.alerts {
		a := d.alerts[i]
		s.Total++
		if a.Severity == SeverityCritical {
			s.Critical++
		} else {
			s.Warning++
		}
		s.ByKind[a.Kind]++
		if s.FirstAlert == nil {
			s.FirstAlert = &d.alerts[i]
		}
		s.LastAlert = &d.alerts[i]
	}
	return s
}
