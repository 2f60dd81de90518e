package sim

import (
	"twinsim/internal/edge"
	"twinsim/internal/fault"
	"twinsim/internal/maintenance"
	"twinsim/internal/syncengine"
	"twinsim/internal/telemetry"
	"twinsim/internal/twin"
)

// Metrics aggregates one completed (or in-progress) run for reporting and
// what-if comparison.
type Metrics struct {
	RunID    string  `json:"run_id"`
	Ticks    int     `json:"ticks"`
	Strategy string  `json:"strategy"`
	Seed     int64   `json:"seed"`
	SimTimeS float64 `json:"sim_time_s"`

	AvgCPUUtilization  float64 `json:"avg_cpu_utilization"`
	PeakCPUUtilization float64 `json:"peak_cpu_utilization"`
	CPUOverloadEvents  int     `json:"cpu_overload_events"`

	AvgMemoryUtilization float64 `json:"avg_memory_utilization"`
	PeakMemoryKB         float64 `json:"peak_memory_kb"`
	LeakedKB             float64 `json:"leaked_kb"`
	OOMEvents            int     `json:"oom_events"`

	BatteryConsumedMAh  float64                         `json:"battery_consumed_mah"`
	BatteryRemainingPct float64                         `json:"battery_remaining_pct"`
	EnergyByOperation   map[telemetry.Operation]float64 `json:"energy_by_operation"`

	TotalBytesSent   int64   `json:"total_bytes_sent"`
	PacketsSent      int64   `json:"packets_sent"`
	PacketsLost      int64   `json:"packets_lost"`
	AvgBandwidth     float64 `json:"avg_bandwidth_utilization"`
	CongestionEvents int     `json:"congestion_events"`

	Sync  syncengine.Stats `json:"sync"`
	Twin  twin.Stats       `json:"twin"`
	Edge  edge.Stats       `json:"edge"`
	Fault fault.Stats      `json:"fault"`

	AvgAccuracy float64 `json:"avg_accuracy"`
	AvgDrift    float64 `json:"avg_drift"`

	Forecasts []maintenance.Forecast `json:"forecasts"`

	SensorReadings  int `json:"sensor_readings"`
	SensorAnomalies int `json:"sensor_anomalies"`
}

func (p *Pipeline) metricsLocked() Metrics {
	m := Metrics{
		RunID:    p.RunID,
		Ticks:    p.tick,
		Strategy: p.eng.Strategy(),
		Seed:     p.cfg.Simulation.RandomSeed,
		SimTimeS: float64(p.tick) * p.cfg.Simulation.TimeStepSeconds,

		AvgCPUUtilization:  p.node.CPU.AvgUtilization(),
		PeakCPUUtilization: p.node.CPU.PeakUtilization(),
		CPUOverloadEvents:  p.node.CPU.OverloadEvents(),

		AvgMemoryUtilization: p.node.Memory.AvgUtilization(),
		PeakMemoryKB:         p.node.Memory.PeakKB(),
		LeakedKB:             p.node.Memory.LeakedKB(),
		OOMEvents:            p.node.Memory.OOMEvents(),

		BatteryConsumedMAh:  p.node.Battery.ConsumedMAh(),
		BatteryRemainingPct: p.node.Battery.Pct() * 100,
		EnergyByOperation:   p.node.Battery.Breakdown(),

		TotalBytesSent:   p.node.Network.TotalBytes(),
		PacketsSent:      p.node.Network.PacketsSent(),
		PacketsLost:      p.node.Network.PacketsLost(),
		AvgBandwidth:     p.node.Network.AvgUtilization(),
		CongestionEvents: p.node.Network.CongestionEvents(),

		Sync:  p.eng.Stats(),
		Twin:  p.twin.Stats(),
		Edge:  p.proc.Stats(),
		Fault: p.det.Stats(),

		Forecasts: p.pred.Forecasts(),

		SensorReadings:  p.node.Sensors.TotalReadings(),
		SensorAnomalies: p.node.Sensors.TotalAnomalies(),
	}

	hist := p.twin.History()
	if len(hist) > 0 {
		var acc, drift float64
		for _, r := range hist {
			acc += r.Accuracy
			drift += r.Drift
		}
		m.AvgAccuracy = acc / float64(len(hist))
		m.AvgDrift = drift / float64(len(hist))
	}
	return m
}
