// YAML config loader with CUE validation integration
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Simulation holds run-level parameters.
type Simulation struct {
	DurationHours   float64 `yaml:"duration_hours"`
	TimeStepSeconds float64 `yaml:"time_step_seconds"`
	SamplingRateS   int     `yaml:"sampling_rate_seconds"`
	RandomSeed      int64   `yaml:"random_seed"`
	LogFormat       string  `yaml:"log_format"`
	LogOutputDir    string  `yaml:"log_output_dir"`
}

// TotalTicks derives the tick horizon from duration and time step.
func (s Simulation) TotalTicks() int {
	if s.TimeStepSeconds <= 0 {
		return 0
	}
	return int(s.DurationHours * 3600 / s.TimeStepSeconds)
}

// TaskCosts defines CPU cycle costs per operation.
type TaskCosts struct {
	SensingCycles      int64 `yaml:"sensing_cycles"`
	ProcessingCycles   int64 `yaml:"processing_cycles"`
	TransmissionCycles int64 `yaml:"transmission_cycles"`
	IdleCycles         int64 `yaml:"idle_cycles"`
}

// Processor models an embedded MCU.
type Processor struct {
	ClockMHz  float64   `yaml:"clock_mhz"`
	TaskCosts TaskCosts `yaml:"task_costs"`
}

// Memory models a fixed RAM pool with optional leak injection.
type Memory struct {
	TotalRAMKB         float64 `yaml:"total_ram_kb"`
	BaseUsageKB        float64 `yaml:"base_usage_kb"`
	PerReadingBufferKB float64 `yaml:"per_reading_buffer_kb"`
	MaxBufferReadings  int     `yaml:"max_buffer_readings"`
	LeakEnabled        bool    `yaml:"leak_enabled"`
	LeakRateKBPerMin   float64 `yaml:"leak_rate_kb_per_minute"`
}

// CurrentDraw defines per-operation current in mA.
type CurrentDraw struct {
	SensingMA      float64 `yaml:"sensing"`
	ProcessingMA   float64 `yaml:"processing"`
	TransmissionMA float64 `yaml:"transmission"`
	IdleMA         float64 `yaml:"idle"`
}

// Battery models a Li-Po cell.
type Battery struct {
	CapacityMAh       float64     `yaml:"capacity_mah"`
	Voltage           float64     `yaml:"voltage"`
	CurrentDrawMA     CurrentDraw `yaml:"current_draw_ma"`
	WarningThresholds []float64   `yaml:"warning_thresholds"`
}

// Network models a LoRa/BLE class link.
type Network struct {
	Type                    string  `yaml:"type"`
	MaxBandwidthKbps        float64 `yaml:"max_bandwidth_kbps"`
	MaxPayloadBytes         int     `yaml:"max_payload_bytes"`
	BasePacketLossRate      float64 `yaml:"base_packet_loss_rate"`
	CongestionThreshold     float64 `yaml:"congestion_threshold"`
	CongestedPacketLossRate float64 `yaml:"congested_packet_loss_rate"`
}

// SensorChannel configures one simulated sensor.
type SensorChannel struct {
	BaseValue         float64    `yaml:"base_value"`
	NoiseStdDev       float64    `yaml:"noise_std_dev"`
	AnomalyProb       float64    `yaml:"anomaly_probability"`
	AnomalySpikeRange [2]float64 `yaml:"anomaly_spike_range"`
}

// LightChannel configures the day/night light sensor.
type LightChannel struct {
	CyclePeriodHours float64 `yaml:"cycle_period_hours"`
	DayValue         float64 `yaml:"day_value"`
	NightValue       float64 `yaml:"night_value"`
	NoiseStdDev      float64 `yaml:"noise_std_dev"`
}

// Sensors groups all sensor channels.
type Sensors struct {
	Temperature SensorChannel `yaml:"temperature"`
	Humidity    SensorChannel `yaml:"humidity"`
	Light       LightChannel  `yaml:"light"`
}

// Device groups the hardware models.
type Device struct {
	Processor Processor `yaml:"processor"`
	Memory    Memory    `yaml:"memory"`
	Battery   Battery   `yaml:"battery"`
	Network   Network   `yaml:"network"`
	Sensors   Sensors   `yaml:"sensors"`
}

// Edge configures the on-device preprocessing stage.
type Edge struct {
	Enabled            bool    `yaml:"enabled"`
	FilterWindowSize   int     `yaml:"filter_window_size"`
	OutlierSigma       float64 `yaml:"outlier_sigma"`
	CompressionEnabled bool    `yaml:"compression_enabled"`
	CompressionRatio   float64 `yaml:"compression_ratio"`
	AnomalyThreshold   float64 `yaml:"anomaly_threshold"`
}

// Adaptive holds the battery-tiered interval table.
type Adaptive struct {
	HighBatteryIntervalS   int     `yaml:"high_battery_interval_s"`
	MediumBatteryIntervalS int     `yaml:"medium_battery_interval_s"`
	LowBatteryIntervalS    int     `yaml:"low_battery_interval_s"`
	HighBatteryThreshold   float64 `yaml:"high_battery_threshold"`
	LowBatteryThreshold    float64 `yaml:"low_battery_threshold"`
}

// Sync selects and tunes the synchronization strategy.
type Sync struct {
	Strategy             string   `yaml:"strategy"`
	FullStateIntervalS   int      `yaml:"full_state_interval_s"`
	DeltaThreshold       float64  `yaml:"delta_threshold"`
	EventChangeThreshold float64  `yaml:"event_change_threshold"`
	MaxSilenceIntervalS  int      `yaml:"max_silence_interval_s"`
	Adaptive             Adaptive `yaml:"adaptive"`
}

// FaultDetection holds the rule thresholds and sustain windows.
type FaultDetection struct {
	CPUCriticalThreshold        float64 `yaml:"cpu_critical_threshold"`
	CPUCriticalDurationS        int     `yaml:"cpu_critical_duration_s"`
	CPUWarningThreshold         float64 `yaml:"cpu_warning_threshold"`
	CPUWarningDurationS         int     `yaml:"cpu_warning_duration_s"`
	MemoryCriticalThreshold     float64 `yaml:"memory_critical_threshold"`
	MemoryWarningThreshold      float64 `yaml:"memory_warning_threshold"`
	BatteryCriticalThreshold    float64 `yaml:"battery_critical_threshold"`
	BatteryWarningThreshold     float64 `yaml:"battery_warning_threshold"`
	BandwidthWarningThreshold   float64 `yaml:"bandwidth_warning_threshold"`
	PacketLossCriticalThreshold float64 `yaml:"packet_loss_critical_threshold"`
	PacketLossWindowS           int     `yaml:"packet_loss_window_s"`
	StateDriftWarningThreshold  float64 `yaml:"state_drift_warning_threshold"`
	MemoryLeakWindowS           int     `yaml:"memory_leak_window_s"`
	CommTimeoutMultiplier       float64 `yaml:"communication_timeout_multiplier"`
	SensorAnomalySigma          float64 `yaml:"sensor_anomaly_sigma"`
}

// Maintenance configures trend extrapolation.
type Maintenance struct {
	RegressionWindowS  int     `yaml:"regression_window_s"`
	RecomputeIntervalS int     `yaml:"recompute_interval_s"`
	SafetyFactor       float64 `yaml:"safety_factor"`
}

// Twin configures the state mirror.
type Twin struct {
	// BakeInterpolation writes interpolated values back into the mirror on
	// non-sync ticks instead of computing them on read.
	BakeInterpolation bool `yaml:"bake_interpolation"`
}

// Config is the root configuration for a simulation run.
type Config struct {
	Simulation     Simulation     `yaml:"simulation"`
	Device         Device         `yaml:"device"`
	Edge           Edge           `yaml:"edge"`
	Sync           Sync           `yaml:"sync"`
	Twin           Twin           `yaml:"twin"`
	FaultDetection FaultDetection `yaml:"fault_detection"`
	Maintenance    Maintenance    `yaml:"maintenance"`
}

// Default returns a complete configuration modeling a LoRa sensor node
// sampling every 5s over a 6 hour run.
func Default() *Config {
	return &Config{
		Simulation: Simulation{
			DurationHours:   6,
			TimeStepSeconds: 1,
			SamplingRateS:   5,
			RandomSeed:      42,
			LogFormat:       "json",
			LogOutputDir:    "logs",
		},
		Device: Device{
			Processor: Processor{
				ClockMHz: 80,
				TaskCosts: TaskCosts{
					SensingCycles:      2_000_000,
					ProcessingCycles:   8_000_000,
					TransmissionCycles: 12_000_000,
					IdleCycles:         100_000,
				},
			},
			Memory: Memory{
				TotalRAMKB:         256,
				BaseUsageKB:        40,
				PerReadingBufferKB: 2,
				MaxBufferReadings:  50,
				LeakEnabled:        true,
				LeakRateKBPerMin:   0.05,
			},
			Battery: Battery{
				CapacityMAh: 1000,
				Voltage:     3.7,
				CurrentDrawMA: CurrentDraw{
					SensingMA:      8,
					ProcessingMA:   15,
					TransmissionMA: 45,
					IdleMA:         0.5,
				},
				WarningThresholds: []float64{0.20, 0.10, 0.05},
			},
			Network: Network{
				Type:                    "LoRa",
				MaxBandwidthKbps:        50,
				MaxPayloadBytes:         222,
				BasePacketLossRate:      0.02,
				CongestionThreshold:     0.80,
				CongestedPacketLossRate: 0.15,
			},
			Sensors: Sensors{
				Temperature: SensorChannel{
					BaseValue:         22.0,
					NoiseStdDev:       0.4,
					AnomalyProb:       0.002,
					AnomalySpikeRange: [2]float64{8, 20},
				},
				Humidity: SensorChannel{
					BaseValue:         55.0,
					NoiseStdDev:       1.5,
					AnomalyProb:       0.001,
					AnomalySpikeRange: [2]float64{20, 40},
				},
				Light: LightChannel{
					CyclePeriodHours: 24,
					DayValue:         800,
					NightValue:       5,
					NoiseStdDev:      15,
				},
			},
		},
		Edge: Edge{
			Enabled:            true,
			FilterWindowSize:   5,
			OutlierSigma:       3.0,
			CompressionEnabled: true,
			CompressionRatio:   0.6,
			AnomalyThreshold:   3.0,
		},
		Sync: Sync{
			Strategy:             "adaptive",
			FullStateIntervalS:   10,
			DeltaThreshold:       0.02,
			EventChangeThreshold: 0.05,
			MaxSilenceIntervalS:  60,
			Adaptive: Adaptive{
				HighBatteryIntervalS:   5,
				MediumBatteryIntervalS: 15,
				LowBatteryIntervalS:    60,
				HighBatteryThreshold:   0.50,
				LowBatteryThreshold:    0.15,
			},
		},
		Twin: Twin{BakeInterpolation: false},
		FaultDetection: FaultDetection{
			CPUCriticalThreshold:        0.95,
			CPUCriticalDurationS:        30,
			CPUWarningThreshold:         0.80,
			CPUWarningDurationS:         60,
			MemoryCriticalThreshold:     0.95,
			MemoryWarningThreshold:      0.80,
			BatteryCriticalThreshold:    0.05,
			BatteryWarningThreshold:     0.20,
			BandwidthWarningThreshold:   0.80,
			PacketLossCriticalThreshold: 0.20,
			PacketLossWindowS:           60,
			StateDriftWarningThreshold:  0.15,
			MemoryLeakWindowS:           300,
			CommTimeoutMultiplier:       2.0,
			SensorAnomalySigma:          3.0,
		},
		Maintenance: Maintenance{
			RegressionWindowS:  500,
			RecomputeIntervalS: 30,
			SafetyFactor:       0.70,
		},
	}
}

// Load reads a YAML config, optionally validates it against a CUE schema,
// applies defaults for absent sections, and range-checks the result.
func Load(configPath, cueSchemaPath string) (*Config, error) {
	if cueSchemaPath != "" {
		if err := ValidateWithCue(configPath, cueSchemaPath); err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate range-checks parameters. Violations are fatal and surface before
// any tick runs.
func (c *Config) Validate() error {
	if c.Simulation.DurationHours <= 0 {
		return fmt.Errorf("simulation.duration_hours must be > 0, got %v", c.Simulation.DurationHours)
	}
	if c.Simulation.TimeStepSeconds <= 0 {
		return fmt.Errorf("simulation.time_step_seconds must be > 0, got %v", c.Simulation.TimeStepSeconds)
	}
	if c.Simulation.SamplingRateS <= 0 {
		return fmt.Errorf("simulation.sampling_rate_seconds must be > 0, got %d", c.Simulation.SamplingRateS)
	}
	if c.Device.Battery.CapacityMAh <= 0 {
		return fmt.Errorf("device.battery.capacity_mah must be > 0, got %v", c.Device.Battery.CapacityMAh)
	}
	if c.Device.Memory.TotalRAMKB <= 0 {
		return fmt.Errorf("device.memory.total_ram_kb must be > 0, got %v", c.Device.Memory.TotalRAMKB)
	}
	if c.Device.Memory.BaseUsageKB < 0 || c.Device.Memory.BaseUsageKB > c.Device.Memory.TotalRAMKB {
		return fmt.Errorf("device.memory.base_usage_kb must be within [0, total_ram_kb], got %v", c.Device.Memory.BaseUsageKB)
	}
	if c.Device.Network.MaxBandwidthKbps <= 0 {
		return fmt.Errorf("device.network.max_bandwidth_kbps must be > 0, got %v", c.Device.Network.MaxBandwidthKbps)
	}
	for name, v := range map[string]float64{
		"device.network.base_packet_loss_rate":      c.Device.Network.BasePacketLossRate,
		"device.network.congestion_threshold":       c.Device.Network.CongestionThreshold,
		"device.network.congested_packet_loss_rate": c.Device.Network.CongestedPacketLossRate,
		"edge.compression_ratio":                    c.Edge.CompressionRatio,
		"sync.delta_threshold":                      c.Sync.DeltaThreshold,
		"sync.event_change_threshold":               c.Sync.EventChangeThreshold,
		"fault_detection.cpu_critical_threshold":    c.FaultDetection.CPUCriticalThreshold,
		"fault_detection.cpu_warning_threshold":     c.FaultDetection.CPUWarningThreshold,
		"fault_detection.memory_critical_threshold": c.FaultDetection.MemoryCriticalThreshold,
		"fault_detection.memory_warning_threshold":  c.FaultDetection.MemoryWarningThreshold,
		"fault_detection.battery_critical_threshold": c.FaultDetection.BatteryCriticalThreshold,
		"fault_detection.battery_warning_threshold":  c.FaultDetection.BatteryWarningThreshold,
		"sync.adaptive.high_battery_threshold":       c.Sync.Adaptive.HighBatteryThreshold,
		"sync.adaptive.low_battery_threshold":        c.Sync.Adaptive.LowBatteryThreshold,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be within [0,1], got %v", name, v)
		}
	}
	if c.Edge.FilterWindowSize <= 0 {
		return fmt.Errorf("edge.filter_window_size must be > 0, got %d", c.Edge.FilterWindowSize)
	}
	switch c.Sync.Strategy {
	case "full_state", "delta", "event_driven", "adaptive":
	default:
		return fmt.Errorf("sync.strategy must be one of full_state|delta|event_driven|adaptive, got %q", c.Sync.Strategy)
	}
	if c.Sync.FullStateIntervalS <= 0 {
		return fmt.Errorf("sync.full_state_interval_s must be > 0, got %d", c.Sync.FullStateIntervalS)
	}
	if c.Sync.Adaptive.HighBatteryThreshold <= c.Sync.Adaptive.LowBatteryThreshold {
		return fmt.Errorf("sync.adaptive.high_battery_threshold (%v) must exceed low_battery_threshold (%v)",
			c.Sync.Adaptive.HighBatteryThreshold, c.Sync.Adaptive.LowBatteryThreshold)
	}
	if c.Maintenance.RegressionWindowS < 2 {
		return fmt.Errorf("maintenance.regression_window_s must be >= 2, got %d", c.Maintenance.RegressionWindowS)
	}
	if c.Maintenance.RecomputeIntervalS <= 0 {
		return fmt.Errorf("maintenance.recompute_interval_s must be > 0, got %d", c.Maintenance.RecomputeIntervalS)
	}
	if c.Maintenance.SafetyFactor <= 0 || c.Maintenance.SafetyFactor > 1 {
		return fmt.Errorf("maintenance.safety_factor must be within (0,1], got %v", c.Maintenance.SafetyFactor)
	}
	return nil
}

// Clone returns a deep copy, used by what-if mode to derive the modified
// configuration without touching the base.
func (c *Config) Clone() *Config {
	cp := *c
	cp.Device.Battery.WarningThresholds = append([]float64(nil), c.Device.Battery.WarningThresholds...)
	return &cp
}
