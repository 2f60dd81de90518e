// Snapshot and row types shared across the pipeline and its writers.
package telemetry

import (
	"os"
	"time"
)

// Operation identifies an energy-consuming device activity.
type Operation string

// Device operations, used as keys in energy accounting.
const (
	OpSensing      Operation = "sensing"
	OpProcessing   Operation = "processing"
	OpTransmission Operation = "transmission"
	OpIdle         Operation = "idle"
)

// Operations lists all operations in stable order for deterministic iteration.
var Operations = []Operation{OpSensing, OpProcessing, OpTransmission, OpIdle}

// Synced field names. The sync strategies, twin, and drift computation all
// address device state through this closed set.
const (
	FieldCPUUtilization       = "cpu_utilization"
	FieldMemoryUsedKB         = "memory_used_kb"
	FieldBatteryRemainingMAh  = "battery_remaining_mah"
	FieldBandwidthUtilization = "bandwidth_utilization"
	FieldTemperature          = "temperature"
	FieldHumidity             = "humidity"
	FieldLight                = "light"
)

// Fields lists every syncable field in stable order.
var Fields = []string{
	FieldCPUUtilization,
	FieldMemoryUsedKB,
	FieldBatteryRemainingMAh,
	FieldBandwidthUtilization,
	FieldTemperature,
	FieldHumidity,
	FieldLight,
}

// SensorReading holds one sampled set of environmental values.
type SensorReading struct {
	Temperature float64  `json:"temperature"`
	Humidity    float64  `json:"humidity"`
	Light       float64  `json:"light"`
	Anomalies   []string `json:"anomalies,omitempty"`
}

// DeviceSnapshot is the immutable per-tick record produced by the device
// models. It is owned by the tick driver and read-only downstream.
type DeviceSnapshot struct {
	Tick       int     `json:"tick"`
	TimestampS float64 `json:"timestamp_s"`

	CPUUtilization     float64 `json:"cpu_utilization"`
	CPUCyclesUsed      int64   `json:"cpu_cycles_used"`
	CPUPeakUtilization float64 `json:"cpu_peak_utilization"`
	CPUOverloadEvents  int     `json:"cpu_overload_events"`

	MemoryUsedKB  float64 `json:"memory_used_kb"`
	MemoryTotalKB float64 `json:"memory_total_kb"`
	BufferCount   int     `json:"buffer_count"`
	LeakedKB      float64 `json:"leaked_kb"`
	OOMEvents     int     `json:"oom_events"`

	BatteryRemainingMAh float64               `json:"battery_remaining_mah"`
	BatteryCapacityMAh  float64               `json:"battery_capacity_mah"`
	TotalConsumedMAh    float64               `json:"total_consumed_mah"`
	EnergyDeltaMAh      map[Operation]float64 `json:"energy_delta_mah"`
	BatteryDepleted     bool                  `json:"battery_depleted"`

	BandwidthUtilization float64 `json:"bandwidth_utilization"`
	PacketLossRate       float64 `json:"packet_loss_rate"`
	PacketLoss           bool    `json:"packet_loss"`
	TotalBytesSent       int64   `json:"total_bytes_sent"`
	TotalPacketsSent     int64   `json:"total_packets_sent"`
	TotalPacketsLost     int64   `json:"total_packets_lost"`
	CongestionEvents     int     `json:"congestion_events"`

	// Reading is nil on non-sensing ticks; components degrade per-channel.
	Reading       *SensorReading `json:"reading,omitempty"`
	IsSensingTick bool           `json:"is_sensing_tick"`

	// Alarm flags an upstream device alarm condition (battery warning
	// threshold crossed this tick). The edge processor treats alarm ticks
	// as critical.
	Alarm  bool `json:"alarm"`
	Active bool `json:"active"`
}

// BatteryPct returns remaining battery as a fraction in [0,1].
func (s DeviceSnapshot) BatteryPct() float64 {
	if s.BatteryCapacityMAh <= 0 {
		return 0
	}
	return s.BatteryRemainingMAh / s.BatteryCapacityMAh
}

// MemoryPct returns memory utilization as a fraction in [0,1].
func (s DeviceSnapshot) MemoryPct() float64 {
	if s.MemoryTotalKB <= 0 {
		return 0
	}
	return s.MemoryUsedKB / s.MemoryTotalKB
}

// Field returns the snapshot value for a synced field name. The second
// return is false when the field is absent this tick (sensor channels on
// non-sensing ticks).
func (s DeviceSnapshot) Field(name string) (float64, bool) {
	switch name {
	case FieldCPUUtilization:
		return s.CPUUtilization, true
	case FieldMemoryUsedKB:
		return s.MemoryUsedKB, true
	case FieldBatteryRemainingMAh:
		return s.BatteryRemainingMAh, true
	case FieldBandwidthUtilization:
		return s.BandwidthUtilization, true
	case FieldTemperature:
		if s.Reading == nil {
			return 0, false
		}
		return s.Reading.Temperature, true
	case FieldHumidity:
		if s.Reading == nil {
			return 0, false
		}
		return s.Reading.Humidity, true
	case FieldLight:
		if s.Reading == nil {
			return 0, false
		}
		return s.Reading.Light, true
	}
	return 0, false
}

// TickRecord is the per-tick output row consumed by writers and the
// replayer. Field layout matches the run log schema.
type TickRecord struct {
	RunID      string  `json:"run_id"` // TAG
	Tick       int     `json:"tick"`
	TimestampS float64 `json:"timestamp_s"`

	CPUUtilization      float64  `json:"cpu_utilization"`
	MemoryUsedKB        float64  `json:"memory_used_kb"`
	MemoryTotalKB       float64  `json:"memory_total_kb"`
	BatteryRemainingMAh float64  `json:"battery_remaining_mah"`
	BatteryPercent      float64  `json:"battery_percent"`
	Temperature         *float64 `json:"temperature,omitempty"`
	Humidity            *float64 `json:"humidity,omitempty"`
	Light               *float64 `json:"light,omitempty"`

	BytesSent            int64   `json:"bytes_sent"`
	BandwidthUtilization float64 `json:"bandwidth_utilization"`
	PacketLossRate       float64 `json:"packet_loss_rate"`

	StateAccuracy float64 `json:"state_accuracy"`
	StateDrift    float64 `json:"state_drift"`
	LastSyncTick  int     `json:"last_sync_tick"`

	Alerts    []string  `json:"alerts"`
	SyncEvent bool      `json:"sync_event"`
	Timestamp time.Time `json:"ts"` // TIME INDEX
}

// TickTableName holds the table name used when writing to GreptimeDB.
// It defaults to "twin_ticks" but can be overridden via the
// GREPTIMEDB_TABLE environment variable.
var TickTableName = func() string {
	if env := os.Getenv("GREPTIMEDB_TABLE"); env != "" {
		return env
	}
	return "twin_ticks"
}()

func (TickRecord) TableName() string {
	return TickTableName
}
