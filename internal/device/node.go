// Node combines the CPU, memory, battery, network, and sensor models into
// one simulated IoT sensor device. It produces exactly one DeviceSnapshot
// per tick; the snapshot is immutable downstream.
package device

import (
	"math/rand"

	"twinsim/internal/config"
	"twinsim/internal/telemetry"
)

// Node simulates a complete resource-constrained sensor node.
type Node struct {
	cfg *config.Config
	rng *rand.Rand

	CPU     *CPU
	Memory  *Memory
	Battery *Battery
	Network *Network
	Sensors *SensorBank

	tick   int
	active bool
}

// NewNode builds a node from configuration. rng is the single seeded source
// shared by all stochastic elements of the run; the node never creates its
// own.
func NewNode(cfg *config.Config, rng *rand.Rand) *Node {
	return &Node{
		cfg:     cfg,
		rng:     rng,
		CPU:     NewCPU(cfg.Device.Processor),
		Memory:  NewMemory(cfg.Device.Memory),
		Battery: NewBattery(cfg.Device.Battery),
		Network: NewNetwork(cfg.Device.Network),
		Sensors: NewSensorBank(cfg.Device.Sensors),
		active:  true,
	}
}

// Active reports whether the device still has charge.
func (n *Node) Active() bool { return n.active }

// Tick advances the device by one tick and returns its snapshot.
func (n *Node) Tick(timeStepS float64) telemetry.DeviceSnapshot {
	if !n.active || n.Battery.Depleted() {
		n.active = false
		return n.snapshot(nil, false, nil, false)
	}

	n.tick++
	var active []telemetry.Operation
	var reading *telemetry.SensorReading

	isSensing := n.tick%n.cfg.Simulation.SamplingRateS == 0
	if isSensing {
		n.CPU.Schedule(telemetry.OpSensing)
		active = append(active, telemetry.OpSensing)

		r := n.Sensors.Generate(n.rng, n.tick, timeStepS)
		reading = &r
		n.Memory.AllocateBuffer()

		n.CPU.Schedule(telemetry.OpProcessing)
		active = append(active, telemetry.OpProcessing)
	} else {
		n.CPU.Schedule(telemetry.OpIdle)
		active = append(active, telemetry.OpIdle)
	}

	n.CPU.Tick(n.rng, timeStepS)
	n.Memory.Tick(timeStepS)
	delta := n.Battery.Tick(active, timeStepS)
	n.Network.Tick(timeStepS)

	alarm := len(n.Battery.CheckWarnings()) > 0
	if reading != nil && len(reading.Anomalies) > 0 {
		alarm = true
	}

	return n.snapshot(reading, isSensing, delta, alarm)
}

// Transmit sends a payload over the network, charging CPU and battery for
// the transmission. Memory buffers are freed on success.
func (n *Node) Transmit(payloadBytes int) TransmitResult {
	if !n.active {
		return TransmitResult{Success: false}
	}

	n.CPU.Schedule(telemetry.OpTransmission)

	maxBytesPerS := n.Network.MaxBandwidthKbps() * 1000 / 8
	txDuration := 1.0
	if maxBytesPerS > 0 {
		txDuration = float64(payloadBytes) / maxBytesPerS
	}
	n.Battery.Consume(telemetry.OpTransmission, txDuration)

	result := n.Network.Transmit(n.rng, payloadBytes)
	if result.Success {
		n.Memory.FreeBuffers()
	}
	return result
}

func (n *Node) snapshot(reading *telemetry.SensorReading, sensing bool, delta map[telemetry.Operation]float64, alarm bool) telemetry.DeviceSnapshot {
	return telemetry.DeviceSnapshot{
		Tick:       n.tick,
		TimestampS: float64(n.tick) * n.cfg.Simulation.TimeStepSeconds,

		CPUUtilization:     n.CPU.Utilization(),
		CPUCyclesUsed:      n.CPU.CyclesThisTick(),
		CPUPeakUtilization: n.CPU.PeakUtilization(),
		CPUOverloadEvents:  n.CPU.OverloadEvents(),

		MemoryUsedKB:  n.Memory.UsedKB(),
		MemoryTotalKB: n.Memory.TotalKB(),
		BufferCount:   n.Memory.BufferCount(),
		LeakedKB:      n.Memory.LeakedKB(),
		OOMEvents:     n.Memory.OOMEvents(),

		BatteryRemainingMAh: n.Battery.RemainingMAh(),
		BatteryCapacityMAh:  n.Battery.CapacityMAh(),
		TotalConsumedMAh:    n.Battery.ConsumedMAh(),
		EnergyDeltaMAh:      delta,
		BatteryDepleted:     n.Battery.Depleted(),

		BandwidthUtilization: n.Network.Utilization(),
		PacketLossRate:       n.Network.LossRate(),
		PacketLoss:           n.Network.LostLastTick(),
		TotalBytesSent:       n.Network.TotalBytes(),
		TotalPacketsSent:     n.Network.PacketsSent(),
		TotalPacketsLost:     n.Network.PacketsLost(),
		CongestionEvents:     n.Network.CongestionEvents(),

		Reading:       reading,
		IsSensingTick: sensing,
		Alarm:         alarm,
		Active:        n.active,
	}
}
