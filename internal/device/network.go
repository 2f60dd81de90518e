package device

import (
	"math/rand"

	"twinsim/internal/config"
)

// TransmitResult reports the outcome of a single payload transmission.
type TransmitResult struct {
	Success    bool
	BytesSent  int
	PacketLoss bool
	Congested  bool
}

// Network simulates a bandwidth-limited LoRa/BLE class link with congestion
// dependent packet loss.
type Network struct {
	cfg config.Network

	bytesThisTick int64
	totalBytes    int64
	packetsSent   int64
	packetsLost   int64
	utilization   float64
	peak          float64
	congestions   int
	lostThisTick  bool
	lostLastTick  bool
	utilSum       float64
	tickCount     int
}

func NewNetwork(cfg config.Network) *Network {
	return &Network{cfg: cfg}
}

// Transmit attempts to send a payload. Oversized payloads are clamped to
// the link's maximum packet size.
func (n *Network) Transmit(rng *rand.Rand, payloadBytes int) TransmitResult {
	congested := n.utilization >= n.cfg.CongestionThreshold
	lossRate := n.cfg.BasePacketLossRate
	if congested {
		lossRate = n.cfg.CongestedPacketLossRate
	}

	n.packetsSent++
	if rng.Float64() < lossRate {
		n.packetsLost++
		n.lostThisTick = true
		return TransmitResult{Success: false, PacketLoss: true, Congested: congested}
	}

	actual := payloadBytes
	if actual > n.cfg.MaxPayloadBytes {
		actual = n.cfg.MaxPayloadBytes
	}
	n.bytesThisTick += int64(actual)
	n.totalBytes += int64(actual)
	return TransmitResult{Success: true, BytesSent: actual, Congested: congested}
}

// Tick recomputes bandwidth utilization from the bytes sent this tick and
// resets the per-tick counters.
func (n *Network) Tick(timeStepS float64) float64 {
	maxBytes := n.cfg.MaxBandwidthKbps * 1000 / 8 * timeStepS
	util := 0.0
	if maxBytes > 0 {
		util = float64(n.bytesThisTick) / maxBytes
	}
	if util > 1 {
		util = 1
	}
	n.utilization = util
	if util > n.peak {
		n.peak = util
	}
	if util >= n.cfg.CongestionThreshold {
		n.congestions++
	}
	n.utilSum += util
	n.tickCount++
	n.bytesThisTick = 0
	n.lostLastTick = n.lostThisTick
	n.lostThisTick = false
	return util
}

// LossRate returns the overall packet loss ratio.
func (n *Network) LossRate() float64 {
	if n.packetsSent == 0 {
		return 0
	}
	return float64(n.packetsLost) / float64(n.packetsSent)
}

func (n *Network) Utilization() float64     { return n.utilization }
func (n *Network) PeakUtilization() float64 { return n.peak }
func (n *Network) TotalBytes() int64        { return n.totalBytes }
func (n *Network) PacketsSent() int64       { return n.packetsSent }
func (n *Network) PacketsLost() int64       { return n.packetsLost }
func (n *Network) CongestionEvents() int    { return n.congestions }

// LostLastTick reports whether a transmission was dropped during the most
// recently completed tick.
func (n *Network) LostLastTick() bool { return n.lostLastTick }
func (n *Network) MaxBandwidthKbps() float64 {
	return n.cfg.MaxBandwidthKbps
}

// AvgUtilization returns mean bandwidth utilization across ticks so far.
func (n *Network) AvgUtilization() float64 {
	if n.tickCount == 0 {
		return 0
	}
	return n.utilSum / float64(n.tickCount)
}
