package device

import (
	"math/rand"

	"twinsim/internal/config"
	"twinsim/internal/telemetry"
)

// CPU simulates processor utilization for a constrained embedded MCU.
// Tasks scheduled during a tick consume cycles; utilization is the fraction
// of the cycle budget used, plus a small jitter term.
type CPU struct {
	maxCyclesPerS float64
	costs         config.TaskCosts

	utilization    float64
	cyclesThisTick int64
	totalCycles    int64
	peak           float64
	overloadEvents int
	queue          []telemetry.Operation
	utilSum        float64
	utilCount      int
}

func NewCPU(cfg config.Processor) *CPU {
	return &CPU{
		maxCyclesPerS: cfg.ClockMHz * 1_000_000,
		costs:         cfg.TaskCosts,
	}
}

// Schedule queues a task for the current tick.
func (c *CPU) Schedule(op telemetry.Operation) {
	c.queue = append(c.queue, op)
}

func (c *CPU) cost(op telemetry.Operation) int64 {
	switch op {
	case telemetry.OpSensing:
		return c.costs.SensingCycles
	case telemetry.OpProcessing:
		return c.costs.ProcessingCycles
	case telemetry.OpTransmission:
		return c.costs.TransmissionCycles
	case telemetry.OpIdle:
		return c.costs.IdleCycles
	}
	return 0
}

// Tick processes all queued tasks and updates utilization.
func (c *CPU) Tick(rng *rand.Rand, timeStepS float64) float64 {
	c.cyclesThisTick = 0
	for _, op := range c.queue {
		c.cyclesThisTick += c.cost(op)
	}
	c.queue = c.queue[:0]

	available := c.maxCyclesPerS * timeStepS
	util := 0.0
	if available > 0 {
		util = float64(c.cyclesThisTick) / available
		if util > 1 {
			util = 1
		}
	}
	util += rng.NormFloat64() * 0.02
	c.utilization = clamp01(util)

	c.totalCycles += c.cyclesThisTick
	if c.utilization > c.peak {
		c.peak = c.utilization
	}
	if c.utilization > 0.95 {
		c.overloadEvents++
	}
	c.utilSum += c.utilization
	c.utilCount++
	return c.utilization
}

func (c *CPU) Utilization() float64     { return c.utilization }
func (c *CPU) CyclesThisTick() int64    { return c.cyclesThisTick }
func (c *CPU) PeakUtilization() float64 { return c.peak }
func (c *CPU) OverloadEvents() int      { return c.overloadEvents }

// AvgUtilization returns the mean utilization across all ticks so far.
func (c *CPU) AvgUtilization() float64 {
	if c.utilCount == 0 {
		return 0
	}
	return c.utilSum / float64(c.utilCount)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
