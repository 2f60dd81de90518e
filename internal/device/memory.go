package device

import "twinsim/internal/config"

// Memory simulates a fixed RAM pool with sensor buffers and an optional
// slow leak. Usage is capped at the pool size; hitting the cap counts as an
// OOM event.
type Memory struct {
	cfg config.Memory

	usedKB      float64
	bufferCount int
	leakedKB    float64
	peakKB      float64
	oomEvents   int
	usedSum     float64
	tickCount   int
}

func NewMemory(cfg config.Memory) *Memory {
	return &Memory{cfg: cfg, usedKB: cfg.BaseUsageKB, peakKB: cfg.BaseUsageKB}
}

// AllocateBuffer reserves memory for one sensor reading.
func (m *Memory) AllocateBuffer() {
	if m.bufferCount < m.cfg.MaxBufferReadings {
		m.bufferCount++
		m.recalc()
	}
}

// FreeBuffers releases all sensor buffers, e.g. after a successful
// transmission.
func (m *Memory) FreeBuffers() {
	m.bufferCount = 0
	m.recalc()
}

// Tick advances memory state, applying the leak if enabled.
func (m *Memory) Tick(timeStepS float64) float64 {
	if m.cfg.LeakEnabled && m.cfg.LeakRateKBPerMin > 0 {
		m.leakedKB += m.cfg.LeakRateKBPerMin * (timeStepS / 60.0)
	}
	m.recalc()
	m.usedSum += m.usedKB
	m.tickCount++
	return m.usedKB
}

func (m *Memory) recalc() {
	m.usedKB = m.cfg.BaseUsageKB + float64(m.bufferCount)*m.cfg.PerReadingBufferKB + m.leakedKB
	if m.usedKB >= m.cfg.TotalRAMKB {
		m.usedKB = m.cfg.TotalRAMKB
		m.oomEvents++
	}
	if m.usedKB > m.peakKB {
		m.peakKB = m.usedKB
	}
}

func (m *Memory) UsedKB() float64  { return m.usedKB }
func (m *Memory) TotalKB() float64 { return m.cfg.TotalRAMKB }
func (m *Memory) BufferCount() int { return m.bufferCount }
func (m *Memory) LeakedKB() float64 {
	return m.leakedKB
}
func (m *Memory) PeakKB() float64 { return m.peakKB }
func (m *Memory) OOMEvents() int  { return m.oomEvents }

// Utilization returns usage as a fraction of the pool.
func (m *Memory) Utilization() float64 {
	if m.cfg.TotalRAMKB <= 0 {
		return 0
	}
	return m.usedKB / m.cfg.TotalRAMKB
}

// AvgUtilization returns mean utilization across ticks so far.
func (m *Memory) AvgUtilization() float64 {
	if m.tickCount == 0 || m.cfg.TotalRAMKB <= 0 {
		return 0
	}
	return m.usedSum / float64(m.tickCount) / m.cfg.TotalRAMKB
}
