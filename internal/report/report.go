// Package report renders end-of-run summaries: a styled terminal report,
// a PDF export, and an XLSX export for what-if comparisons.
package report

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"twinsim/internal/maintenance"
	"twinsim/internal/sim"
	"twinsim/internal/telemetry"
)

var (
	styleTitle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	styleSection = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	styleLabel   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	styleGood    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	styleBad     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	styleBox     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// termWidth returns the terminal width, falling back to 80 when stdout is
// not a terminal.
func termWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return 80
}

// RenderRun builds the terminal summary for one completed run.
func RenderRun(m sim.Metrics) string {
	width := termWidth()
	box := styleBox.Width(min(width-2, 76))

	var b strings.Builder
	b.WriteString(styleTitle.Render(fmt.Sprintf("Simulation Report · run %s", m.RunID)) + "\n")
	b.WriteString(styleLabel.Render(fmt.Sprintf("strategy=%s seed=%d ticks=%d (%.0fs simulated)",
		m.Strategy, m.Seed, m.Ticks, m.SimTimeS)) + "\n\n")

	b.WriteString(box.Render(section("Device", [][2]string{
		{"CPU avg / peak", fmt.Sprintf("%.1f%% / %.1f%%", m.AvgCPUUtilization*100, m.PeakCPUUtilization*100)},
		{"CPU overloads", fmt.Sprintf("%d", m.CPUOverloadEvents)},
		{"Memory avg / peak", fmt.Sprintf("%.1f%% / %.1f KB", m.AvgMemoryUtilization*100, m.PeakMemoryKB)},
		{"Leaked / OOM", fmt.Sprintf("%.1f KB / %d", m.LeakedKB, m.OOMEvents)},
		{"Sensor readings", fmt.Sprintf("%d (%d anomalies)", m.SensorReadings, m.SensorAnomalies)},
	})) + "\n")

	b.WriteString(box.Render(section("Energy", energyRows(m))) + "\n")

	b.WriteString(box.Render(section("Network & Sync", [][2]string{
		{"Strategy", m.Sync.Strategy},
		{"Syncs ok / failed", fmt.Sprintf("%d / %d", m.Sync.SyncCount, m.Sync.FailedCount)},
		{"Heartbeats", fmt.Sprintf("%d", m.Sync.HeartbeatCount)},
		{"Bytes synced", fmt.Sprintf("%d", m.Sync.BytesSynced)},
		{"Total bytes sent", fmt.Sprintf("%d", m.TotalBytesSent)},
		{"Packets sent / lost", fmt.Sprintf("%d / %d", m.PacketsSent, m.PacketsLost)},
		{"Bandwidth avg", fmt.Sprintf("%.1f%%", m.AvgBandwidth*100)},
		{"Edge bytes saved", fmt.Sprintf("%d (%.0f%%)", m.Edge.BytesSaved, m.Edge.ReductionRatio*100)},
	})) + "\n")

	accStyle := styleGood
	if m.AvgAccuracy < 0.9 {
		accStyle = styleBad
	}
	b.WriteString(box.Render(section("Twin Fidelity", [][2]string{
		{"Avg accuracy", accStyle.Render(fmt.Sprintf("%.4f", m.AvgAccuracy))},
		{"Avg drift", fmt.Sprintf("%.4f", m.AvgDrift)},
		{"Final drift", fmt.Sprintf("%.4f", m.Twin.Drift)},
		{"Last sync tick", fmt.Sprintf("%d", m.Twin.LastSyncTick)},
	})) + "\n")

	b.WriteString(box.Render(section("Faults", faultRows(m))) + "\n")
	b.WriteString(box.Render(section("Forecasts", forecastRows(m.Forecasts))) + "\n")
	return b.String()
}

func section(title string, rows [][2]string) string {
	var b strings.Builder
	b.WriteString(styleSection.Render(title) + "\n")
	for _, r := range rows {
		b.WriteString(fmt.Sprintf("  %-22s %s\n", styleLabel.Render(r[0]), r[1]))
	}
	return strings.TrimRight(b.String(), "\n")
}

func energyRows(m sim.Metrics) [][2]string {
	rows := [][2]string{
		{"Consumed", fmt.Sprintf("%.2f mAh", m.BatteryConsumedMAh)},
		{"Remaining", fmt.Sprintf("%.1f%%", m.BatteryRemainingPct)},
	}
	for _, op := range telemetry.Operations {
		if v, ok := m.EnergyByOperation[op]; ok {
			rows = append(rows, [2]string{"  " + string(op), fmt.Sprintf("%.3f mAh", v)})
		}
	}
	return rows
}

func faultRows(m sim.Metrics) [][2]string {
	rows := [][2]string{
		{"Total", fmt.Sprintf("%d (%d critical, %d warning)", m.Fault.Total, m.Fault.Critical, m.Fault.Warning)},
	}
	for kind, n := range m.Fault.ByKind {
		rows = append(rows, [2]string{"  " + kind, fmt.Sprintf("%d", n)})
	}
	if m.Fault.Total == 0 {
		rows = append(rows, [2]string{"  status", styleGood.Render("no faults detected")})
	}
	return rows
}

func forecastRows(fs []maintenance.Forecast) [][2]string {
	if len(fs) == 0 {
		return [][2]string{{"status", "no forecasts computed"}}
	}
	rows := make([][2]string, 0, len(fs))
	for _, f := range fs {
		if f.Undetermined {
			rows = append(rows, [2]string{f.Kind, "undetermined"})
			continue
		}
		rows = append(rows, [2]string{f.Kind,
			fmt.Sprintf("%.0f ticks (confidence %s, r2=%.2f)", f.ETATicks, f.Confidence, f.RSquared)})
	}
	return rows
}

// RenderComparison builds the terminal summary for a what-if comparison.
func RenderComparison(c *sim.Comparison) string {
	var b strings.Builder
	b.WriteString(styleTitle.Render("What-If Comparison") + "\n")
	b.WriteString(styleLabel.Render(fmt.Sprintf("base: %s (%s) · variant: %s (%s)",
		c.Base.RunID, c.Base.Strategy, c.Variant.RunID, c.Variant.Strategy)) + "\n\n")

	b.WriteString(fmt.Sprintf("  %-28s %14s %14s %12s %9s\n", "metric", "base", "variant", "delta", "pct"))
	for _, d := range c.Deltas {
		pct := fmt.Sprintf("%+.1f%%", d.PctDelta)
		line := fmt.Sprintf("  %-28s %14.3f %14.3f %+12.3f %9s", d.Name, d.Base, d.Variant, d.AbsDelta, pct)
		if d.AbsDelta != 0 {
			switch d.Name {
			case "avg_accuracy":
				if d.AbsDelta > 0 {
					line = styleGood.Render(line)
				} else {
					line = styleBad.Render(line)
				}
			case "battery_consumed_mah", "avg_drift", "packets_lost", "alerts_critical":
				if d.AbsDelta < 0 {
					line = styleGood.Render(line)
				} else {
					line = styleBad.Render(line)
				}
			}
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
