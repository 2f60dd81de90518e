package report

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"

	"twinsim/internal/fault"
	"twinsim/internal/sim"
	"twinsim/internal/telemetry"
)

// BuildRunPDF renders a run summary PDF.
func BuildRunPDF(m sim.Metrics, alerts []fault.Alert) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Device / Twin Simulation Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Run: %s", m.RunID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Strategy: %s", m.Strategy))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Seed: %d", m.Seed))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Ticks: %d (%.0f simulated seconds)", m.Ticks, m.SimTimeS))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", time.Now().Format(time.RFC3339)))
	pdf.Ln(8)

	row := func(label, value string) {
		pdf.CellFormat(70, 6, label, "1", 0, "L", false, 0, "")
		pdf.CellFormat(70, 6, value, "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	pdf.SetFont("Arial", "B", 10)
	pdf.Cell(0, 6, "Resources")
	pdf.Ln(7)
	pdf.SetFont("Arial", "", 10)
	row("CPU avg / peak", fmt.Sprintf("%.1f%% / %.1f%%", m.AvgCPUUtilization*100, m.PeakCPUUtilization*100))
	row("Memory avg", fmt.Sprintf("%.1f%%", m.AvgMemoryUtilization*100))
	row("Battery consumed", fmt.Sprintf("%.2f mAh", m.BatteryConsumedMAh))
	row("Battery remaining", fmt.Sprintf("%.1f%%", m.BatteryRemainingPct))
	for _, op := range telemetry.Operations {
		if v, ok := m.EnergyByOperation[op]; ok {
			row("Energy: "+string(op), fmt.Sprintf("%.3f mAh", v))
		}
	}
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 10)
	pdf.Cell(0, 6, "Synchronization")
	pdf.Ln(7)
	pdf.SetFont("Arial", "", 10)
	row("Syncs ok / failed", fmt.Sprintf("%d / %d", m.Sync.SyncCount, m.Sync.FailedCount))
	row("Bytes synced", fmt.Sprintf("%d", m.Sync.BytesSynced))
	row("Total bytes sent", fmt.Sprintf("%d", m.TotalBytesSent))
	row("Edge bytes saved", fmt.Sprintf("%d", m.Edge.BytesSaved))
	row("Avg twin accuracy", fmt.Sprintf("%.4f", m.AvgAccuracy))
	row("Avg twin drift", fmt.Sprintf("%.4f", m.AvgDrift))
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 10)
	pdf.Cell(0, 6, "Forecasts")
	pdf.Ln(7)
	pdf.SetFont("Arial", "", 10)
	for _, f := range m.Forecasts {
		if f.Undetermined {
			row(f.Kind, "undetermined")
			continue
		}
		row(f.Kind, fmt.Sprintf("%.0f ticks (%s)", f.ETATicks, f.Confidence))
	}
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Alerts (%d)", len(alerts)))
	pdf.Ln(7)
	pdf.SetFont("Arial", "", 9)
	pdf.CellFormat(20, 6, "Tick", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Severity", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Kind", "1", 0, "C", false, 0, "")
	pdf.CellFormat(95, 6, "Message", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	max := len(alerts)
	if max > 100 {
		max = 100
	}
	for _, a := range alerts[:max] {
		pdf.CellFormat(20, 6, fmt.Sprintf("%d", a.Tick), "1", 0, "R", false, 0, "")
		pdf.CellFormat(25, 6, a.Severity, "1", 0, "C", false, 0, "")
		pdf.CellFormat(40, 6, a.Kind, "1", 0, "L", false, 0, "")
		pdf.CellFormat(95, 6, a.Message, "1", 0, "L", false, 0, "")
		pdf.Ln(-1)
	}
	if len(alerts) > max {
		pdf.Cell(0, 6, fmt.Sprintf("... %d more", len(alerts)-max))
		pdf.Ln(5)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
