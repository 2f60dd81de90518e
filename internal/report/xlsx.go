package report

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"twinsim/internal/sim"
)

// BuildComparisonXLSX renders a what-if comparison workbook: one summary
// sheet per run plus a deltas sheet.
func BuildComparisonXLSX(c *sim.Comparison) ([]byte, error) {
	f := excelize.NewFile()
	baseSheet := "base"
	variantSheet := "variant"
	deltaSheet := "deltas"
	f.SetSheetName("Sheet1", baseSheet)
	f.NewSheet(variantSheet)
	f.NewSheet(deltaSheet)

	writeRun := func(sheet string, m sim.Metrics) {
		_ = f.SetCellValue(sheet, "A1", "Run")
		_ = f.SetCellValue(sheet, "B1", m.RunID)
		_ = f.SetCellValue(sheet, "A2", "Strategy")
		_ = f.SetCellValue(sheet, "B2", m.Strategy)
		_ = f.SetCellValue(sheet, "A3", "Seed")
		_ = f.SetCellValue(sheet, "B3", m.Seed)
		_ = f.SetCellValue(sheet, "A4", "Ticks")
		_ = f.SetCellValue(sheet, "B4", m.Ticks)
		_ = f.SetCellValue(sheet, "A5", "Battery Consumed (mAh)")
		_ = f.SetCellValue(sheet, "B5", m.BatteryConsumedMAh)
		_ = f.SetCellValue(sheet, "A6", "Battery Remaining (%)")
		_ = f.SetCellValue(sheet, "B6", m.BatteryRemainingPct)
		_ = f.SetCellValue(sheet, "A7", "Total Bytes Sent")
		_ = f.SetCellValue(sheet, "B7", m.TotalBytesSent)
		_ = f.SetCellValue(sheet, "A8", "Syncs")
		_ = f.SetCellValue(sheet, "B8", m.Sync.SyncCount)
		_ = f.SetCellValue(sheet, "A9", "Failed Syncs")
		_ = f.SetCellValue(sheet, "B9", m.Sync.FailedCount)
		_ = f.SetCellValue(sheet, "A10", "Avg Accuracy")
		_ = f.SetCellValue(sheet, "B10", m.AvgAccuracy)
		_ = f.SetCellValue(sheet, "A11", "Avg Drift")
		_ = f.SetCellValue(sheet, "B11", m.AvgDrift)
		_ = f.SetCellValue(sheet, "A12", "Alerts")
		_ = f.SetCellValue(sheet, "B12", m.Fault.Total)
		_ = f.SetCellValue(sheet, "A13", "Critical Alerts")
		_ = f.SetCellValue(sheet, "B13", m.Fault.Critical)
	}
	writeRun(baseSheet, c.Base)
	writeRun(variantSheet, c.Variant)

	_ = f.SetCellValue(deltaSheet, "A1", "Metric")
	_ = f.SetCellValue(deltaSheet, "B1", "Base")
	_ = f.SetCellValue(deltaSheet, "C1", "Variant")
	_ = f.SetCellValue(deltaSheet, "D1", "Delta")
	_ = f.SetCellValue(deltaSheet, "E1", "Delta (%)")
	for i, d := range c.Deltas {
		row := i + 2
		_ = f.SetCellValue(deltaSheet, fmt.Sprintf("A%d", row), d.Name)
		_ = f.SetCellValue(deltaSheet, fmt.Sprintf("B%d", row), d.Base)
		_ = f.SetCellValue(deltaSheet, fmt.Sprintf("C%d", row), d.Variant)
		_ = f.SetCellValue(deltaSheet, fmt.Sprintf("D%d", row), d.AbsDelta)
		_ = f.SetCellValue(deltaSheet, fmt.Sprintf("E%d", row), d.PctDelta)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
