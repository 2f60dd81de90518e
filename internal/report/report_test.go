package report

import (
	"strings"
	"testing"

	"twinsim/internal/fault"
	"twinsim/internal/maintenance"
	"twinsim/internal/sim"
	"twinsim/internal/syncengine"
)

func sampleMetrics(strategy string) sim.Metrics {
	return sim.Metrics{
		RunID:    "run-1",
		Ticks:    3600,
		Strategy: strategy,
		Seed:     42,
		SimTimeS: 3600,

		AvgCPUUtilization:   0.31,
		PeakCPUUtilization:  0.97,
		BatteryConsumedMAh:  120.5,
		BatteryRemainingPct: 87.9,
		TotalBytesSent:      48_200,

		Sync: syncengine.Stats{Strategy: strategy, SyncCount: 60, BytesSynced: 12_000},

		AvgAccuracy: 0.982,
		AvgDrift:    0.018,

		Forecasts: []maintenance.Forecast{
			{Kind: maintenance.KindBatteryDepletion, ETATicks: 28000, RSquared: 0.99, Confidence: maintenance.ConfidenceHigh},
			{Kind: maintenance.KindMemoryExhaustion, Undetermined: true, Confidence: maintenance.ConfidenceLow},
		},
	}
}

func TestRenderRunCoversSections(t *testing.T) {
	out := RenderRun(sampleMetrics("adaptive"))

	for _, want := range []string{
		"adaptive",
		"run-1",
		"battery_depletion",
		"undetermined",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q", want)
		}
	}
}

func TestRenderComparisonMarksDeltas(t *testing.T) {
	base := sampleMetrics("full_state")
	variant := sampleMetrics("delta")
	variant.BatteryConsumedMAh = 80.2
	variant.AvgAccuracy = 0.951

	out := RenderComparison(sim.Compare(base, variant))
	if !strings.Contains(out, "full_state") || !strings.Contains(out, "delta") {
		t.Errorf("comparison should name both strategies")
	}
	if !strings.Contains(out, "battery_consumed_mah") {
		t.Errorf("comparison missing battery delta row")
	}
}

func TestBuildRunPDF(t *testing.T) {
	alerts := []fault.Alert{
		{Severity: fault.SeverityWarning, Kind: fault.KindBatteryLow, Tick: 900, Message: "battery at 14%"},
	}
	data, err := BuildRunPDF(sampleMetrics("adaptive"), alerts)
	if err != nil {
		t.Fatalf("BuildRunPDF: %v", err)
	}
	if len(data) == 0 || !strings.HasPrefix(string(data), "%PDF") {
		t.Errorf("output does not look like a PDF (%d bytes)", len(data))
	}
}

func TestBuildComparisonXLSX(t *testing.T) {
	c := sim.Compare(sampleMetrics("full_state"), sampleMetrics("delta"))
	data, err := BuildComparisonXLSX(c)
	if err != nil {
		t.Fatalf("BuildComparisonXLSX: %v", err)
	}
	// XLSX is a zip container.
	if len(data) < 4 || data[0] != 'P' || data[1] != 'K' {
		t.Errorf("output does not look like an XLSX archive")
	}
}
