package sim

import (
	"encoding/csv"
	"os"
	"strconv"
	"strings"

	"twinsim/internal/telemetry"
)

// CSVWriter writes tick records to a CSV file with a fixed header row.
type CSVWriter struct {
	file *os.File
	w    *csv.Writer
}

var csvHeader = []string{
	"run_id", "tick", "timestamp_s",
	"cpu_utilization", "memory_used_kb", "memory_total_kb",
	"battery_remaining_mah", "battery_percent",
	"temperature", "humidity", "light",
	"bytes_sent", "bandwidth_utilization", "packet_loss_rate",
	"state_accuracy", "state_drift", "last_sync_tick",
	"alerts", "sync_event",
}

func NewCSVWriter(path string) (*CSVWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		f.Close()
		return nil, err
	}
	return &CSVWriter{file: f, w: w}, nil
}

// Write appends one record row.
func (c *CSVWriter) Write(rec telemetry.TickRecord) error {
	opt := func(v *float64) string {
		if v == nil {
			return ""
		}
		return strconv.FormatFloat(*v, 'f', 2, 64)
	}
	row := []string{
		rec.RunID,
		strconv.Itoa(rec.Tick),
		strconv.FormatFloat(rec.TimestampS, 'f', 1, 64),
		strconv.FormatFloat(rec.CPUUtilization, 'f', 4, 64),
		strconv.FormatFloat(rec.MemoryUsedKB, 'f', 2, 64),
		strconv.FormatFloat(rec.MemoryTotalKB, 'f', 0, 64),
		strconv.FormatFloat(rec.BatteryRemainingMAh, 'f', 4, 64),
		strconv.FormatFloat(rec.BatteryPercent, 'f', 2, 64),
		opt(rec.Temperature),
		opt(rec.Humidity),
		opt(rec.Light),
		strconv.FormatInt(rec.BytesSent, 10),
		strconv.FormatFloat(rec.BandwidthUtilization, 'f', 4, 64),
		strconv.FormatFloat(rec.PacketLossRate, 'f', 4, 64),
		strconv.FormatFloat(rec.StateAccuracy, 'f', 4, 64),
		strconv.FormatFloat(rec.StateDrift, 'f', 4, 64),
		strconv.Itoa(rec.LastSyncTick),
		strings.Join(rec.Alerts, "|"),
		strconv.FormatBool(rec.SyncEvent),
	}
	return c.w.Write(row)
}

// WriteBatch appends multiple record rows and flushes.
func (c *CSVWriter) WriteBatch(recs []telemetry.TickRecord) error {
	for _, r := range recs {
		if err := c.Write(r); err != nil {
			return err
		}
	}
	c.w.Flush()
	return c.w.Error()
}

// Close flushes and closes the file.
func (c *CSVWriter) Close() error {
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		c.file.Close()
		return err
	}
	return c.file.Close()
}
