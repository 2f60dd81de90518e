package sim

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"twinsim/internal/fault"
	"twinsim/internal/telemetry"
)

// JSONStdoutWriter prints tick records and alerts as JSON lines to STDOUT.
type JSONStdoutWriter struct {
	out io.Writer
}

// NewJSONStdoutWriter creates a JSONStdoutWriter writing to os.Stdout.
func NewJSONStdoutWriter() *JSONStdoutWriter {
	return &JSONStdoutWriter{out: os.Stdout}
}

// Write outputs a tick record in JSON format.
func (w *JSONStdoutWriter) Write(rec telemetry.TickRecord) error {
	data, _ := json.Marshal(rec)
	fmt.Fprintln(w.out, string(data))
	return nil
}

// WriteBatch outputs multiple tick records in JSON format.
func (w *JSONStdoutWriter) WriteBatch(recs []telemetry.TickRecord) error {
	for _, r := range recs {
		_ = w.Write(r)
	}
	return nil
}

// WriteAlert outputs an alert in JSON format.
func (w *JSONStdoutWriter) WriteAlert(a fault.Alert) error {
	data, _ := json.Marshal(a)
	fmt.Fprintln(w.out, string(data))
	return nil
}

// WriteAlerts outputs multiple alerts in JSON format.
func (w *JSONStdoutWriter) WriteAlerts(alerts []fault.Alert) error {
	for _, a := range alerts {
		_ = w.WriteAlert(a)
	}
	return nil
}
