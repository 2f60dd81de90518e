package sim

import (
	"encoding/json"
	"os"

	"twinsim/internal/fault"
	"twinsim/internal/telemetry"
)

// FileWriter writes tick records and alerts to JSONL files.
type FileWriter struct {
	tickFile  *os.File
	alertFile *os.File
	tickEnc   *json.Encoder
	alertEnc  *json.Encoder
}

// NewFileWriter creates a FileWriter. alertPath may be empty to skip the
// alert log.
func NewFileWriter(tickPath, alertPath string) (*FileWriter, error) {
	tf, err := os.Create(tickPath)
	if err != nil {
		return nil, err
	}
	fw := &FileWriter{tickFile: tf, tickEnc: json.NewEncoder(tf)}
	if alertPath != "" {
		af, err := os.Create(alertPath)
		if err != nil {
			tf.Close()
			return nil, err
		}
		fw.alertFile = af
		fw.alertEnc = json.NewEncoder(af)
	}
	return fw, nil
}

// Write logs a single tick record.
func (f *FileWriter) Write(rec telemetry.TickRecord) error {
	return f.tickEnc.Encode(rec)
}

// WriteBatch logs multiple tick records.
func (f *FileWriter) WriteBatch(recs []telemetry.TickRecord) error {
	for _, r := range recs {
		if err := f.tickEnc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

// WriteAlert logs a single alert. A nil alert log drops it silently.
func (f *FileWriter) WriteAlert(a fault.Alert) error {
	if f.alertEnc == nil {
		return nil
	}
	return f.alertEnc.Encode(a)
}

// WriteAlerts logs multiple alerts.
func (f *FileWriter) WriteAlerts(alerts []fault.Alert) error {
	for _, a := range alerts {
		if err := f.WriteAlert(a); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying files.
func (f *FileWriter) Close() error {
	var first error
	if err := f.tickFile.Close(); err != nil {
		first = err
	}
	if f.alertFile != nil {
		if err := f.alertFile.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
