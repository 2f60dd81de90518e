package sim

import (
	"twinsim/internal/fault"
	"twinsim/internal/telemetry"
)

// MultiWriter fan-outs tick records and alerts to multiple writers.
type MultiWriter struct {
	recWriters   []RecordWriter
	alertWriters []AlertWriter
}

// NewMultiWriter creates a new MultiWriter.
func NewMultiWriter(rws []RecordWriter, aws []AlertWriter) *MultiWriter {
	return &MultiWriter{recWriters: rws, alertWriters: aws}
}

// Write sends a tick record to all writers.
func (mw *MultiWriter) Write(rec telemetry.TickRecord) error {
	for _, w := range mw.recWriters {
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	return nil
}

// WriteBatch sends multiple tick records to all writers, using batch if
// supported.
func (mw *MultiWriter) WriteBatch(recs []telemetry.TickRecord) error {
	for _, w := range mw.recWriters {
		if bw, ok := w.(batchWriter); ok {
			if err := bw.WriteBatch(recs); err != nil {
				return err
			}
			continue
		}
		for _, r := range recs {
			if err := w.Write(r); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteAlert sends an alert to all alert writers.
func (mw *MultiWriter) WriteAlert(a fault.Alert) error {
	for _, w := range mw.alertWriters {
		if err := w.WriteAlert(a); err != nil {
			return err
		}
	}
	return nil
}

// WriteAlerts sends multiple alerts to all alert writers, using batch if
// supported.
func (mw *MultiWriter) WriteAlerts(alerts []fault.Alert) error {
	for _, w := range mw.alertWriters {
		if bw, ok := w.(batchAlertWriter); ok {
			if err := bw.WriteAlerts(alerts); err != nil {
				return err
			}
			continue
		}
		for _, a := range alerts {
			if err := w.WriteAlert(a); err != nil {
				return err
			}
		}
	}
	return nil
}
