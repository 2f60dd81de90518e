package sim

import (
	"twinsim/internal/fault"
	"twinsim/internal/telemetry"
)

// RecordWriter is an interface to support different output writers.
type RecordWriter interface {
	Write(telemetry.TickRecord) error
}

// AlertWriter handles fault alerts.
type AlertWriter interface {
	WriteAlert(fault.Alert) error
}

// Optional: writers can also support batch mode
type batchWriter interface {
	WriteBatch([]telemetry.TickRecord) error
}

// Optional: alert writers may support batch mode
type batchAlertWriter interface {
	WriteAlerts([]fault.Alert) error
}
