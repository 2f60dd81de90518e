package main

import (
	"os"

	"twinsim/internal/config"
	"twinsim/internal/sim"
)

// newWriters sets up the record and alert writers based on flags and env
// vars. It returns the writers and a cleanup function to close any
// resources.
func newWriters(cfg *config.Config, printOnly, tui bool, logFile, csvFile string) (sim.RecordWriter, sim.AlertWriter, func(), error) {
	cleanup := func() {}

	var recWriters []sim.RecordWriter
	var alertWriters []sim.AlertWriter
	var closers []func()

	base, alertBase, err := baseWriters(cfg, printOnly, tui)
	if err != nil {
		return nil, nil, nil, err
	}
	recWriters = append(recWriters, base)
	if alertBase != nil {
		alertWriters = append(alertWriters, alertBase)
	}
	if c, ok := base.(interface{ Close() error }); ok {
		closers = append(closers, func() { c.Close() })
	}

	if logFile != "" {
		fw, err := sim.NewFileWriter(logFile, logFile+".alerts")
		if err != nil {
			return nil, nil, nil, err
		}
		recWriters = append(recWriters, fw)
		alertWriters = append(alertWriters, fw)
		closers = append(closers, func() { fw.Close() })
	}
	if csvFile != "" {
		cw, err := sim.NewCSVWriter(csvFile)
		if err != nil {
			return nil, nil, nil, err
		}
		recWriters = append(recWriters, cw)
		closers = append(closers, func() { cw.Close() })
	}

	cleanup = func() {
		for _, c := range closers {
			c()
		}
	}
	if len(recWriters) == 1 && len(alertWriters) <= 1 {
		var aw sim.AlertWriter
		if len(alertWriters) == 1 {
			aw = alertWriters[0]
		}
		return recWriters[0], aw, cleanup, nil
	}
	mw := sim.NewMultiWriter(recWriters, alertWriters)
	return mw, mw, cleanup, nil
}

// baseWriters chooses the underlying writer based on the TUI flag,
// print-only flag, and env vars.
func baseWriters(cfg *config.Config, printOnly, tui bool) (sim.RecordWriter, sim.AlertWriter, error) {
	if tui {
		w := sim.NewTUIWriter(cfg)
		return w, w, nil
	}
	if printOnly || os.Getenv("GREPTIMEDB_ENDPOINT") == "" {
		w := sim.NewJSONStdoutWriter()
		return w, w, nil
	}
	endpoint := os.Getenv("GREPTIMEDB_ENDPOINT")
	w, err := sim.NewGreptimeDBWriter(endpoint, "public")
	if err != nil {
		return nil, nil, err
	}
	return w, nil, nil
}

// newRecordWriter creates a record writer without alert handling, for
// replay.
func newRecordWriter(cfg *config.Config, printOnly, tui bool) (sim.RecordWriter, func(), error) {
	w, _, cleanup, err := newWriters(cfg, printOnly, tui, "", "")
	return w, cleanup, err
}
