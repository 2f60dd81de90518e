package sim

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"twinsim/internal/telemetry"
)

// ReplayLog replays tick records from r to writer. A speed >0 accelerates
// playback. If speed <= 0, no artificial delay is inserted.
func ReplayLog(r io.Reader, writer RecordWriter, speed float64) error {
	dec := json.NewDecoder(r)
	var prev time.Time
	for {
		var rec telemetry.TickRecord
		if err := dec.Decode(&rec); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if !prev.IsZero() && speed > 0 {
			diff := rec.Timestamp.Sub(prev)
			if speed != 1 {
				diff = time.Duration(float64(diff) / speed)
			}
			if diff > 0 {
				time.Sleep(diff)
			}
		}
		if err := writer.Write(rec); err != nil {
			return err
		}
		prev = rec.Timestamp
	}
}

// ReplayLogFile opens a file and replays its tick records.
func ReplayLogFile(path string, writer RecordWriter, speed float64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return ReplayLog(f, writer, speed)
}
