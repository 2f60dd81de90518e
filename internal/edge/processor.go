// Edge preprocessing between the device and the sync layer: per-channel
// noise filtering, payload compression modeling, and criticality triage.
package edge

import (
	"encoding/json"
	"log/slog"
	"math"

	"twinsim/internal/config"
	"twinsim/internal/telemetry"
)

// Output is the per-tick result of edge processing. It is consumed by the
// sync engine and then discarded; only aggregate stats are retained.
type Output struct {
	// Values holds the filtered sensor values by field name. Channels
	// missing from the snapshot are absent here too.
	Values           map[string]float64
	PayloadSizeBytes int
	OriginalBytes    int
	Critical         bool
	Filtered         bool
	LatencyMS        float64
}

// Processor runs the filter → compress → prioritize pipeline. Its only
// mutable state is the per-channel ring buffers.
type Processor struct {
	cfg config.Edge
	log *slog.Logger

	windows map[string]*ring
	queue   *PriorityQueue

	totalProcessed    int
	totalFiltered     int
	totalCritical     int
	bytesSaved        int64
	totalOrigBytes    int64
	totalPayloadBytes int64
}

// sensor channels subject to filtering
var channels = []string{telemetry.FieldTemperature, telemetry.FieldHumidity, telemetry.FieldLight}

func NewProcessor(cfg config.Edge, log *slog.Logger) *Processor {
	if log == nil {
		log = slog.Default()
	}
	windows := make(map[string]*ring, len(channels))
	for _, ch := range channels {
		windows[ch] = newRing(cfg.FilterWindowSize)
	}
	return &Processor{
		cfg:     cfg,
		log:     log,
		windows: windows,
		queue:   NewPriorityQueue(),
	}
}

// Process runs one snapshot through the edge pipeline. With edge processing
// disabled, values pass through raw and nothing is marked critical beyond
// the device alarm flag.
func (p *Processor) Process(snap telemetry.DeviceSnapshot) Output {
	values := p.filter(snap)

	out := Output{Values: values}
	if !p.cfg.Enabled {
		out.OriginalBytes = p.payloadBytes(values)
		out.PayloadSizeBytes = out.OriginalBytes
		out.Critical = snap.Alarm
		out.LatencyMS = 0
		return out
	}

	p.totalProcessed++

	out.Critical = p.prioritize(snap, values)
	if out.Critical {
		p.totalCritical++
	}

	priority := PriorityNormal
	if out.Critical {
		priority = PriorityCritical
	}
	p.queue.Enqueue(values, priority)

	out.OriginalBytes = p.payloadBytes(values)
	out.PayloadSizeBytes = out.OriginalBytes
	if p.cfg.CompressionEnabled {
		out.PayloadSizeBytes = p.compress(out.OriginalBytes)
		p.bytesSaved += int64(out.OriginalBytes - out.PayloadSizeBytes)
	}
	p.totalOrigBytes += int64(out.OriginalBytes)
	p.totalPayloadBytes += int64(out.PayloadSizeBytes)

	out.Filtered = len(values) > 0 && snap.Reading != nil
	if out.Filtered {
		p.totalFiltered++
	}

	// Deterministic latency model: fixed pass cost plus a per-byte term.
	out.LatencyMS = 0.5 + 0.002*float64(out.OriginalBytes)

	return out
}

// filter applies a moving-average pass with outlier rejection per channel.
// A channel missing from the snapshot passes through unfiltered for this
// tick; that is a soft data gap, not an error.
func (p *Processor) filter(snap telemetry.DeviceSnapshot) map[string]float64 {
	values := make(map[string]float64)
	if snap.Reading == nil {
		if snap.IsSensingTick {
			p.log.Warn("sensor reading missing on sensing tick, skipping filter", "tick", snap.Tick)
		}
		return values
	}

	for _, ch := range channels {
		raw, ok := snap.Field(ch)
		if !ok {
			p.log.Warn("sensor channel missing, passing through", "tick", snap.Tick, "channel", ch)
			continue
		}
		w := p.windows[ch]

		// Outlier rejection before the sample enters the window: a value
		// beyond the configured z-score of the window stats is replaced by
		// the window mean.
		if !p.cfg.Enabled {
			values[ch] = raw
			continue
		}
		if w.len() >= 3 {
			if sd := w.stddev(); sd > 0 && math.Abs(raw-w.mean()) > p.cfg.OutlierSigma*sd {
				raw = w.mean()
			}
		}
		w.push(raw)

		if w.len() >= 2 {
			values[ch] = math.Round(w.mean()*100) / 100
		} else {
			values[ch] = raw
		}
	}
	return values
}

// compress models payload reduction. Deterministic and never size
// increasing.
func (p *Processor) compress(originalBytes int) int {
	compressed := int(float64(originalBytes) * p.cfg.CompressionRatio)
	if compressed > originalBytes {
		compressed = originalBytes
	}
	return compressed
}

// prioritize marks the tick critical when a filtered channel deviates
// beyond the anomaly threshold (z-score against its window) or when the
// device raised an alarm.
func (p *Processor) prioritize(snap telemetry.DeviceSnapshot, values map[string]float64) bool {
	if snap.Alarm {
		return true
	}
	if snap.Reading != nil && len(snap.Reading.Anomalies) > 0 {
		return true
	}
	for ch, v := range values {
		w := p.windows[ch]
		if w.len() < 3 {
			continue
		}
		if sd := w.stddev(); sd > 0 && math.Abs(v-w.mean()) > p.cfg.AnomalyThreshold*sd {
			return true
		}
	}
	return false
}

// payloadBytes estimates the wire size of the candidate payload as its JSON
// encoding.
func (p *Processor) payloadBytes(values map[string]float64) int {
	if len(values) == 0 {
		return 0
	}
	b, err := json.Marshal(values)
	if err != nil {
		return 0
	}
	return len(b)
}

// Queue exposes the priority queue for drain-based transports.
func (p *Processor) Queue() *PriorityQueue { return p.queue }

// Stats summarizes edge processing for reports.
type Stats struct {
	Enabled        bool
	TotalProcessed int
	TotalFiltered  int
	TotalCritical  int
	BytesSaved     int64
	ReductionRatio float64
}

func (p *Processor) Stats() Stats {
	ratio := 0.0
	if p.totalOrigBytes > 0 {
		ratio = float64(p.bytesSaved) / float64(p.totalOrigBytes)
	}
	return Stats{
		Enabled:        p.cfg.Enabled,
		TotalProcessed: p.totalProcessed,
		TotalFiltered:  p.totalFiltered,
		TotalCritical:  p.totalCritical,
		BytesSaved:     p.bytesSaved,
		ReductionRatio: ratio,
	}
}
