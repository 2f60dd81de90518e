package edge

// Priority labels for queued payloads.
const (
	PriorityCritical = "critical"
	PriorityNormal   = "normal"
)

// maxPending bounds each priority class so an undrained queue stays flat
// regardless of run length. Overflow evicts the oldest payload.
const maxPending = 512

// PriorityQueue separates critical payloads from routine ones. Critical
// items bypass normal batching and are drained first.
type PriorityQueue struct {
	critical []map[string]float64
	normal   []map[string]float64

	totalCritical int
	totalNormal   int
}

func NewPriorityQueue() *PriorityQueue {
	return &PriorityQueue{}
}

// Enqueue adds a payload under the given priority.
func (q *PriorityQueue) Enqueue(values map[string]float64, priority string) {
	if priority == PriorityCritical {
		q.critical = bounded(append(q.critical, values))
		q.totalCritical++
		return
	}
	q.normal = bounded(append(q.normal, values))
	q.totalNormal++
}

func bounded(items []map[string]float64) []map[string]float64 {
	if len(items) > maxPending {
		return items[len(items)-maxPending:]
	}
	return items
}

// DrainCritical returns and clears all critical payloads.
func (q *PriorityQueue) DrainCritical() []map[string]float64 {
	items := q.critical
	q.critical = nil
	return items
}

// DrainNormal returns up to batchSize routine payloads.
func (q *PriorityQueue) DrainNormal(batchSize int) []map[string]float64 {
	n := batchSize
	if n > len(q.normal) {
		n = len(q.normal)
	}
	items := q.normal[:n]
	q.normal = q.normal[n:]
	return items
}

// HasCritical reports whether critical payloads are pending.
func (q *PriorityQueue) HasCritical() bool { return len(q.critical) > 0 }

// Stats returns pending and cumulative counts.
func (q *PriorityQueue) Stats() (pendingCritical, pendingNormal, totalCritical, totalNormal int) {
	return len(q.critical), len(q.normal), q.totalCritical, q.totalNormal
}
