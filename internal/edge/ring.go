package edge

import "math"

// ring is a fixed-capacity ring buffer of float64 samples. The oldest entry
// is evicted on insert once full, so behavior is identical regardless of run
// length.
type ring struct {
	buf  []float64
	head int
	size int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]float64, capacity)}
}

func (r *ring) push(v float64) {
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
	if r.size < len(r.buf) {
		r.size++
	}
}

func (r *ring) len() int { return r.size }

// mean returns the average of the stored samples.
func (r *ring) mean() float64 {
	if r.size == 0 {
		return 0
	}
	sum := 0.0
	for i := 0; i < r.size; i++ {
		sum += r.buf[i]
	}
	return sum / float64(r.size)
}

// stddev returns the population standard deviation of the stored samples.
func (r *ring) stddev() float64 {
	if r.size == 0 {
		return 0
	}
	m := r.mean()
	sum := 0.0
	for i := 0; i < r.size; i++ {
		d := r.buf[i] - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(r.size))
}
