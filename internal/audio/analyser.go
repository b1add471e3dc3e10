package audio

import "sync"

// RingAnalyser keeps the latest samples of a capture in a fixed window
type RingAnalyser struct {
	mu     sync.Mutex
	buf    []float32
	pos    int
	filled int
}

// NewRingAnalyser returns an analyser holding up to size samples
func NewRingAnalyser(size int) *RingAnalyser {
	if size < 1 {
		size = 1
	}
	return &RingAnalyser{buf: make([]float32, size)}
}

// Push appends samples, overwriting the oldest ones
func (r *RingAnalyser) Push(samples []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range samples {
		r.buf[r.pos] = s
		r.pos = (r.pos + 1) % len(r.buf)
		if r.filled < len(r.buf) {
			r.filled++
		}
	}
}

func (r *RingAnalyser) TimeDomain(dst []float32) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(dst)
	if n > r.filled {
		n = r.filled
	}
	start := (r.pos - n + len(r.buf)) % len(r.buf)
	for i := 0; i < n; i++ {
		dst[i] = r.buf[(start+i)%len(r.buf)]
	}
	return n
}

// Reset drops all samples
func (r *RingAnalyser) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pos = 0
	r.filled = 0
}
