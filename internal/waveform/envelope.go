// Package waveform draws amplitude traces of recordings
package waveform

// Segment is the amplitude range of one horizontal bucket
type Segment struct {
	Min float32
	Max float32
}

// Envelope partitions samples into exactly width buckets and returns the
// min/max of each. When there are fewer samples than buckets, a bucket with
// no samples of its own repeats the sample at its position.
func Envelope(samples []float32, width int) []Segment {
	if width <= 0 {
		return nil
	}
	out := make([]Segment, width)
	n := len(samples)
	if n == 0 {
		return out
	}

	for i := 0; i < width; i++ {
		start := i * n / width
		end := (i + 1) * n / width
		if end <= start {
			s := samples[min(start, n-1)]
			out[i] = Segment{Min: s, Max: s}
			continue
		}

		lo, hi := samples[start], samples[start]
		for _, s := range samples[start+1 : end] {
			if s < lo {
				lo = s
			}
			if s > hi {
				hi = s
			}
		}
		out[i] = Segment{Min: lo, Max: hi}
	}
	return out
}
