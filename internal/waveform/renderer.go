package waveform

import (
	"math"
	"sync"
)

// Renderer paints live traces and static envelopes onto a canvas
type Renderer struct {
	mu       sync.Mutex
	canvas   Canvas
	envelope []Segment
	onFrame  func(Canvas)
}

// NewRenderer returns a renderer for canvas. onFrame, when not nil, is
// called with the canvas after every completed frame.
func NewRenderer(canvas Canvas, onFrame func(Canvas)) *Renderer {
	return &Renderer{canvas: canvas, onFrame: onFrame}
}

// Canvas returns the target surface
func (r *Renderer) Canvas() Canvas {
	return r.canvas
}

// SetSamples computes the static envelope once for the canvas width
func (r *Renderer) SetSamples(samples []float32) {
	env := Envelope(samples, r.canvas.Width())
	r.mu.Lock()
	r.envelope = env
	r.mu.Unlock()
}

// HasEnvelope reports whether static mode has data to draw
func (r *Renderer) HasEnvelope() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.envelope != nil
}

// Reset drops the static envelope and clears the canvas
func (r *Renderer) Reset() {
	r.mu.Lock()
	r.envelope = nil
	r.canvas.Clear()
	r.mu.Unlock()
	r.frame()
}

// DrawStatic draws one vertical segment per envelope bucket and the position
// marker at ratio*width. It returns the number of segments drawn.
func (r *Renderer) DrawStatic(ratio float64) int {
	r.mu.Lock()
	c := r.canvas
	c.Clear()
	h := c.Height()
	for x, seg := range r.envelope {
		c.VLine(x, toRow(seg.Max, h), toRow(seg.Min, h))
	}
	drawn := len(r.envelope)
	if drawn > 0 {
		c.Marker(markerColumn(ratio, c.Width()))
	}
	r.mu.Unlock()

	r.frame()
	return drawn
}

// DrawLive strokes a centered trace of window across the full canvas width
func (r *Renderer) DrawLive(window []float32) {
	r.mu.Lock()
	c := r.canvas
	c.Clear()
	w, h := c.Width(), c.Height()
	mid := (h - 1) / 2
	if len(window) == 0 || w == 1 {
		c.Line(0, mid, w-1, mid)
	} else {
		px, py := 0, toRow(window[0], h)
		for x := 1; x < w; x++ {
			i := x * (len(window) - 1) / (w - 1)
			y := toRow(window[i], h)
			c.Line(px, py, x, y)
			px, py = x, y
		}
	}
	r.mu.Unlock()

	r.frame()
}

func (r *Renderer) frame() {
	if r.onFrame != nil {
		r.onFrame(r.canvas)
	}
}

// toRow maps an amplitude in [-1, 1] to a canvas row, +1 at the top
func toRow(v float32, height int) int {
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	return int(math.Round(float64(1-v) / 2 * float64(height-1)))
}

func markerColumn(ratio float64, width int) int {
	if math.IsNaN(ratio) || ratio < 0 {
		ratio = 0
	} else if ratio > 1 {
		ratio = 1
	}
	x := int(ratio * float64(width))
	if x >= width {
		x = width - 1
	}
	return x
}
