package waveform

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"strings"
)

// Canvas is a drawing surface addressed in pixels, origin top-left
type Canvas interface {
	Width() int
	Height() int
	Clear()
	// VLine draws a vertical segment in column x from row y0 to y1 inclusive
	VLine(x, y0, y1 int)
	// Line draws a straight stroke between two points
	Line(x0, y0, x1, y1 int)
	// Marker overlays the playback position at column x
	Marker(x int)
}

const (
	traceRune  = '█'
	strokeRune = '•'
	markerRune = '┃'
	blankRune  = ' '
)

// TextCanvas renders into a grid of runes for terminals
type TextCanvas struct {
	w, h  int
	cells [][]rune
}

func NewTextCanvas(width, height int) *TextCanvas {
	c := &TextCanvas{w: max(width, 1), h: max(height, 1)}
	c.cells = make([][]rune, c.h)
	for y := range c.cells {
		c.cells[y] = make([]rune, c.w)
	}
	c.Clear()
	return c
}

func (c *TextCanvas) Width() int  { return c.w }
func (c *TextCanvas) Height() int { return c.h }

func (c *TextCanvas) Clear() {
	for y := range c.cells {
		for x := range c.cells[y] {
			c.cells[y][x] = blankRune
		}
	}
}

func (c *TextCanvas) set(x, y int, r rune) {
	if x < 0 || x >= c.w || y < 0 || y >= c.h {
		return
	}
	c.cells[y][x] = r
}

func (c *TextCanvas) VLine(x, y0, y1 int) {
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	for y := y0; y <= y1; y++ {
		c.set(x, y, traceRune)
	}
}

func (c *TextCanvas) Line(x0, y0, x1, y1 int) {
	bresenham(x0, y0, x1, y1, func(x, y int) { c.set(x, y, strokeRune) })
}

func (c *TextCanvas) Marker(x int) {
	for y := 0; y < c.h; y++ {
		c.set(x, y, markerRune)
	}
}

// Column returns the runes of column x, top to bottom
func (c *TextCanvas) Column(x int) string {
	var sb strings.Builder
	for y := 0; y < c.h; y++ {
		sb.WriteRune(c.cells[y][x])
	}
	return sb.String()
}

func (c *TextCanvas) String() string {
	var sb strings.Builder
	for y, row := range c.cells {
		if y > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(string(row))
	}
	return sb.String()
}

var (
	ImageBackground = color.RGBA{R: 0xf8, G: 0xf9, B: 0xfa, A: 0xff}
	ImageTrace      = color.RGBA{R: 0x0d, G: 0x6e, B: 0xfd, A: 0xff}
	ImageMarker     = color.RGBA{R: 0xdc, G: 0x35, B: 0x45, A: 0xff}
)

// ImageCanvas renders into an RGBA image
type ImageCanvas struct {
	img *image.RGBA
}

func NewImageCanvas(width, height int) *ImageCanvas {
	c := &ImageCanvas{img: image.NewRGBA(image.Rect(0, 0, max(width, 1), max(height, 1)))}
	c.Clear()
	return c
}

func (c *ImageCanvas) Width() int         { return c.img.Bounds().Dx() }
func (c *ImageCanvas) Height() int        { return c.img.Bounds().Dy() }
func (c *ImageCanvas) Image() *image.RGBA { return c.img }

func (c *ImageCanvas) Clear() {
	draw.Draw(c.img, c.img.Bounds(), &image.Uniform{C: ImageBackground}, image.Point{}, draw.Src)
}

func (c *ImageCanvas) VLine(x, y0, y1 int) {
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	for y := y0; y <= y1; y++ {
		c.img.SetRGBA(x, y, ImageTrace)
	}
}

func (c *ImageCanvas) Line(x0, y0, x1, y1 int) {
	bresenham(x0, y0, x1, y1, func(x, y int) { c.img.SetRGBA(x, y, ImageTrace) })
}

func (c *ImageCanvas) Marker(x int) {
	for y := 0; y < c.Height(); y++ {
		c.img.SetRGBA(x, y, ImageMarker)
	}
}

// WritePNG encodes the canvas as PNG
func (c *ImageCanvas) WritePNG(w io.Writer) error {
	if err := png.Encode(w, c.img); err != nil {
		return fmt.Errorf("failed to encode waveform png: %w", err)
	}
	return nil
}

func bresenham(x0, y0, x1, y1 int, plot func(x, y int)) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		plot(x0, y0)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
