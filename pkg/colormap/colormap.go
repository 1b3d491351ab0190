// Package colormap maps dose values in a display window onto a four-band
// blue-cyan-green-yellow-red ramp.
package colormap

import (
	"image/color"
	"math"
)

// Window is the displayed dose range. Values below Min are not painted.
type Window struct {
	Min float64
	Max float64
}

// Visible reports whether v should be painted at all.
func (w Window) Visible(v float64) bool {
	return v >= w.Min
}

// Normalize maps v into [0, 1] measured from Min. A degenerate window puts
// every visible value at the top of the ramp.
func (w Window) Normalize(v float64) float64 {
	span := w.Max - w.Min
	if !(span > 0) {
		if v >= w.Min {
			return 1
		}
		return 0
	}
	return clamp01((v - w.Min) / span)
}

// Color returns the ramp color for v, fully opaque.
func (w Window) Color(v float64) color.RGBA {
	return Ramp(w.Normalize(v))
}

// Color maps value within [windowMin, windowMax] to the ramp.
func Color(value, windowMin, windowMax float64) color.RGBA {
	return Window{Min: windowMin, Max: windowMax}.Color(value)
}

// Ramp returns the color at position r of the ramp; r is clamped to [0, 1].
//
//	[0, 0.25)    blue 255, green 0 -> 255
//	[0.25, 0.5)  green 255, blue 255 -> 0
//	[0.5, 0.75)  green 255, red 0 -> 255
//	[0.75, 1]    red 255, green 255 -> 0
func Ramp(r float64) color.RGBA {
	r = clamp01(r)
	switch {
	case r < 0.25:
		return color.RGBA{R: 0, G: channel(r * 4), B: 255, A: 255}
	case r < 0.5:
		return color.RGBA{R: 0, G: 255, B: channel(1 - (r-0.25)*4), A: 255}
	case r < 0.75:
		return color.RGBA{R: channel((r - 0.5) * 4), G: 255, B: 0, A: 255}
	default:
		return color.RGBA{R: 255, G: channel(1 - (r-0.75)*4), B: 0, A: 255}
	}
}

func channel(f float64) uint8 {
	return uint8(math.Round(clamp01(f) * 255))
}

func clamp01(f float64) float64 {
	if math.IsNaN(f) || f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
