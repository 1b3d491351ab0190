package contour

import (
	"image/color"

	"gonum.org/v1/gonum/spatial/r2"

	"rtviewer/internal/models"
	"rtviewer/pkg/geometry"
)

// DefaultLineWidth is the stroke width in screen pixels.
const DefaultLineWidth = 1.5

// Stroke draws the outlines of one ROI on one slice.
type Stroke struct {
	ROI   string
	Color color.RGBA

	// Paths are closed polygons in reference-canvas pixels
	Paths [][]r2.Vec

	// Width is in canvas pixels; multiplied by the view zoom it gives a
	// constant width on screen.
	Width float64
}

// Renderer produces stroke commands for visible ROIs.
type Renderer struct {
	lineWidth float64
}

// NewRenderer returns a renderer with the given screen-space line width.
func NewRenderer(lineWidth float64) *Renderer {
	if !(lineWidth > 0) {
		lineWidth = DefaultLineWidth
	}
	return &Renderer{lineWidth: lineWidth}
}

// Render returns strokes for every visible ROI that has contours at z. ROIs
// without contours on the slice are skipped.
func (r *Renderer) Render(idx *Index, ref models.Grid, z float64, visible func(roi string) bool, zoom float64) []Stroke {
	if idx == nil {
		return nil
	}
	if !(zoom > 0) {
		zoom = 1
	}
	var out []Stroke
	for _, name := range idx.Names() {
		if visible != nil && !visible(name) {
			continue
		}
		polys, ok := idx.Find(name, z)
		if !ok {
			continue
		}
		roi, _ := idx.Set().ROI(name)
		s := Stroke{ROI: name, Color: roi.Color, Width: r.lineWidth / zoom}
		for _, poly := range polys {
			if len(poly) < 2 {
				continue
			}
			path := make([]r2.Vec, len(poly))
			for i, p := range poly {
				path[i] = geometry.WorldToPixel(ref, p)
			}
			s.Paths = append(s.Paths, path)
		}
		if len(s.Paths) > 0 {
			out = append(out, s)
		}
	}
	return out
}
