package geometry

import (
	"gonum.org/v1/gonum/spatial/r2"

	"rtviewer/internal/models"
)

// PixelToWorld converts a pixel index (col, row) of g to world coordinates.
func PixelToWorld(g models.Grid, p r2.Vec) r2.Vec {
	return r2.Add(g.Origin, mulElem(p, g.Spacing))
}

// WorldToPixel converts a world point to a (fractional) pixel index of g.
func WorldToPixel(g models.Grid, w r2.Vec) r2.Vec {
	return divElem(r2.Sub(w, g.Origin), g.Spacing)
}

// Mapper converts pixel positions of one grid into another. Only
// axis-aligned grids are modelled: there is no rotation or shear, and the two
// axes scale independently.
type Mapper struct {
	From models.Grid
	To   models.Grid
}

// NewMapper returns a mapper from one grid's pixel space to another's.
func NewMapper(from, to models.Grid) Mapper {
	return Mapper{From: from, To: to}
}

// Map converts a pixel index of From to a pixel index of To.
func (m Mapper) Map(p r2.Vec) r2.Vec {
	return WorldToPixel(m.To, PixelToWorld(m.From, p))
}

// Inverse converts a pixel index of To back to From.
func (m Mapper) Inverse(p r2.Vec) r2.Vec {
	return WorldToPixel(m.From, PixelToWorld(m.To, p))
}

// Scale returns the size of one From pixel measured in To pixels.
func (m Mapper) Scale() r2.Vec {
	return divElem(m.From.Spacing, m.To.Spacing)
}

// Placement returns where a bitmap at From resolution lands on a canvas at To
// resolution.
func (m Mapper) Placement() Placement {
	return Placement{
		Offset: divElem(r2.Sub(m.From.Origin, m.To.Origin), m.To.Spacing),
		Size: mulElem(
			r2.Vec{X: float64(m.From.Cols), Y: float64(m.From.Rows)},
			m.Scale(),
		),
	}
}

// Placement is a destination rectangle in canvas pixels.
type Placement struct {
	// Offset is the canvas position of the bitmap's top-left corner
	Offset r2.Vec

	// Size is the bitmap's extent on the canvas
	Size r2.Vec
}

// Box returns the placement as a box.
func (p Placement) Box() r2.Box {
	return r2.Box{Min: p.Offset, Max: r2.Add(p.Offset, p.Size)}
}

// Contains reports whether canvas point c lies inside the placement.
func (p Placement) Contains(c r2.Vec) bool {
	b := p.Box()
	return c.X >= b.Min.X && c.X < b.Max.X && c.Y >= b.Min.Y && c.Y < b.Max.Y
}

func mulElem(a, b r2.Vec) r2.Vec {
	return r2.Vec{X: a.X * b.X, Y: a.Y * b.Y}
}

func divElem(a, b r2.Vec) r2.Vec {
	return r2.Vec{X: a.X / b.X, Y: a.Y / b.Y}
}
