package contour

import (
	"image"
	"image/draw"
	"math"

	"golang.org/x/image/math/f64"
	"golang.org/x/image/vector"
	"gonum.org/v1/gonum/spatial/r2"
)

// Rasterize strokes every path onto dst. view maps canvas pixels to dst
// pixels. Each edge is filled as a quad with square caps, which also covers
// the corners between edges.
func Rasterize(dst draw.Image, strokes []Stroke, view f64.Aff3) {
	b := dst.Bounds()
	if b.Empty() {
		return
	}
	zoom := math.Sqrt(math.Abs(view[0]*view[4] - view[1]*view[3]))
	origin := r2.Vec{X: float64(b.Min.X), Y: float64(b.Min.Y)}

	for _, s := range strokes {
		half := s.Width * zoom / 2
		if !(half > 0) {
			continue
		}
		z := vector.NewRasterizer(b.Dx(), b.Dy())
		for _, path := range s.Paths {
			n := len(path)
			for i := 0; i < n; i++ {
				a := r2.Sub(apply(view, path[i]), origin)
				c := r2.Sub(apply(view, path[(i+1)%n]), origin)
				addSegment(z, a, c, half)
			}
		}
		z.Draw(dst, b, image.NewUniform(s.Color), image.Point{})
	}
}

func addSegment(z *vector.Rasterizer, a, b r2.Vec, half float64) {
	d := r2.Sub(b, a)
	l := r2.Norm(d)
	if l == 0 {
		return
	}
	u := r2.Scale(1/l, d)
	n := r2.Vec{X: -u.Y * half, Y: u.X * half}
	a = r2.Sub(a, r2.Scale(half, u))
	b = r2.Add(b, r2.Scale(half, u))

	p0, p1 := r2.Add(a, n), r2.Add(b, n)
	p2, p3 := r2.Sub(b, n), r2.Sub(a, n)
	z.MoveTo(float32(p0.X), float32(p0.Y))
	z.LineTo(float32(p1.X), float32(p1.Y))
	z.LineTo(float32(p2.X), float32(p2.Y))
	z.LineTo(float32(p3.X), float32(p3.Y))
	z.ClosePath()
}

func apply(m f64.Aff3, p r2.Vec) r2.Vec {
	return r2.Vec{
		X: m[0]*p.X + m[1]*p.Y + m[2],
		Y: m[3]*p.X + m[4]*p.Y + m[5],
	}
}
