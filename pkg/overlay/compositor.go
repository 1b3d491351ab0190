// Package overlay renders a dose slice into a colormapped bitmap at dose-grid
// resolution and blends it onto a canvas in reference-grid pixel space.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"rtviewer/internal/models"
	"rtviewer/pkg/colormap"
	"rtviewer/pkg/geometry"
)

// DefaultVoxelAlpha is the per-pixel alpha of painted dose voxels.
const DefaultVoxelAlpha = 200

// Params controls how a dose slice is displayed.
type Params struct {
	Window colormap.Window

	// Opacity in [0, 1] is applied to the whole layer at blend time
	Opacity float64
}

// Layer is one composited dose slice, ready to be blended.
type Layer struct {
	// Image holds colormapped voxels at dose-grid resolution. Voxels below
	// the window minimum are fully transparent.
	Image *image.NRGBA

	// Placement is where Image lands on the reference canvas
	Placement geometry.Placement

	// Match identifies the dose slice that was used
	Match geometry.Match

	Opacity float64
}

// Compositor turns dose slices into layers.
type Compositor struct {
	locator    geometry.Locator
	voxelAlpha uint8
	resampler  xdraw.Transformer
}

// NewCompositor returns a compositor matching dose slices within tolerance.
// A nil resampler selects nearest-neighbour.
func NewCompositor(tolerance float64, voxelAlpha uint8, resampler xdraw.Transformer) *Compositor {
	if voxelAlpha == 0 {
		voxelAlpha = DefaultVoxelAlpha
	}
	if resampler == nil {
		resampler = xdraw.NearestNeighbor
	}
	return &Compositor{
		locator:    geometry.NewLocator(tolerance),
		voxelAlpha: voxelAlpha,
		resampler:  resampler,
	}
}

// Render builds the layer for the dose slice nearest z. It returns false when
// no dose slice lies within tolerance; that is not an error.
func (c *Compositor) Render(dose *models.DoseVolume, ref models.Grid, z float64, p Params) (*Layer, bool) {
	if dose == nil {
		return nil, false
	}
	m, ok := c.locator.Locate(dose.Grid.ZPositions, z)
	if !ok {
		return nil, false
	}
	values, ok := dose.Slice(m.Index)
	if !ok {
		return nil, false
	}

	g := dose.Grid
	img := image.NewNRGBA(image.Rect(0, 0, g.Cols, g.Rows))
	for i, v := range values {
		if !p.Window.Visible(v) {
			continue
		}
		col := p.Window.Color(v)
		o := i * 4
		img.Pix[o+0] = col.R
		img.Pix[o+1] = col.G
		img.Pix[o+2] = col.B
		img.Pix[o+3] = c.voxelAlpha
	}

	return &Layer{
		Image:     img,
		Placement: geometry.NewMapper(g, ref).Placement(),
		Match:     m,
		Opacity:   clampOpacity(p.Opacity),
	}, true
}

// Blend draws the layer onto dst. view maps reference canvas pixels to dst
// pixels (the external display engine's pan/zoom), so the layer follows the
// reference image without being rebuilt.
func (c *Compositor) Blend(dst draw.Image, l *Layer, view f64.Aff3) {
	if l == nil || l.Image == nil || l.Opacity <= 0 {
		return
	}
	b := l.Image.Bounds()
	sx := l.Placement.Size.X / float64(b.Dx())
	sy := l.Placement.Size.Y / float64(b.Dy())
	place := f64.Aff3{
		sx, 0, l.Placement.Offset.X,
		0, sy, l.Placement.Offset.Y,
	}
	opts := &xdraw.Options{
		SrcMask: image.NewUniform(color.Alpha16{A: uint16(math.Round(l.Opacity * 0xffff))}),
	}
	c.resampler.Transform(dst, Compose(view, place), l.Image, b, xdraw.Over, opts)
}

// Compose returns the affine transform applying inner first, then outer.
func Compose(outer, inner f64.Aff3) f64.Aff3 {
	return f64.Aff3{
		outer[0]*inner[0] + outer[1]*inner[3],
		outer[0]*inner[1] + outer[1]*inner[4],
		outer[0]*inner[2] + outer[1]*inner[5] + outer[2],
		outer[3]*inner[0] + outer[4]*inner[3],
		outer[3]*inner[1] + outer[4]*inner[4],
		outer[3]*inner[2] + outer[4]*inner[5] + outer[5],
	}
}

// Identity is the identity view transform.
var Identity = f64.Aff3{1, 0, 0, 0, 1, 0}

func clampOpacity(o float64) float64 {
	if math.IsNaN(o) || o < 0 {
		return 0
	}
	if o > 1 {
		return 1
	}
	return o
}

// ParseResampler maps "nearest" or "bilinear" to a transformer.
func ParseResampler(name string) (xdraw.Transformer, error) {
	switch name {
	case "", "nearest":
		return xdraw.NearestNeighbor, nil
	case "bilinear":
		return xdraw.BiLinear, nil
	default:
		return nil, fmt.Errorf("unknown resampler %q", name)
	}
}
