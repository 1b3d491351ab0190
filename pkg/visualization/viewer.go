package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"rtviewer/internal/models"
	"rtviewer/pkg/contour"
	"rtviewer/pkg/gesture"
	"rtviewer/pkg/overlay"
	"rtviewer/pkg/session"
)

// Viewer paints session frames into images: the windowed reference slice,
// then the dose layer, then structure outlines, all through the pane's view
// transform.
type Viewer struct {
	ref        *models.ReferenceVolume
	compositor *overlay.Compositor

	// Label draws the slice number in the top left corner
	Label bool
}

// NewViewer creates a viewer for a reference volume. The compositor is the
// one the session renders dose layers with.
func NewViewer(ref *models.ReferenceVolume, compositor *overlay.Compositor) *Viewer {
	if compositor == nil {
		compositor = overlay.NewCompositor(0, 0, nil)
	}
	return &Viewer{ref: ref, compositor: compositor, Label: true}
}

// ExtractSlice returns a reference slice as 8-bit gray using the given
// window width and center.
func (v *Viewer) ExtractSlice(position int, voi gesture.VOI) (*image.Gray, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}
	values, ok := v.ref.Slice(position)
	if !ok {
		return nil, fmt.Errorf("position %d exceeds slice count %d", position, v.ref.Grid.Slices)
	}

	g := v.ref.Grid
	img := image.NewGray(image.Rect(0, 0, g.Cols, g.Rows))
	width := math.Max(1, voi.Width)
	lower := voi.Center - width/2
	for i, hu := range values {
		f := (float64(hu) - lower) / width
		img.Pix[i] = uint8(math.Round(math.Max(0, math.Min(1, f)) * 255))
	}
	return img, nil
}

// Compose paints a frame onto a width x height black canvas.
func (v *Viewer) Compose(f session.Frame, width, height int) (*image.RGBA, error) {
	gray, err := v.ExtractSlice(f.SliceIndex, f.Transform.VOI)
	if err != nil {
		return nil, err
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	view := f.Transform.View()
	xdraw.NearestNeighbor.Transform(dst, view, gray, gray.Bounds(), xdraw.Src, nil)
	v.compositor.Blend(dst, f.Dose, view)
	contour.Rasterize(dst, f.Contours, view)

	if v.Label {
		d := &font.Drawer{
			Dst:  dst,
			Src:  image.NewUniform(color.White),
			Face: basicfont.Face7x13,
			Dot:  fixed.P(4, 13),
		}
		d.DrawString(fmt.Sprintf("Slice: %d / %d", f.SliceIndex, v.ref.Grid.Slices-1))
	}
	return dst, nil
}

// SaveSlice saves an image as PNG or JPEG, chosen by the file extension.
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
	case ".png":
		return png.Encode(file, img)
	default:
		return fmt.Errorf("unsupported image format: %s", filepath.Ext(filename))
	}
}

// SaveSliceSequence renders every slice of a pane and writes them to
// outputDir as <pane>_slice_NNN.<format>. The session's slice index is
// restored afterwards.
func (v *Viewer) SaveSliceSequence(s *session.Session, pane session.PaneID, outputDir, format string, width, height int) error {
	ext, err := extension(format)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	current := s.Navigation().SliceIndex
	defer s.SetActiveSlice(current)

	for pos := 0; pos < v.ref.Grid.Slices; pos++ {
		s.SetActiveSlice(pos)
		filename := filepath.Join(outputDir, fmt.Sprintf("%s_slice_%03d.%s", pane, pos, ext))
		if err := v.SaveFrame(s, pane, filename, width, height); err != nil {
			return err
		}
	}
	return nil
}

// SaveFrame renders a pane at the session's current slice and saves it.
func (v *Viewer) SaveFrame(s *session.Session, pane session.PaneID, filename string, width, height int) error {
	f, err := s.Render(pane)
	if err != nil {
		return err
	}
	img, err := v.Compose(f, width, height)
	if err != nil {
		return err
	}
	return v.SaveSlice(img, filename)
}

func extension(format string) (string, error) {
	switch strings.ToLower(format) {
	case "", "png":
		return "png", nil
	case "jpg", "jpeg":
		return "jpg", nil
	default:
		return "", fmt.Errorf("invalid format: %s (must be png or jpeg)", format)
	}
}
