package caseio

import (
	"encoding/json"
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r2"

	"rtviewer/internal/models"
	"rtviewer/pkg/geometry"
)

// roiJSON is one entry of a structure set file:
//
//	{"PTV": {"color": "#ff0000", "contours": {"12.50": [[[x, y], ...], ...]}}}
type roiJSON struct {
	Color    json.RawMessage          `json:"color"`
	Contours map[string][][][]float64 `json:"contours"`
}

// LoadStructures reads the structure set with the given ID. Its points are
// CT pixel coordinates and are mapped to world mm through the CT grid.
func (c *Case) LoadStructures(id string) (*models.StructureSet, error) {
	name, ok := c.Manifest.Structs[id]
	if !ok {
		return nil, fmt.Errorf("%w: unknown structure set %q", ErrManifest, id)
	}
	ct, err := c.Manifest.CT.Grid(c.Manifest.CT.Count)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(c.Dir, name))
	if err != nil {
		return nil, fmt.Errorf("failed to open structure set: %w", err)
	}
	defer f.Close()
	return ParseStructures(f, ct)
}

// ParseStructures decodes a structure set. Contour keys are slice Z values
// in mm. Points are (column, row) pixel coordinates of ct and are stored as
// world (x, y) in mm; any further coordinates are ignored.
func ParseStructures(r io.Reader, ct models.Grid) (*models.StructureSet, error) {
	var doc map[string]roiJSON
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse structure set: %w", err)
	}

	rois := make([]*models.ROI, 0, len(doc))
	for name, entry := range doc {
		col, err := ParseColor(entry.Color)
		if err != nil {
			return nil, fmt.Errorf("roi %q: %w", name, err)
		}
		roi := &models.ROI{
			Name:     name,
			Color:    col,
			Contours: make(map[float64][]models.Polygon, len(entry.Contours)),
		}
		for key, polys := range entry.Contours {
			z, err := strconv.ParseFloat(strings.TrimSpace(key), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: roi %q has contour key %q", models.ErrMalformedGeometry, name, key)
			}
			for _, pts := range polys {
				poly := make(models.Polygon, 0, len(pts))
				for _, p := range pts {
					if len(p) < 2 {
						return nil, fmt.Errorf("%w: roi %q has a point with %d coordinates",
							models.ErrMalformedGeometry, name, len(p))
					}
					poly = append(poly, geometry.PixelToWorld(ct, r2.Vec{X: p[0], Y: p[1]}))
				}
				roi.Contours[z] = append(roi.Contours[z], poly)
			}
		}
		rois = append(rois, roi)
	}
	return models.NewStructureSet(rois...)
}

// ParseColor accepts "#rgb", "#rrggbb", "rgb(r, g, b)" and [r, g, b]. An
// absent color is opaque white.
func ParseColor(raw json.RawMessage) (color.RGBA, error) {
	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	if len(raw) == 0 || string(raw) == "null" {
		return white, nil
	}

	var arr []float64
	if err := json.Unmarshal(raw, &arr); err == nil {
		if len(arr) < 3 {
			return white, fmt.Errorf("color array needs 3 values, got %d", len(arr))
		}
		return rgb(arr[0], arr[1], arr[2]), nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return white, fmt.Errorf("unsupported color %s", raw)
	}
	return ParseColorString(s)
}

// ParseColorString parses a CSS hex or rgb() color.
func ParseColorString(s string) (color.RGBA, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case strings.HasPrefix(s, "#"):
		hex := s[1:]
		if len(hex) == 3 {
			hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
		}
		if len(hex) != 6 {
			return color.RGBA{}, fmt.Errorf("invalid hex color %q", s)
		}
		v, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return color.RGBA{}, fmt.Errorf("invalid hex color %q", s)
		}
		return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil

	case strings.HasPrefix(s, "rgb(") && strings.HasSuffix(s, ")"):
		parts := strings.Split(s[len("rgb("):len(s)-1], ",")
		if len(parts) != 3 {
			return color.RGBA{}, fmt.Errorf("invalid rgb color %q", s)
		}
		var c [3]float64
		for i, p := range parts {
			v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return color.RGBA{}, fmt.Errorf("invalid rgb color %q", s)
			}
			c[i] = v
		}
		return rgb(c[0], c[1], c[2]), nil

	default:
		return color.RGBA{}, fmt.Errorf("unsupported color %q", s)
	}
}

func rgb(r, g, b float64) color.RGBA {
	ch := func(v float64) uint8 {
		if v != v || v < 0 {
			return 0
		}
		if v > 255 {
			return 255
		}
		return uint8(v + 0.5)
	}
	return color.RGBA{R: ch(r), G: ch(g), B: ch(b), A: 255}
}
