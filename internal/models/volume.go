package models

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r2"
)

// ErrMalformedGeometry is returned when voxel data does not agree with the
// declared grid. A volume failing validation must not replace a loaded one.
var ErrMalformedGeometry = errors.New("malformed geometry")

// Grid describes a stack of axis-aligned 2D slices.
type Grid struct {
	// Rows and Cols are the in-plane dimensions of every slice
	Rows int
	Cols int

	// Slices is the number of slices in the stack
	Slices int

	// Spacing is the in-plane pixel size (sx, sy) in mm
	Spacing r2.Vec

	// Origin is the world position (ox, oy) of pixel (0, 0) in mm
	Origin r2.Vec

	// ZPositions holds the world Z of each slice. They are ordered but not
	// assumed to be uniformly spaced.
	ZPositions []float64
}

// SliceSize returns the number of voxels in one slice.
func (g Grid) SliceSize() int {
	return g.Rows * g.Cols
}

// VoxelCount returns the number of voxels in the whole stack.
func (g Grid) VoxelCount() int {
	return g.Rows * g.Cols * g.Slices
}

// Z returns the world Z of slice i and false when i is out of range.
func (g Grid) Z(i int) (float64, bool) {
	if i < 0 || i >= len(g.ZPositions) {
		return 0, false
	}
	return g.ZPositions[i], true
}

// Validate checks the grid's internal consistency.
func (g Grid) Validate() error {
	if g.Rows <= 0 || g.Cols <= 0 {
		return fmt.Errorf("%w: dimensions %dx%d", ErrMalformedGeometry, g.Cols, g.Rows)
	}
	if g.Slices <= 0 {
		return fmt.Errorf("%w: slice count %d", ErrMalformedGeometry, g.Slices)
	}
	if len(g.ZPositions) != g.Slices {
		return fmt.Errorf("%w: %d z positions for %d slices", ErrMalformedGeometry, len(g.ZPositions), g.Slices)
	}
	if !(g.Spacing.X > 0) || !(g.Spacing.Y > 0) {
		return fmt.Errorf("%w: spacing (%g, %g)", ErrMalformedGeometry, g.Spacing.X, g.Spacing.Y)
	}
	if math.IsNaN(g.Origin.X) || math.IsNaN(g.Origin.Y) {
		return fmt.Errorf("%w: origin is NaN", ErrMalformedGeometry)
	}
	return nil
}

// ReferenceVolume is the anatomical (CT) volume slices are navigated against.
// Data holds calibrated intensities in row-major order:
// index = slice*Rows*Cols + row*Cols + col.
type ReferenceVolume struct {
	Grid Grid
	Data []int16
}

// NewReferenceVolume validates the grid against the data and returns the volume.
func NewReferenceVolume(grid Grid, data []int16) (*ReferenceVolume, error) {
	v := &ReferenceVolume{Grid: grid, Data: data}
	if err := v.Validate(); err != nil {
		return nil, err
	}
	return v, nil
}

// Validate reports whether the data length matches the grid.
func (v *ReferenceVolume) Validate() error {
	if err := v.Grid.Validate(); err != nil {
		return err
	}
	if len(v.Data) != v.Grid.VoxelCount() {
		return fmt.Errorf("%w: %d voxels for a %dx%dx%d grid",
			ErrMalformedGeometry, len(v.Data), v.Grid.Cols, v.Grid.Rows, v.Grid.Slices)
	}
	return nil
}

// Slice returns the intensities of slice i without copying.
func (v *ReferenceVolume) Slice(i int) ([]int16, bool) {
	if i < 0 || i >= v.Grid.Slices {
		return nil, false
	}
	n := v.Grid.SliceSize()
	return v.Data[i*n : (i+1)*n], true
}

// DoseVolume is a scalar dose field on its own grid, same indexing as
// ReferenceVolume.
type DoseVolume struct {
	Grid Grid
	Data []float64
}

// NewDoseVolume validates the grid against the data and returns the volume.
func NewDoseVolume(grid Grid, data []float64) (*DoseVolume, error) {
	v := &DoseVolume{Grid: grid, Data: data}
	if err := v.Validate(); err != nil {
		return nil, err
	}
	return v, nil
}

// Validate reports whether the data length matches the grid.
func (v *DoseVolume) Validate() error {
	if err := v.Grid.Validate(); err != nil {
		return err
	}
	if len(v.Data) != v.Grid.VoxelCount() {
		return fmt.Errorf("%w: %d dose values for a %dx%dx%d grid",
			ErrMalformedGeometry, len(v.Data), v.Grid.Cols, v.Grid.Rows, v.Grid.Slices)
	}
	return nil
}

// Slice returns the dose values of slice i without copying.
func (v *DoseVolume) Slice(i int) ([]float64, bool) {
	if i < 0 || i >= v.Grid.Slices {
		return nil, false
	}
	n := v.Grid.SliceSize()
	return v.Data[i*n : (i+1)*n], true
}

// Polygon is a closed outline in world coordinates. The closing edge from the
// last point back to the first is implicit.
type Polygon []r2.Vec

// ROI is a named structure with per-slice contours.
type ROI struct {
	Name  string
	Color color.RGBA

	// Contours maps a slice Z to the disjoint polygons drawn on that slice
	Contours map[float64][]Polygon
}

// StructureSet is a collection of ROIs keyed by name. It holds its own copy
// of every ROI, so later changes to the ROIs passed to NewStructureSet do not
// reach it. ROIs returned by ROI are shared and must be treated as read-only.
type StructureSet struct {
	rois  map[string]*ROI
	names []string
}

// NewStructureSet builds a structure set. Duplicate names are rejected.
func NewStructureSet(rois ...*ROI) (*StructureSet, error) {
	s := &StructureSet{rois: make(map[string]*ROI, len(rois))}
	for _, roi := range rois {
		if roi == nil {
			continue
		}
		if roi.Name == "" {
			return nil, fmt.Errorf("%w: unnamed ROI", ErrMalformedGeometry)
		}
		if _, dup := s.rois[roi.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate ROI %q", ErrMalformedGeometry, roi.Name)
		}
		s.rois[roi.Name] = roi.clone()
		s.names = append(s.names, roi.Name)
	}
	sort.Strings(s.names)
	return s, nil
}

func (r *ROI) clone() *ROI {
	out := &ROI{Name: r.Name, Color: r.Color, Contours: make(map[float64][]Polygon, len(r.Contours))}
	for z, polys := range r.Contours {
		cp := make([]Polygon, len(polys))
		for i, poly := range polys {
			cp[i] = append(Polygon(nil), poly...)
		}
		out.Contours[z] = cp
	}
	return out
}

// Names returns ROI names in sorted order, which is also the draw order.
func (s *StructureSet) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// ROI returns the named ROI.
func (s *StructureSet) ROI(name string) (*ROI, bool) {
	roi, ok := s.rois[name]
	return roi, ok
}

// Len returns the number of ROIs.
func (s *StructureSet) Len() int {
	return len(s.names)
}
