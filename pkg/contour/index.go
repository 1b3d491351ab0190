// Package contour finds the ROI outlines on a reference slice and turns them
// into stroke commands in reference-canvas pixels.
package contour

import (
	"math"
	"sort"
	"strconv"

	"rtviewer/internal/models"
)

const (
	// DefaultPrecision is the number of decimals in a contour Z key.
	DefaultPrecision = 2

	// DefaultEpsilon is the largest Z distance, inclusive, accepted when no
	// key matches exactly.
	DefaultEpsilon = 0.1
)

// Key formats z as a contour key with the given number of decimals. Halves
// round away from zero, so 0.125 is "0.13" as exporters write it;
// strconv alone would round it to even.
func Key(z float64, precision int) string {
	scale := math.Pow(10, float64(precision))
	if r := math.Round(z*scale) / scale; !math.IsInf(r, 0) && !math.IsNaN(r) {
		z = r
	}
	return strconv.FormatFloat(z, 'f', precision, 64)
}

type roiIndex struct {
	roi    *models.ROI
	byKey  map[string][]models.Polygon
	zs     []float64
	sorted [][]models.Polygon
}

// Index prepares a structure set for repeated per-slice lookups.
type Index struct {
	set       *models.StructureSet
	precision int
	epsilon   float64
	rois      map[string]*roiIndex
}

// NewIndex indexes every ROI of set. Non-positive epsilon and negative
// precision select the defaults.
func NewIndex(set *models.StructureSet, precision int, epsilon float64) *Index {
	if precision < 0 {
		precision = DefaultPrecision
	}
	if !(epsilon > 0) {
		epsilon = DefaultEpsilon
	}
	idx := &Index{
		set:       set,
		precision: precision,
		epsilon:   epsilon,
		rois:      make(map[string]*roiIndex),
	}
	if set == nil {
		return idx
	}
	for _, name := range set.Names() {
		roi, _ := set.ROI(name)
		ri := &roiIndex{roi: roi, byKey: make(map[string][]models.Polygon, len(roi.Contours))}
		for z := range roi.Contours {
			ri.zs = append(ri.zs, z)
		}
		sort.Float64s(ri.zs)
		for _, z := range ri.zs {
			polys := roi.Contours[z]
			ri.sorted = append(ri.sorted, polys)
			k := Key(z, precision)
			ri.byKey[k] = append(ri.byKey[k], polys...)
		}
		idx.rois[name] = ri
	}
	return idx
}

// Set returns the indexed structure set.
func (idx *Index) Set() *models.StructureSet {
	return idx.set
}

// Names returns the indexed ROI names in draw order.
func (idx *Index) Names() []string {
	if idx.set == nil {
		return nil
	}
	return idx.set.Names()
}

// Find returns the polygons of roi at z. An exact key match is tried first,
// then the nearest contour Z within epsilon.
func (idx *Index) Find(roi string, z float64) ([]models.Polygon, bool) {
	ri, ok := idx.rois[roi]
	if !ok || len(ri.zs) == 0 {
		return nil, false
	}
	if polys, ok := ri.byKey[Key(z, idx.precision)]; ok {
		return polys, true
	}

	i := sort.SearchFloat64s(ri.zs, z)
	best, bestDist := -1, math.Inf(1)
	for _, j := range []int{i - 1, i} {
		if j < 0 || j >= len(ri.zs) {
			continue
		}
		if d := math.Abs(ri.zs[j] - z); d < bestDist {
			best, bestDist = j, d
		}
	}
	if best < 0 || bestDist > idx.epsilon {
		return nil, false
	}
	return ri.sorted[best], true
}
