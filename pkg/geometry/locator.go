// Package geometry aligns independently gridded volumes: it finds the foreign
// slice nearest a reference Z and maps pixel positions between grids through
// their shared world coordinate system.
package geometry

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// DefaultZTolerance is the largest Z distance, exclusive, at which a foreign
// slice still counts as present.
const DefaultZTolerance = 2.0

// Match is the nearest foreign slice to a target Z.
type Match struct {
	Index    int
	Distance float64
}

// NearestSlice returns the index minimizing |zPositions[i] - targetZ| and the
// achieved distance. When two entries are equally close the lower index wins.
// It returns false only when zPositions is empty.
func NearestSlice(zPositions []float64, targetZ float64) (Match, bool) {
	if len(zPositions) == 0 {
		return Match{}, false
	}
	dist := make([]float64, len(zPositions))
	for i, z := range zPositions {
		d := math.Abs(z - targetZ)
		if math.IsNaN(d) {
			d = math.Inf(1)
		}
		dist[i] = d
	}
	// MinIdx returns the first minimum, which gives the tie-break.
	idx := floats.MinIdx(dist)
	return Match{Index: idx, Distance: dist[idx]}, true
}

// Locator applies a Z tolerance to NearestSlice.
type Locator struct {
	// Tolerance is exclusive: a slice exactly Tolerance away is absent.
	Tolerance float64
}

// NewLocator returns a locator; a non-positive tolerance selects
// DefaultZTolerance.
func NewLocator(tolerance float64) Locator {
	if !(tolerance > 0) {
		tolerance = DefaultZTolerance
	}
	return Locator{Tolerance: tolerance}
}

// Locate returns the nearest slice within tolerance.
func (l Locator) Locate(zPositions []float64, targetZ float64) (Match, bool) {
	m, ok := NearestSlice(zPositions, targetZ)
	if !ok || !(m.Distance < l.Tolerance) {
		return Match{}, false
	}
	return m, true
}
