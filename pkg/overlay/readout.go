package overlay

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/stat"

	"rtviewer/internal/models"
	"rtviewer/pkg/geometry"
)

// Probe returns the dose under reference pixel p on the slice nearest z. The
// voxel chosen is the one whose displayed footprint covers p, so the readout
// agrees with what Blend paints.
func (c *Compositor) Probe(dose *models.DoseVolume, ref models.Grid, z float64, p r2.Vec) (float64, bool) {
	if dose == nil {
		return 0, false
	}
	m, ok := c.locator.Locate(dose.Grid.ZPositions, z)
	if !ok {
		return 0, false
	}
	values, ok := dose.Slice(m.Index)
	if !ok {
		return 0, false
	}
	mapper := geometry.NewMapper(dose.Grid, ref)
	pl := mapper.Placement()
	if !pl.Contains(p) {
		return 0, false
	}
	scale := mapper.Scale()
	col := int(math.Floor((p.X - pl.Offset.X) / scale.X))
	row := int(math.Floor((p.Y - pl.Offset.Y) / scale.Y))
	if col < 0 || col >= dose.Grid.Cols || row < 0 || row >= dose.Grid.Rows {
		return 0, false
	}
	return values[row*dose.Grid.Cols+col], true
}

// SliceStats summarises the dose on one slice.
type SliceStats struct {
	Index int
	Min   float64
	Max   float64
	Mean  float64

	// P95 is the 95th percentile of voxel dose
	P95 float64
}

// Stats computes statistics of the dose slice nearest z.
func (c *Compositor) Stats(dose *models.DoseVolume, z float64) (SliceStats, bool) {
	if dose == nil {
		return SliceStats{}, false
	}
	m, ok := c.locator.Locate(dose.Grid.ZPositions, z)
	if !ok {
		return SliceStats{}, false
	}
	values, ok := dose.Slice(m.Index)
	if !ok || len(values) == 0 {
		return SliceStats{}, false
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return SliceStats{
		Index: m.Index,
		Min:   floats.Min(values),
		Max:   floats.Max(values),
		Mean:  stat.Mean(values, nil),
		P95:   stat.Quantile(0.95, stat.Empirical, sorted, nil),
	}, true
}
