package units

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnitRoundTrip(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("toAbsolute(toPercent(d, p), p) == d", prop.ForAll(
		func(d, p float64) bool {
			got := ToAbsolute(ToPercent(d, p), p)
			return math.Abs(got-d) <= 1e-9*math.Max(1, d)
		},
		gen.Float64Range(1e-6, 1e4),
		gen.Float64Range(1e-3, 1e3),
	))

	properties.TestingRun(t)
}

func TestSwitchPreservesSelectedRange(t *testing.T) {
	c, err := NewConverter(60, 130)
	require.NoError(t, err)
	assert.InDelta(t, 78, c.Limit(), 1e-12)

	r, err := c.Switch(Percent, 60, Range{Min: 30, Max: 66, Limit: 78})
	require.NoError(t, err)
	assert.Equal(t, Percent, c.Unit())
	assert.InDelta(t, 50, r.Min, 1e-12)
	assert.InDelta(t, 110, r.Max, 1e-12)
	assert.InDelta(t, 130, r.Limit, 1e-12)

	// new prescription while staying in percent keeps the same dose range
	r, err = c.Switch(Percent, 50, r)
	require.NoError(t, err)
	assert.InDelta(t, 60, r.Min, 1e-12)
	assert.InDelta(t, 132, r.Max, 1e-12)

	r, err = c.Switch(Absolute, 50, r)
	require.NoError(t, err)
	assert.InDelta(t, 30, r.Min, 1e-12)
	assert.InDelta(t, 66, r.Max, 1e-12)
	assert.InDelta(t, 65, r.Limit, 1e-12)
}

func TestSwitchFallsBackOnInvalidPrescription(t *testing.T) {
	c, err := NewConverter(70, 130)
	require.NoError(t, err)

	for _, bad := range []float64{0, -5, math.NaN(), math.Inf(1)} {
		c2 := *c
		r, err := c2.Switch(Percent, bad, Range{Min: 7, Max: 70})
		require.ErrorIs(t, err, ErrInvalidPrescription)
		assert.Equal(t, Percent, c2.Unit())
		assert.Equal(t, 70.0, c2.Prescription())
		assert.InDelta(t, 10, r.Min, 1e-12)
		assert.InDelta(t, 100, r.Max, 1e-12)
	}

	_, err = NewConverter(0, 130)
	assert.ErrorIs(t, err, ErrInvalidPrescription)
}

func TestSwitchToAbsoluteIgnoresMissingPrescription(t *testing.T) {
	c, err := NewConverter(60, 130)
	require.NoError(t, err)
	r, err := c.Switch(Percent, 60, Range{Min: 30, Max: 66})
	require.NoError(t, err)

	for _, missing := range []float64{0, math.NaN()} {
		c2 := *c
		got, err := c2.Switch(Absolute, missing, r)
		require.NoError(t, err)
		assert.Equal(t, Absolute, c2.Unit())
		assert.Equal(t, 60.0, c2.Prescription())
		assert.InDelta(t, 30, got.Min, 1e-12)
		assert.InDelta(t, 66, got.Max, 1e-12)
		assert.InDelta(t, 78, got.Limit, 1e-12)
	}
}

func TestParseUnit(t *testing.T) {
	u, err := ParseUnit("percent")
	require.NoError(t, err)
	assert.Equal(t, Percent, u)
	assert.Equal(t, "%", u.String())

	u, err = ParseUnit("Gy")
	require.NoError(t, err)
	assert.Equal(t, Absolute, u)

	_, err = ParseUnit("rad")
	assert.Error(t, err)
}
