package gesture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	assert.Equal(t, Vertical, Classify(2, 10))
	assert.Equal(t, Horizontal, Classify(10, 2))
	assert.Equal(t, Horizontal, Classify(5, -5), "ties are horizontal")
	assert.Equal(t, Vertical, Classify(-1, -3))
}

func TestVerticalDragEmitsIncrementalSteps(t *testing.T) {
	g := NewInterpreter(DefaultParams())
	require.Equal(t, Vertical, g.DragStart(0, 3, VOI{}))
	assert.Equal(t, DraggingVertical, g.State())

	var total int
	for _, dy := range []float64{3, 7, 8, 20, 22, 46, 44, 31} {
		a := g.DragMove(0, dy)
		if a.Kind == SliceAdvance {
			total += a.SliceDelta
		}
	}
	// round(31/15) == 2
	assert.Equal(t, 2, total)

	a := g.DragMove(0, 46)
	assert.Equal(t, Action{Kind: SliceAdvance, SliceDelta: 1}, a)

	assert.Equal(t, Action{}, g.DragMove(0, 46), "no change, no event")

	a = g.DragMove(0, -15)
	assert.Equal(t, Action{Kind: SliceAdvance, SliceDelta: -4}, a)

	g.DragEnd()
	assert.Equal(t, Idle, g.State())
	assert.Equal(t, Action{}, g.DragMove(0, 100), "idle ignores moves")
}

func TestDragEndResetsAccumulation(t *testing.T) {
	g := NewInterpreter(DefaultParams())
	g.DragStart(0, 1, VOI{})
	g.DragMove(0, 30)
	g.DragEnd()

	g.DragStart(0, 1, VOI{})
	a := g.DragMove(0, 15)
	assert.Equal(t, Action{Kind: SliceAdvance, SliceDelta: 1}, a)
}

func TestHorizontalDragAdjustsWindowLevel(t *testing.T) {
	g := NewInterpreter(DefaultParams())
	require.Equal(t, Horizontal, g.DragStart(10, 2, VOI{Width: 400, Center: 40}))

	a := g.DragMove(50, -20)
	assert.Equal(t, Action{Kind: WindowLevel, VOI: VOI{Width: 450, Center: 20}}, a)

	// continuous: relative to the baseline, not the previous frame
	a = g.DragMove(60, -10)
	assert.Equal(t, VOI{Width: 460, Center: 30}, a.VOI)

	a = g.DragMove(-1000, 0)
	assert.Equal(t, 1.0, a.VOI.Width, "width floor")
}

func TestPinchDirect(t *testing.T) {
	g := NewInterpreter(DefaultParams())
	g.PinchStart()
	assert.Equal(t, Pinching, g.State())

	s := g.PinchMove(1, 1.5)
	assert.InDelta(t, 1.5, s, 1e-12)
	s = g.PinchMove(s, 2)
	assert.InDelta(t, 3, s, 1e-12)

	assert.Equal(t, 10.0, g.PinchMove(s, 100), "ceiling")
	assert.Equal(t, 0.1, g.PinchMove(s, 0.001), "floor")

	g.PinchEnd()
	assert.Equal(t, Idle, g.State())
	assert.Equal(t, 2.0, g.PinchMove(2, 5), "outside a pinch nothing changes")
}

func TestPinchDamped(t *testing.T) {
	p := DefaultParams()
	p.PinchMode = PinchDamped
	p.Damping = 0.5
	p.MaxScale = 0
	g := NewInterpreter(p)
	g.PinchStart()

	s := g.PinchMove(1, 1.2)
	assert.InDelta(t, 1.1, s, 1e-12)
	s = g.PinchMove(s, 0.8)
	assert.InDelta(t, 1.0, s, 1e-12)

	assert.InDelta(t, 51, g.PinchMove(1, 101), 1e-9, "no ceiling when MaxScale is zero")
	assert.Equal(t, 0.1, g.PinchMove(0.15, 0.5))
}

func TestPinchAbandonsDrag(t *testing.T) {
	g := NewInterpreter(DefaultParams())
	g.DragStart(0, 5, VOI{})
	g.PinchStart()
	assert.Equal(t, Pinching, g.State())
	g.DragEnd()
	assert.Equal(t, Pinching, g.State(), "drag end does not end a pinch")
}

func TestParsePinchMode(t *testing.T) {
	m, err := ParsePinchMode("damped")
	require.NoError(t, err)
	assert.Equal(t, PinchDamped, m)

	m, err = ParsePinchMode("")
	require.NoError(t, err)
	assert.Equal(t, PinchDirect, m)

	_, err = ParsePinchMode("spring")
	assert.Error(t, err)
}
