// Package gesture turns normalized pointer drags and pinches into slice
// scrolling, window/level and zoom changes.
//
// A drag is classified once, at its start, by the dominant axis of its
// velocity. Vertical drags scroll slices; horizontal drags adjust window
// width and center continuously from a baseline captured at drag start.
// Pinches scale the zoom either directly or through a damping coefficient.
package gesture

import (
	"fmt"
	"math"
)

// State is the interpreter's state.
type State int

const (
	Idle State = iota
	DraggingVertical
	DraggingHorizontal
	Pinching
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case DraggingVertical:
		return "dragging-vertical"
	case DraggingHorizontal:
		return "dragging-horizontal"
	case Pinching:
		return "pinching"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Axis is the classified direction of a drag.
type Axis int

const (
	Horizontal Axis = iota
	Vertical
)

// Classify returns Vertical when |vy| > |vx|, otherwise Horizontal.
func Classify(vx, vy float64) Axis {
	if math.Abs(vy) > math.Abs(vx) {
		return Vertical
	}
	return Horizontal
}

// PinchMode selects how pinch factors change the zoom.
type PinchMode int

const (
	// PinchDirect multiplies the zoom by each frame's incremental factor.
	PinchDirect PinchMode = iota

	// PinchDamped adds (factor-1)*Damping to the zoom each frame.
	PinchDamped
)

// ParsePinchMode parses "direct" or "damped".
func ParsePinchMode(s string) (PinchMode, error) {
	switch s {
	case "", "direct":
		return PinchDirect, nil
	case "damped":
		return PinchDamped, nil
	default:
		return PinchDirect, fmt.Errorf("unknown pinch mode %q", s)
	}
}

// Params tunes the interpreter.
type Params struct {
	// SensitivityPixels is the vertical drag distance per slice
	SensitivityPixels float64

	PinchMode PinchMode
	Damping   float64

	// MinScale is a hard floor; MaxScale is a ceiling when positive
	MinScale float64
	MaxScale float64
}

// DefaultParams returns the stock tuning: 15 px per slice, direct pinch,
// 0.1 damping when damped, zoom in [0.1, 10].
func DefaultParams() Params {
	return Params{
		SensitivityPixels: 15,
		PinchMode:         PinchDirect,
		Damping:           0.1,
		MinScale:          0.1,
		MaxScale:          10,
	}
}

// VOI is a window width and center.
type VOI struct {
	Width  float64
	Center float64
}

// ActionKind says what a drag frame produced.
type ActionKind int

const (
	None ActionKind = iota
	SliceAdvance
	WindowLevel
)

// Action is the outcome of one drag frame.
type Action struct {
	Kind ActionKind

	// SliceDelta is set for SliceAdvance
	SliceDelta int

	// VOI is set for WindowLevel
	VOI VOI
}

// Interpreter is the drag/pinch state machine for one pane. It is not safe
// for concurrent use.
type Interpreter struct {
	params Params
	state  State

	lastDelta int
	baseline  VOI
}

// NewInterpreter returns an idle interpreter.
func NewInterpreter(p Params) *Interpreter {
	d := DefaultParams()
	if !(p.SensitivityPixels > 0) {
		p.SensitivityPixels = d.SensitivityPixels
	}
	if !(p.MinScale > 0) {
		p.MinScale = d.MinScale
	}
	if p.MaxScale > 0 && p.MaxScale < p.MinScale {
		p.MaxScale = p.MinScale
	}
	return &Interpreter{params: p}
}

// State returns the current state.
func (g *Interpreter) State() State {
	return g.state
}

// DragStart classifies a drag and snapshots current as the window/level
// baseline.
func (g *Interpreter) DragStart(vx, vy float64, current VOI) Axis {
	axis := Classify(vx, vy)
	if axis == Vertical {
		g.state = DraggingVertical
	} else {
		g.state = DraggingHorizontal
	}
	g.baseline = current
	g.lastDelta = 0
	return axis
}

// DragMove consumes the total drag displacement since DragStart.
//
// Vertical drags emit the change in round(dy/sensitivity) since the last
// emission, so a slow drag never loses or repeats a slice. Horizontal drags
// set width = max(1, baseWidth+dx) and center = baseCenter+dy.
func (g *Interpreter) DragMove(dx, dy float64) Action {
	switch g.state {
	case DraggingVertical:
		delta := int(math.Round(dy / g.params.SensitivityPixels))
		if delta == g.lastDelta {
			return Action{}
		}
		step := delta - g.lastDelta
		g.lastDelta = delta
		return Action{Kind: SliceAdvance, SliceDelta: step}
	case DraggingHorizontal:
		return Action{
			Kind: WindowLevel,
			VOI: VOI{
				Width:  math.Max(1, g.baseline.Width+dx),
				Center: g.baseline.Center + dy,
			},
		}
	default:
		return Action{}
	}
}

// DragEnd returns to Idle and drops accumulated deltas.
func (g *Interpreter) DragEnd() {
	if g.state == DraggingVertical || g.state == DraggingHorizontal {
		g.reset()
	}
}

// PinchStart enters Pinching; a drag in progress is abandoned.
func (g *Interpreter) PinchStart() {
	g.reset()
	g.state = Pinching
}

// PinchMove applies the incremental factor of one pinch frame to scale and
// returns the new, clamped scale. Outside a pinch scale is returned clamped
// but otherwise unchanged.
func (g *Interpreter) PinchMove(scale, factor float64) float64 {
	if g.state != Pinching || !(factor > 0) {
		return g.ClampScale(scale)
	}
	switch g.params.PinchMode {
	case PinchDamped:
		scale += (factor - 1) * g.params.Damping
	default:
		scale *= factor
	}
	return g.ClampScale(scale)
}

// PinchEnd returns to Idle.
func (g *Interpreter) PinchEnd() {
	if g.state == Pinching {
		g.reset()
	}
}

// ClampScale applies the zoom floor and optional ceiling.
func (g *Interpreter) ClampScale(scale float64) float64 {
	if math.IsNaN(scale) || scale < g.params.MinScale {
		return g.params.MinScale
	}
	if g.params.MaxScale > 0 && scale > g.params.MaxScale {
		return g.params.MaxScale
	}
	return scale
}

func (g *Interpreter) reset() {
	g.state = Idle
	g.lastDelta = 0
	g.baseline = VOI{}
}
