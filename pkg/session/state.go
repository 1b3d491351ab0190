package session

import (
	"golang.org/x/image/math/f64"
	"gonum.org/v1/gonum/spatial/r2"

	"rtviewer/pkg/colormap"
	"rtviewer/pkg/contour"
	"rtviewer/pkg/gesture"
	"rtviewer/pkg/overlay"
	"rtviewer/pkg/units"
)

// PaneID identifies a display pane.
type PaneID string

// DefaultVOI is the window/level a pane starts with.
var DefaultVOI = gesture.VOI{Width: 400, Center: 40}

// Transform is the pane state owned by the external display engine: zoom,
// pan and grayscale window/level.
type Transform struct {
	Scale float64

	// Translation is the screen position of reference canvas pixel (0, 0)
	Translation r2.Vec

	VOI gesture.VOI
}

// DefaultTransform is an unzoomed, unpanned view.
func DefaultTransform() Transform {
	return Transform{Scale: 1, VOI: DefaultVOI}
}

// View returns the canvas-to-screen affine transform.
func (t Transform) View() f64.Aff3 {
	s := t.Scale
	if !(s > 0) {
		s = 1
	}
	return f64.Aff3{s, 0, t.Translation.X, 0, s, t.Translation.Y}
}

// NavigationState is shared by all panes.
type NavigationState struct {
	// SliceIndex is the reference slice shown in every pane
	SliceIndex int

	// Window is the dose display range in Unit
	Window colormap.Window

	// WindowLimit is the upper bound of the window slider in Unit
	WindowLimit float64

	Opacity float64

	Unit units.Unit

	// Prescription is the last valid prescription dose in Gy
	Prescription float64
}

// ViewportState is the per-pane selection.
type ViewportState struct {
	DoseID         string
	StructureSetID string

	// Visibility holds per-ROI toggles; names default to visible the first
	// time they are seen
	Visibility map[string]bool

	// RoiLayerVisible hides every contour when false
	RoiLayerVisible bool

	Transform Transform
}

func (v ViewportState) clone() ViewportState {
	out := v
	out.Visibility = make(map[string]bool, len(v.Visibility))
	for k, b := range v.Visibility {
		out.Visibility[k] = b
	}
	return out
}

// Frame is everything a drawing adapter needs to paint one pane, in draw
// order: reference slice, dose layer, contours.
type Frame struct {
	Pane       PaneID
	SliceIndex int
	Z          float64

	// Dose is nil when no dose is selected or no dose slice is near Z
	Dose *overlay.Layer

	Contours []contour.Stroke

	Transform Transform
}
