// Package session holds the display state of one loaded case: the shared
// navigation state and one viewport per pane. Every mutation happens on the
// caller's goroutine in response to a discrete event; after a change the
// session notifies the redraw callback for each affected pane, and the
// drawing adapter calls Render to get that pane's frame.
//
// A Session is not safe for concurrent use.
package session

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r2"

	"rtviewer/internal/models"
	"rtviewer/pkg/colormap"
	"rtviewer/pkg/config"
	"rtviewer/pkg/contour"
	"rtviewer/pkg/gesture"
	"rtviewer/pkg/overlay"
	"rtviewer/pkg/units"
)

// ErrUnknownPane is returned for a pane ID the session was not created with.
var ErrUnknownPane = errors.New("unknown pane")

type layerKey struct {
	dose   *models.DoseVolume
	slice  int
	params overlay.Params
}

type pane struct {
	id    PaneID
	state ViewportState

	dose       *models.DoseVolume
	structures *models.StructureSet
	index      *contour.Index

	gesture *gesture.Interpreter

	// the dose layer is rebuilt only when its key changes; pan and zoom
	// are applied at blend time
	cacheKey   layerKey
	cacheLayer *overlay.Layer
	cached     bool
}

func (p *pane) visible(roi string) bool {
	v, ok := p.state.Visibility[roi]
	return !ok || v
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRedraw registers the callback told which pane needs repainting.
func WithRedraw(fn func(PaneID)) Option {
	return func(s *Session) { s.onRedraw = fn }
}

// WithTransformSink registers the callback that applies synchronized
// transforms to the display engine.
func WithTransformSink(fn TransformSink) Option {
	return func(s *Session) { s.sync.sink = fn }
}

// WithSharing overrides the configured transform sharing.
func WithSharing(sh Sharing) Option {
	return func(s *Session) { s.sync.sharing = sh }
}

// Session is the display state of one case.
type Session struct {
	id     uuid.UUID
	cfg    *config.Config
	logger *slog.Logger

	ref   *models.ReferenceVolume
	nav   NavigationState
	panes []*pane
	byID  map[PaneID]*pane

	compositor *overlay.Compositor
	contours   *contour.Renderer
	converter  *units.Converter
	gesture    gesture.Params

	sync     synchronizer
	loads    *loadTracker
	onRedraw func(PaneID)
}

// New creates the session for a freshly loaded case with the given panes.
func New(cfg *config.Config, ref *models.ReferenceVolume, paneIDs []PaneID, opts ...Option) (*Session, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if len(paneIDs) == 0 {
		return nil, errors.New("session needs at least one pane")
	}
	resampler, err := overlay.ParseResampler(cfg.Overlay.Resampler)
	if err != nil {
		return nil, err
	}
	mode, err := gesture.ParsePinchMode(cfg.Gesture.PinchMode)
	if err != nil {
		return nil, err
	}

	s := &Session{
		cfg:        cfg,
		logger:     slog.Default(),
		byID:       make(map[PaneID]*pane, len(paneIDs)),
		compositor: overlay.NewCompositor(cfg.Navigation.ZTolerance, cfg.Overlay.VoxelAlpha, resampler),
		contours:   contour.NewRenderer(cfg.Contour.LineWidth),
		gesture: gesture.Params{
			SensitivityPixels: cfg.Gesture.SensitivityPixels,
			PinchMode:         mode,
			Damping:           cfg.Gesture.PinchDamping,
			MinScale:          cfg.Gesture.MinScale,
			MaxScale:          cfg.Gesture.MaxScale,
		},
	}
	if cfg.Sync.LockTransform {
		s.sync.sharing = ShareAll
	}
	for _, id := range paneIDs {
		if _, dup := s.byID[id]; dup {
			return nil, fmt.Errorf("duplicate pane %q", id)
		}
		p := &pane{id: id}
		s.panes = append(s.panes, p)
		s.byID[id] = p
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.ResetCase(ref); err != nil {
		return nil, err
	}
	return s, nil
}

// ResetCase replaces the reference volume and resets navigation and every
// viewport. Loads started for the previous case become stale.
func (s *Session) ResetCase(ref *models.ReferenceVolume) error {
	if ref == nil {
		return errors.New("no reference volume")
	}
	if err := ref.Validate(); err != nil {
		return fmt.Errorf("reference volume: %w", err)
	}
	conv, err := units.NewConverter(s.cfg.Units.Prescription, s.cfg.Units.MaxPercent)
	if err != nil {
		return err
	}

	s.id = uuid.New()
	s.ref = ref
	s.converter = conv
	s.loads = newLoadTracker()
	s.nav = NavigationState{
		SliceIndex:   ref.Grid.Slices / 2,
		Window:       colormap.Window{Min: s.cfg.Overlay.WindowMin, Max: s.cfg.Overlay.WindowMax},
		WindowLimit:  conv.Limit(),
		Opacity:      clamp(s.cfg.Overlay.Opacity, 0, 1),
		Unit:         units.Absolute,
		Prescription: conv.Prescription(),
	}
	if unit, err := units.ParseUnit(s.cfg.Units.Unit); err == nil && unit != units.Absolute {
		s.switchUnit(unit, conv.Prescription())
	}
	for _, p := range s.panes {
		*p = pane{
			id: p.id,
			state: ViewportState{
				Visibility:      make(map[string]bool),
				RoiLayerVisible: true,
				Transform:       DefaultTransform(),
			},
			gesture: gesture.NewInterpreter(s.gesture),
		}
	}
	s.logger.Debug("case loaded", "session", s.id,
		"rows", ref.Grid.Rows, "cols", ref.Grid.Cols, "slices", ref.Grid.Slices)
	s.redrawAll()
	return nil
}

// ID identifies the current case session.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Reference returns the reference volume.
func (s *Session) Reference() *models.ReferenceVolume {
	return s.ref
}

// Compositor returns the compositor used for dose layers, so drawing
// adapters blend with the configured resampler.
func (s *Session) Compositor() *overlay.Compositor {
	return s.compositor
}

// Panes returns the pane IDs in creation order.
func (s *Session) Panes() []PaneID {
	out := make([]PaneID, len(s.panes))
	for i, p := range s.panes {
		out[i] = p.id
	}
	return out
}

// Navigation returns a copy of the shared navigation state.
func (s *Session) Navigation() NavigationState {
	return s.nav
}

// Viewport returns a copy of a pane's state.
func (s *Session) Viewport(id PaneID) (ViewportState, error) {
	p, err := s.pane(id)
	if err != nil {
		return ViewportState{}, err
	}
	return p.state.clone(), nil
}

// SetActiveSlice moves every pane to slice index, clamped to the volume.
func (s *Session) SetActiveSlice(index int) {
	s.nav.SliceIndex = clampInt(index, 0, s.ref.Grid.Slices-1)
	s.redrawAll()
}

// AdvanceSlice moves delta slices, clamped to the volume.
func (s *Session) AdvanceSlice(delta int) {
	s.SetActiveSlice(s.nav.SliceIndex + delta)
}

// SetDose selects the dose shown in a pane; nil clears it. A dose whose data
// does not match its grid is rejected and the pane keeps its current dose.
func (s *Session) SetDose(id PaneID, doseID string, dose *models.DoseVolume) error {
	p, err := s.pane(id)
	if err != nil {
		return err
	}
	s.loads.begin(id, LoadDose)
	return s.setDose(p, doseID, dose)
}

func (s *Session) setDose(p *pane, doseID string, dose *models.DoseVolume) error {
	if dose != nil {
		if err := dose.Validate(); err != nil {
			s.logger.Warn("rejected dose", "session", s.id, "pane", p.id, "dose", doseID, "error", err)
			return fmt.Errorf("dose %q: %w", doseID, err)
		}
	} else {
		doseID = ""
	}
	p.dose = dose
	p.state.DoseID = doseID
	p.cached = false
	s.redraw(p.id)
	return nil
}

// SetStructureSet selects the structures shown in a pane; nil clears them.
// ROI names not seen before in this pane default to visible; earlier
// toggles are kept.
func (s *Session) SetStructureSet(id PaneID, setID string, set *models.StructureSet) error {
	p, err := s.pane(id)
	if err != nil {
		return err
	}
	s.loads.begin(id, LoadStructures)
	s.setStructureSet(p, setID, set)
	return nil
}

func (s *Session) setStructureSet(p *pane, setID string, set *models.StructureSet) {
	if set == nil {
		p.structures, p.index = nil, nil
		p.state.StructureSetID = ""
		s.redraw(p.id)
		return
	}
	p.structures = set
	p.index = contour.NewIndex(set, s.cfg.Navigation.ContourKeyPrecision, s.cfg.Navigation.ContourEpsilon)
	p.state.StructureSetID = setID
	for _, name := range set.Names() {
		if _, seen := p.state.Visibility[name]; !seen {
			p.state.Visibility[name] = true
		}
	}
	s.redraw(p.id)
}

// SetDisplayWindow sets the dose window, in the current unit, and the
// overlay opacity. A reversed window is swapped; opacity is clamped to [0, 1].
func (s *Session) SetDisplayWindow(lo, hi, opacity float64) {
	if hi < lo {
		lo, hi = hi, lo
	}
	s.nav.Window = colormap.Window{Min: lo, Max: hi}
	s.nav.Opacity = clamp(opacity, 0, 1)
	s.redrawAll()
}

// SetDoseUnit switches the display unit, rescaling the window and slider
// limit so the same dose range stays selected. An invalid prescription falls
// back to the last valid one; the returned error reports that so the UI can
// tell the user, but the switch still happens.
func (s *Session) SetDoseUnit(unit units.Unit, prescription float64) error {
	err := s.switchUnit(unit, prescription)
	if err != nil {
		s.logger.Warn("invalid prescription", "session", s.id, "error", err)
	}
	s.redrawAll()
	return err
}

func (s *Session) switchUnit(unit units.Unit, prescription float64) error {
	r, err := s.converter.Switch(unit, prescription, units.Range{
		Min:   s.nav.Window.Min,
		Max:   s.nav.Window.Max,
		Limit: s.nav.WindowLimit,
	})
	s.nav.Window = colormap.Window{Min: r.Min, Max: r.Max}
	s.nav.WindowLimit = r.Limit
	s.nav.Unit = s.converter.Unit()
	s.nav.Prescription = s.converter.Prescription()
	return err
}

// SetRoiVisibility toggles one ROI in a pane.
func (s *Session) SetRoiVisibility(id PaneID, roi string, visible bool) error {
	p, err := s.pane(id)
	if err != nil {
		return err
	}
	p.state.Visibility[roi] = visible
	s.redraw(id)
	return nil
}

// SetRoiLayerVisible shows or hides all contours of a pane without touching
// the per-ROI toggles.
func (s *Session) SetRoiLayerVisible(id PaneID, visible bool) error {
	p, err := s.pane(id)
	if err != nil {
		return err
	}
	p.state.RoiLayerVisible = visible
	s.redraw(id)
	return nil
}

// Render returns the frame for a pane at the current navigation state.
func (s *Session) Render(id PaneID) (Frame, error) {
	p, err := s.pane(id)
	if err != nil {
		return Frame{}, err
	}
	z := s.ref.Grid.ZPositions[s.nav.SliceIndex]
	f := Frame{
		Pane:       id,
		SliceIndex: s.nav.SliceIndex,
		Z:          z,
		Dose:       s.doseLayer(p, z),
		Transform:  p.state.Transform,
	}
	if p.index != nil && p.state.RoiLayerVisible {
		f.Contours = s.contours.Render(p.index, s.ref.Grid, z, p.visible, p.state.Transform.Scale)
	}
	return f, nil
}

func (s *Session) doseLayer(p *pane, z float64) *overlay.Layer {
	if p.dose == nil {
		return nil
	}
	key := layerKey{dose: p.dose, slice: s.nav.SliceIndex, params: s.overlayParams()}
	if p.cached && p.cacheKey == key {
		return p.cacheLayer
	}
	layer, ok := s.compositor.Render(p.dose, s.ref.Grid, z, key.params)
	if !ok {
		layer = nil
	}
	p.cacheKey, p.cacheLayer, p.cached = key, layer, true
	return layer
}

// overlayParams converts the window to absolute dose, the unit of the data.
func (s *Session) overlayParams() overlay.Params {
	return overlay.Params{
		Window: colormap.Window{
			Min: s.converter.ToAbsolute(s.nav.Window.Min),
			Max: s.converter.ToAbsolute(s.nav.Window.Max),
		},
		Opacity: s.nav.Opacity,
	}
}

// Probe returns the dose under a reference pixel of a pane, in the current
// display unit.
func (s *Session) Probe(id PaneID, px, py float64) (float64, bool) {
	p, err := s.pane(id)
	if err != nil || p.dose == nil {
		return 0, false
	}
	z := s.ref.Grid.ZPositions[s.nav.SliceIndex]
	v, ok := s.compositor.Probe(p.dose, s.ref.Grid, z, r2.Vec{X: px, Y: py})
	if !ok {
		return 0, false
	}
	if s.nav.Unit == units.Percent {
		v = units.ToPercent(v, s.nav.Prescription)
	}
	return v, true
}

// Stats summarises the dose on the current slice of a pane in Gy.
func (s *Session) Stats(id PaneID) (overlay.SliceStats, bool) {
	p, err := s.pane(id)
	if err != nil || p.dose == nil {
		return overlay.SliceStats{}, false
	}
	return s.compositor.Stats(p.dose, s.ref.Grid.ZPositions[s.nav.SliceIndex])
}

func (s *Session) pane(id PaneID) (*pane, error) {
	p, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPane, id)
	}
	return p, nil
}

func (s *Session) redraw(id PaneID) {
	if s.onRedraw != nil {
		s.onRedraw(id)
	}
}

func (s *Session) redrawAll() {
	for _, p := range s.panes {
		s.redraw(p.id)
	}
}

func clamp(v, lo, hi float64) float64 {
	if v != v || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
