package session

import "rtviewer/pkg/gesture"

// DragStart begins a drag on a pane. vx and vy are the pointer velocity at
// the start; the dominant axis decides between slice scrolling and
// window/level for the whole drag.
func (s *Session) DragStart(id PaneID, vx, vy float64) (gesture.Axis, error) {
	p, err := s.pane(id)
	if err != nil {
		return gesture.Horizontal, err
	}
	axis := p.gesture.DragStart(vx, vy, p.state.Transform.VOI)
	s.logger.Debug("drag started", "session", s.id, "pane", id, "state", p.gesture.State())
	return axis, nil
}

// DragMove feeds the total displacement since DragStart.
func (s *Session) DragMove(id PaneID, dx, dy float64) error {
	p, err := s.pane(id)
	if err != nil {
		return err
	}
	a := p.gesture.DragMove(dx, dy)
	switch a.Kind {
	case gesture.SliceAdvance:
		s.AdvanceSlice(a.SliceDelta)
	case gesture.WindowLevel:
		t := p.state.Transform
		t.VOI = a.VOI
		s.setTransform(p, t, false)
	}
	return nil
}

// DragEnd finishes a drag.
func (s *Session) DragEnd(id PaneID) error {
	p, err := s.pane(id)
	if err != nil {
		return err
	}
	p.gesture.DragEnd()
	return nil
}

// PinchStart begins a pinch on a pane.
func (s *Session) PinchStart(id PaneID) error {
	p, err := s.pane(id)
	if err != nil {
		return err
	}
	p.gesture.PinchStart()
	return nil
}

// PinchMove applies one frame's incremental pinch factor to the pane zoom.
func (s *Session) PinchMove(id PaneID, factor float64) error {
	p, err := s.pane(id)
	if err != nil {
		return err
	}
	t := p.state.Transform
	t.Scale = p.gesture.PinchMove(t.Scale, factor)
	s.setTransform(p, t, false)
	return nil
}

// PinchEnd finishes a pinch.
func (s *Session) PinchEnd(id PaneID) error {
	p, err := s.pane(id)
	if err != nil {
		return err
	}
	p.gesture.PinchEnd()
	return nil
}
