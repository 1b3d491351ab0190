package session

// Sharing selects which parts of a pane transform are kept in lockstep.
type Sharing uint8

const (
	SharePan Sharing = 1 << iota
	ShareZoom
	ShareWindowLevel

	ShareNone Sharing = 0
	ShareAll          = SharePan | ShareZoom | ShareWindowLevel
)

// TransformSink pushes a transform into the external display engine for a
// pane. The engine typically answers with its own change notification, which
// arrives back through UpdateTransform and is recognised as an echo.
type TransformSink func(pane PaneID, t Transform)

// synchronizer propagates transform changes from one pane to the others.
type synchronizer struct {
	sharing Sharing
	sink    TransformSink

	// propagating is set while a change is being applied to other panes;
	// notifications arriving meanwhile are echoes and are not re-propagated.
	propagating bool
}

// merge copies the shared components of src into dst.
func (s *synchronizer) merge(dst, src Transform) Transform {
	if s.sharing&SharePan != 0 {
		dst.Translation = src.Translation
	}
	if s.sharing&ShareZoom != 0 {
		dst.Scale = src.Scale
	}
	if s.sharing&ShareWindowLevel != 0 {
		dst.VOI = src.VOI
	}
	return dst
}

func (s *synchronizer) push(pane PaneID, t Transform) {
	if s.sink != nil {
		s.sink(pane, t)
	}
}

// setTransform records t for p, pushes it to the engine when it did not come
// from there, and fans it out to the other panes.
func (s *Session) setTransform(p *pane, t Transform, fromEngine bool) {
	if p.state.Transform == t {
		return
	}
	p.state.Transform = t
	if !fromEngine {
		s.sync.push(p.id, t)
	}
	s.redraw(p.id)

	if s.sync.propagating {
		s.logger.Debug("suppressed transform echo", "session", s.id, "pane", p.id)
		return
	}
	if s.sync.sharing == ShareNone {
		return
	}

	s.sync.propagating = true
	defer func() { s.sync.propagating = false }()
	for _, q := range s.panes {
		if q == p {
			continue
		}
		merged := s.sync.merge(q.state.Transform, t)
		if merged == q.state.Transform {
			continue
		}
		q.state.Transform = merged
		s.sync.push(q.id, merged)
		s.redraw(q.id)
	}
}

// UpdateTransform is called by the display-engine adapter when a pane's
// zoom, pan or window/level changed. Shared components are applied to the
// other panes; echoes of changes this session made itself are ignored.
func (s *Session) UpdateTransform(id PaneID, t Transform) error {
	p, err := s.pane(id)
	if err != nil {
		return err
	}
	s.setTransform(p, t, true)
	return nil
}

// SetSharing changes which transform components are synchronized.
func (s *Session) SetSharing(sh Sharing) {
	s.sync.sharing = sh
}
