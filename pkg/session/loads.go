package session

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"rtviewer/internal/models"
)

// ErrStaleLoad is returned when a load completes after a newer load for the
// same pane and layer was started, or after the case changed.
var ErrStaleLoad = errors.New("stale load")

// LoadKind is the layer a load replaces.
type LoadKind int

const (
	LoadDose LoadKind = iota
	LoadStructures
)

func (k LoadKind) String() string {
	if k == LoadStructures {
		return "structures"
	}
	return "dose"
}

// Ticket tags an asynchronous load. Only the newest ticket per pane and
// kind may complete.
type Ticket struct {
	Pane PaneID
	Kind LoadKind

	// ID is the dose or structure set identifier being loaded
	ID string

	seq     uint64
	session uuid.UUID
}

type loadKey struct {
	pane PaneID
	kind LoadKind
}

type loadTracker struct {
	next   uint64
	latest map[loadKey]uint64
}

func newLoadTracker() *loadTracker {
	return &loadTracker{latest: make(map[loadKey]uint64)}
}

func (l *loadTracker) begin(pane PaneID, kind LoadKind) uint64 {
	l.next++
	l.latest[loadKey{pane, kind}] = l.next
	return l.next
}

func (l *loadTracker) current(t Ticket) bool {
	return l.latest[loadKey{t.Pane, t.Kind}] == t.seq
}

// BeginLoad starts a load of layer kind for a pane. Any earlier ticket for
// the same pane and kind becomes stale.
func (s *Session) BeginLoad(id PaneID, kind LoadKind, layerID string) (Ticket, error) {
	if _, err := s.pane(id); err != nil {
		return Ticket{}, err
	}
	return Ticket{
		Pane:    id,
		Kind:    kind,
		ID:      layerID,
		seq:     s.loads.begin(id, kind),
		session: s.id,
	}, nil
}

func (s *Session) checkTicket(t Ticket, kind LoadKind) error {
	if t.Kind != kind {
		return fmt.Errorf("ticket for %s used to complete a %s load", t.Kind, kind)
	}
	if t.session != s.id || !s.loads.current(t) {
		s.logger.Debug("discarding stale load", "session", s.id, "pane", t.Pane, "kind", t.Kind, "id", t.ID)
		return fmt.Errorf("%w: %s %q for pane %s", ErrStaleLoad, t.Kind, t.ID, t.Pane)
	}
	return nil
}

// CompleteDose installs a loaded dose if its ticket is still current.
func (s *Session) CompleteDose(t Ticket, dose *models.DoseVolume) error {
	if err := s.checkTicket(t, LoadDose); err != nil {
		return err
	}
	p, err := s.pane(t.Pane)
	if err != nil {
		return err
	}
	return s.setDose(p, t.ID, dose)
}

// CompleteStructures installs a loaded structure set if its ticket is still
// current.
func (s *Session) CompleteStructures(t Ticket, set *models.StructureSet) error {
	if err := s.checkTicket(t, LoadStructures); err != nil {
		return err
	}
	p, err := s.pane(t.Pane)
	if err != nil {
		return err
	}
	s.setStructureSet(p, t.ID, set)
	return nil
}
