// Package selector implements the drag-to-select region state machine.
//
//	Idle --Start--> Armed --PointerDown--> Dragging --PointerUp--> Idle
//	                  ^                       |
//	                  +------ Start ----------+      Cancel: any -> Idle
//
// Only one session exists at a time: Start while a session is active
// cancels it. A finished drag smaller than record.MinDim in either
// dimension is rejected with SELECTION_TOO_SMALL and never reaches capture.
package selector

import (
	"fmt"
	"image"
	"sync"

	"github.com/google/uuid"

	"github.com/ironsheep/snaptext/internal/errors"
	"github.com/ironsheep/snaptext/internal/record"
)

// State is the selector's phase.
type State int

const (
	Idle State = iota
	Armed
	Dragging
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Dragging:
		return "dragging"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// SessionID identifies one selection session.
type SessionID string

// Status is a point-in-time view for rendering.
type Status struct {
	Session SessionID      `json:"session,omitempty"`
	State   State          `json:"state"`
	Bounds  *record.Bounds `json:"bounds,omitempty"`
}

// Selector is safe for concurrent use.
type Selector struct {
	mu      sync.Mutex
	state   State
	session SessionID
	anchor  image.Point
	current record.Bounds
}

// New returns an idle selector.
func New() *Selector {
	return &Selector{}
}

// Start arms a new session, cancelling any active one.
func (s *Selector) Start() SessionID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	s.state = Armed
	s.session = SessionID(uuid.NewString())
	return s.session
}

// PointerDown anchors the drag.
func (s *Selector) PointerDown(p image.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Armed {
		return s.wrongState("pointer down")
	}
	s.state = Dragging
	s.anchor = p
	s.current = record.FromPoints(p, p)
	return nil
}

// PointerMove updates the rectangle between the anchor and p.
func (s *Selector) PointerMove(p image.Point) (record.Bounds, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Dragging {
		return record.Bounds{}, s.wrongState("pointer move")
	}
	s.current = record.FromPoints(s.anchor, p)
	return s.current, nil
}

// PointerUp finishes the drag and returns the validated selection. The
// session ends either way.
func (s *Selector) PointerUp(p image.Point) (record.Bounds, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Dragging {
		return record.Bounds{}, s.wrongState("pointer up")
	}
	b := record.FromPoints(s.anchor, p)
	s.reset()
	if err := b.Validate(); err != nil {
		return record.Bounds{}, err
	}
	return b, nil
}

// Cancel returns to Idle. It reports whether a session was active.
func (s *Selector) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	active := s.state != Idle
	s.reset()
	return active
}

// State returns the current phase.
func (s *Selector) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Current returns the in-progress rectangle while dragging.
func (s *Selector) Current() (record.Bounds, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.state == Dragging
}

// Status returns a snapshot for rendering.
func (s *Selector) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{Session: s.session, State: s.state}
	if s.state == Dragging {
		b := s.current
		st.Bounds = &b
	}
	return st
}

func (s *Selector) reset() {
	s.state = Idle
	s.session = ""
	s.anchor = image.Point{}
	s.current = record.Bounds{}
}

func (s *Selector) wrongState(event string) error {
	return errors.NewInvalidRequest(fmt.Sprintf("%s while %s", event, s.state))
}
