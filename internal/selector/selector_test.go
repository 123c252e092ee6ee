package selector

import (
	"image"
	"testing"

	"github.com/ironsheep/snaptext/internal/errors"
	"github.com/ironsheep/snaptext/internal/record"
)

func TestSelector_Drag(t *testing.T) {
	s := New()
	if s.State() != Idle {
		t.Fatalf("initial state: got %v, want idle", s.State())
	}

	id := s.Start()
	if id == "" || s.State() != Armed {
		t.Fatalf("after Start: id=%q state=%v", id, s.State())
	}

	if err := s.PointerDown(image.Pt(200, 150)); err != nil {
		t.Fatalf("PointerDown failed: %v", err)
	}

	// Dragging up and left normalizes the rectangle.
	b, err := s.PointerMove(image.Pt(100, 90))
	if err != nil {
		t.Fatalf("PointerMove failed: %v", err)
	}
	want := record.Bounds{X: 100, Y: 90, Width: 100, Height: 60}
	if b != want {
		t.Errorf("PointerMove: got %+v, want %+v", b, want)
	}
	if cur, ok := s.Current(); !ok || cur != want {
		t.Errorf("Current: got %+v %v", cur, ok)
	}

	b, err = s.PointerUp(image.Pt(80, 70))
	if err != nil {
		t.Fatalf("PointerUp failed: %v", err)
	}
	want = record.Bounds{X: 80, Y: 70, Width: 120, Height: 80}
	if b != want {
		t.Errorf("PointerUp: got %+v, want %+v", b, want)
	}
	if s.State() != Idle {
		t.Errorf("after PointerUp: state %v, want idle", s.State())
	}
	if _, ok := s.Current(); ok {
		t.Error("Current should be unset after PointerUp")
	}
}

func TestSelector_TooSmall(t *testing.T) {
	tests := []struct {
		name string
		end  image.Point
	}{
		{"narrow", image.Pt(30, 80)},
		{"short", image.Pt(80, 49)},
		{"click", image.Pt(0, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New()
			s.Start()
			if err := s.PointerDown(image.Pt(0, 0)); err != nil {
				t.Fatalf("PointerDown failed: %v", err)
			}
			_, err := s.PointerUp(tt.end)
			if !errors.Is(err, errors.ErrSelectionTooSmall) {
				t.Fatalf("expected SELECTION_TOO_SMALL, got %v", err)
			}
			if s.State() != Idle {
				t.Errorf("state after rejection: %v, want idle", s.State())
			}
		})
	}
}

func TestSelector_MinimumAccepted(t *testing.T) {
	s := New()
	s.Start()
	_ = s.PointerDown(image.Pt(10, 10))
	b, err := s.PointerUp(image.Pt(60, 60))
	if err != nil {
		t.Fatalf("50x50 selection rejected: %v", err)
	}
	if b.Width != record.MinDim || b.Height != record.MinDim {
		t.Errorf("bounds: got %+v", b)
	}
}

func TestSelector_WrongState(t *testing.T) {
	s := New()

	if err := s.PointerDown(image.Pt(1, 1)); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("PointerDown while idle: got %v", err)
	}
	if _, err := s.PointerMove(image.Pt(1, 1)); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("PointerMove while idle: got %v", err)
	}

	s.Start()
	if _, err := s.PointerUp(image.Pt(1, 1)); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("PointerUp while armed: got %v", err)
	}
	if s.State() != Armed {
		t.Errorf("wrong-state event changed state to %v", s.State())
	}

	_ = s.PointerDown(image.Pt(1, 1))
	if err := s.PointerDown(image.Pt(2, 2)); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("PointerDown while dragging: got %v", err)
	}
}

func TestSelector_Cancel(t *testing.T) {
	s := New()
	if s.Cancel() {
		t.Error("Cancel while idle should report false")
	}

	s.Start()
	_ = s.PointerDown(image.Pt(0, 0))
	if !s.Cancel() {
		t.Error("Cancel while dragging should report true")
	}
	if s.State() != Idle {
		t.Errorf("state after Cancel: %v", s.State())
	}
	if _, err := s.PointerUp(image.Pt(100, 100)); err == nil {
		t.Error("PointerUp after Cancel should fail")
	}
}

func TestSelector_RestartCancelsPrevious(t *testing.T) {
	s := New()
	first := s.Start()
	_ = s.PointerDown(image.Pt(0, 0))

	second := s.Start()
	if first == second {
		t.Error("sessions should have distinct ids")
	}
	if s.State() != Armed {
		t.Errorf("state after restart: %v, want armed", s.State())
	}
	if st := s.Status(); st.Session != second || st.Bounds != nil {
		t.Errorf("Status: got %+v", st)
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{Idle, "idle"},
		{Armed, "armed"},
		{Dragging, "dragging"},
		{State(9), "State(9)"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("String(): got %q, want %q", got, tt.want)
		}
	}
}
