package cropsession

import (
	"errors"
	"sync"
	"testing"

	"screen-grader/src/geometry"
)

type fakeOverlay struct {
	mu       sync.Mutex
	mounted  int
	active   []*fakeSurface
	handlers []Handler
	failWith error
	lastSpec MountSpec
	all      []*fakeSurface
	// duringMount runs before Mount returns, like a window that is
	// already receiving input while it is being shown.
	duringMount func(h Handler)
}

type fakeSurface struct {
	ov      *fakeOverlay
	h       Handler
	redraws []redraw
	removed int
}

type redraw struct {
	r       geometry.Rect
	visible bool
}

func (o *fakeOverlay) Mount(spec MountSpec, h Handler) (Surface, error) {
	if o.duringMount != nil {
		o.duringMount(h)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.failWith != nil {
		return nil, o.failWith
	}
	o.mounted++
	o.lastSpec = spec
	s := &fakeSurface{ov: o, h: h}
	o.active = append(o.active, s)
	o.all = append(o.all, s)
	o.handlers = append(o.handlers, h)
	return s, nil
}

func (o *fakeOverlay) activeCount() (surfaces, listeners int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.active), len(o.handlers)
}

func (s *fakeSurface) Redraw(r geometry.Rect, visible bool) {
	s.redraws = append(s.redraws, redraw{r: r, visible: visible})
}

func (s *fakeSurface) Remove() {
	s.removed++
	s.ov.mu.Lock()
	defer s.ov.mu.Unlock()
	for i, a := range s.ov.active {
		if a == s {
			s.ov.active = append(s.ov.active[:i], s.ov.active[i+1:]...)
			break
		}
	}
	for i, h := range s.ov.handlers {
		if h == s.h {
			s.ov.handlers = append(s.ov.handlers[:i], s.ov.handlers[i+1:]...)
			break
		}
	}
}

type outcome struct {
	finalized []geometry.Rect
	cancelled int
}

func (o *outcome) options() Options {
	return Options{
		OnFinalize: func(r geometry.Rect) { o.finalized = append(o.finalized, r) },
		OnCancel:   func() { o.cancelled++ },
	}
}

func startSession(t *testing.T, ov *fakeOverlay, out *outcome) *Session {
	t.Helper()
	s := New(out.options())
	if err := s.Start(ov, MountSpec{DPR: 1}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return s
}

func TestSessionDragFinalizes(t *testing.T) {
	ov := &fakeOverlay{}
	out := &outcome{}
	s := startSession(t, ov, out)

	if s.State() != StateNoSelection {
		t.Fatalf("expected %s, got %s", StateNoSelection, s.State())
	}

	s.PointerDown(geometry.Point{X: 50, Y: 50})
	if s.State() != StateDragging {
		t.Fatalf("expected %s, got %s", StateDragging, s.State())
	}
	s.PointerMove(geometry.Point{X: 120, Y: 90})
	s.PointerMove(geometry.Point{X: 200, Y: 140})
	s.PointerUp(geometry.Point{X: 250, Y: 150})

	if s.State() != StateFinalized {
		t.Fatalf("expected %s, got %s", StateFinalized, s.State())
	}
	if len(out.finalized) != 1 || out.cancelled != 0 {
		t.Fatalf("expected one finalize and no cancel, got %+v", out)
	}
	want := geometry.Rect{X: 50, Y: 50, W: 200, H: 100}
	if out.finalized[0] != want {
		t.Fatalf("expected %+v, got %+v", want, out.finalized[0])
	}

	surf := ov.lastSurface(t)
	// initial clear + down + 2 moves + final up redraw
	if len(surf.redraws) != 5 {
		t.Fatalf("expected 5 redraws, got %d", len(surf.redraws))
	}
	if surf.redraws[0].visible {
		t.Fatal("initial redraw should not show a rectangle")
	}
	if last := surf.redraws[len(surf.redraws)-1]; last.r != want || !last.visible {
		t.Fatalf("final redraw mismatch: %+v", last)
	}
	if surf.removed != 1 {
		t.Fatalf("expected surface removed once, got %d", surf.removed)
	}
	if n, l := ov.activeCount(); n != 0 || l != 0 {
		t.Fatalf("expected no active overlay after finalize, got %d surfaces %d listeners", n, l)
	}
}

func (o *fakeOverlay) lastSurface(t *testing.T) *fakeSurface {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.all) == 0 {
		t.Fatal("nothing mounted")
	}
	return o.all[len(o.all)-1]
}

func TestSessionMinimumSizeCancels(t *testing.T) {
	drags := []struct {
		name     string
		from, to geometry.Point
	}{
		{"narrow", geometry.Point{X: 10, Y: 10}, geometry.Point{X: 19.9, Y: 200}},
		{"short", geometry.Point{X: 10, Y: 10}, geometry.Point{X: 300, Y: 19}},
		{"click", geometry.Point{X: 10, Y: 10}, geometry.Point{X: 10, Y: 10}},
		{"reverse narrow", geometry.Point{X: 300, Y: 300}, geometry.Point{X: 295, Y: 100}},
	}

	for _, dpr := range []float64{1, 1.25, 1.5, 2, 3} {
		for _, d := range drags {
			ov := &fakeOverlay{}
			out := &outcome{}
			s := New(out.options())
			if err := s.Start(ov, MountSpec{DPR: dpr}); err != nil {
				t.Fatalf("Start failed: %v", err)
			}
			s.PointerDown(d.from)
			s.PointerUp(d.to)

			if s.State() != StateCancelled {
				t.Errorf("dpr=%v %s: expected cancelled, got %s", dpr, d.name, s.State())
			}
			if len(out.finalized) != 0 || out.cancelled != 1 {
				t.Errorf("dpr=%v %s: expected a single cancel, got %+v", dpr, d.name, out)
			}
		}
	}
}

func TestSessionCancelKey(t *testing.T) {
	for _, tc := range []struct {
		name  string
		setup func(s *Session)
	}{
		{"before drag", func(s *Session) {}},
		{"while dragging", func(s *Session) {
			s.PointerDown(geometry.Point{X: 1, Y: 1})
			s.PointerMove(geometry.Point{X: 100, Y: 100})
		}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ov := &fakeOverlay{}
			out := &outcome{}
			s := startSession(t, ov, out)
			tc.setup(s)

			s.CancelKey()
			if s.State() != StateCancelled {
				t.Fatalf("expected cancelled, got %s", s.State())
			}
			if out.cancelled != 1 || len(out.finalized) != 0 {
				t.Fatalf("unexpected outcome %+v", out)
			}

			// Further input is ignored once the session has ended.
			s.PointerDown(geometry.Point{X: 5, Y: 5})
			s.PointerUp(geometry.Point{X: 500, Y: 500})
			s.CancelKey()
			if out.cancelled != 1 || len(out.finalized) != 0 {
				t.Fatalf("events after cancel changed outcome: %+v", out)
			}
		})
	}
}

func TestSessionIgnoresOutOfOrderEvents(t *testing.T) {
	ov := &fakeOverlay{}
	out := &outcome{}
	s := startSession(t, ov, out)

	s.PointerMove(geometry.Point{X: 10, Y: 10})
	s.PointerUp(geometry.Point{X: 100, Y: 100})
	if s.State() != StateNoSelection {
		t.Fatalf("move/up without down should be ignored, state=%s", s.State())
	}

	s.PointerDown(geometry.Point{X: 10, Y: 10})
	s.PointerDown(geometry.Point{X: 90, Y: 90})
	s.PointerUp(geometry.Point{X: 60, Y: 60})
	if len(out.finalized) != 1 {
		t.Fatalf("expected finalize, got %+v", out)
	}
	if got := out.finalized[0]; got != (geometry.Rect{X: 10, Y: 10, W: 50, H: 50}) {
		t.Fatalf("second pointer-down must not move the start point, got %+v", got)
	}
}

func TestSessionTeardownIdempotent(t *testing.T) {
	ov := &fakeOverlay{}
	out := &outcome{}
	s := startSession(t, ov, out)

	s.Teardown()
	s.Teardown()

	if out.cancelled != 1 {
		t.Fatalf("expected exactly one cancel, got %d", out.cancelled)
	}
	if n, l := ov.activeCount(); n != 0 || l != 0 {
		t.Fatalf("expected nothing active, got %d surfaces %d listeners", n, l)
	}

	idle := New(Options{})
	idle.Teardown()
	if idle.State() != StateIdle {
		t.Fatalf("teardown of an idle session changed state to %s", idle.State())
	}
}

func TestSessionStartTwiceFails(t *testing.T) {
	ov := &fakeOverlay{}
	s := startSession(t, ov, &outcome{})
	if err := s.Start(ov, MountSpec{}); err == nil {
		t.Fatal("expected error restarting an active session")
	}
}

func TestSessionMountError(t *testing.T) {
	boom := errors.New("no display")
	s := New(Options{})
	err := s.Start(&fakeOverlay{failWith: boom}, MountSpec{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped mount error, got %v", err)
	}
	if s.State() != StateIdle {
		t.Fatalf("failed start must leave session idle, got %s", s.State())
	}
}

func TestSessionInputDuringMount(t *testing.T) {
	t.Run("full drag finalizes", func(t *testing.T) {
		ov := &fakeOverlay{duringMount: func(h Handler) {
			h.PointerDown(geometry.Point{X: 50, Y: 50})
			h.PointerMove(geometry.Point{X: 120, Y: 90})
			h.PointerUp(geometry.Point{X: 250, Y: 150})
		}}
		out := &outcome{}
		s := New(out.options())
		if err := s.Start(ov, MountSpec{DPR: 2}); err != nil {
			t.Fatal(err)
		}
		if s.State() != StateFinalized {
			t.Fatalf("state = %s, want finalized", s.State())
		}
		want := geometry.Rect{X: 50, Y: 50, W: 200, H: 100}
		if len(out.finalized) != 1 || out.finalized[0] != want || out.cancelled != 0 {
			t.Fatalf("outcome = %+v", out)
		}
		if surfaces, listeners := ov.activeCount(); surfaces != 0 || listeners != 0 {
			t.Fatalf("overlay left mounted: %d surfaces, %d listeners", surfaces, listeners)
		}
	})

	t.Run("drag in progress is kept", func(t *testing.T) {
		ov := &fakeOverlay{duringMount: func(h Handler) {
			h.PointerDown(geometry.Point{X: 10, Y: 10})
			h.PointerMove(geometry.Point{X: 60, Y: 40})
		}}
		out := &outcome{}
		s := New(out.options())
		if err := s.Start(ov, MountSpec{DPR: 1}); err != nil {
			t.Fatal(err)
		}
		if s.State() != StateDragging {
			t.Fatalf("state = %s, want dragging", s.State())
		}
		surf := ov.all[0]
		if len(surf.redraws) != 1 || !surf.redraws[0].visible || surf.redraws[0].r != (geometry.Rect{X: 10, Y: 10, W: 50, H: 30}) {
			t.Fatalf("first redraw must show the pending drag, got %+v", surf.redraws)
		}
		s.PointerUp(geometry.Point{X: 80, Y: 70})
		if len(out.finalized) != 1 || out.finalized[0] != (geometry.Rect{X: 10, Y: 10, W: 70, H: 60}) {
			t.Fatalf("outcome = %+v", out)
		}
	})

	t.Run("mount failure rolls back", func(t *testing.T) {
		boom := errors.New("no display")
		ov := &fakeOverlay{failWith: boom, duringMount: func(h Handler) {
			h.PointerDown(geometry.Point{X: 1, Y: 1})
		}}
		out := &outcome{}
		s := New(out.options())
		if err := s.Start(ov, MountSpec{}); !errors.Is(err, boom) {
			t.Fatalf("err = %v", err)
		}
		if s.State() != StateIdle || len(out.finalized) != 0 || out.cancelled != 0 {
			t.Fatalf("state=%s outcome=%+v", s.State(), out)
		}
	})
}
