package cropsession

import (
	"fmt"
	"image"
	"log"
	"sync"

	"screen-grader/src/geometry"
)

// State is the lifecycle state of one crop session.
type State int

const (
	StateIdle State = iota
	StateNoSelection
	StateDragging
	StateSelected
	StateFinalized
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateNoSelection:
		return "active/no-selection"
	case StateDragging:
		return "active/dragging"
	case StateSelected:
		return "active/selected"
	case StateFinalized:
		return "finalized"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Active reports whether the overlay is up and accepting input.
func (s State) Active() bool {
	return s == StateNoSelection || s == StateDragging || s == StateSelected
}

// Handler receives the input events of one mounted overlay. Mounting an
// overlay registers these listeners; Surface.Remove deregisters them.
type Handler interface {
	PointerDown(pt geometry.Point)
	PointerMove(pt geometry.Point)
	PointerUp(pt geometry.Point)
	CancelKey()
}

// Surface is a transparent overlay covering the viewport.
type Surface interface {
	// Redraw clears the surface and, when visible, strokes the outline of r.
	// Coordinates are CSS pixels; the surface applies the device scale.
	Redraw(r geometry.Rect, visible bool)
	// Remove tears the overlay down and detaches its listeners.
	Remove()
}

// MountSpec describes the overlay a session needs.
type MountSpec struct {
	// Frame is the decoded full-frame snapshot the selection is made over.
	Frame image.Image
	// DPR is the device pixel ratio the frame was captured at.
	DPR float64
	// Viewport is the CSS-pixel size of the overlay.
	Viewport geometry.Size
	// Backing is the overlay size in device pixels.
	Backing geometry.DeviceSize
}

// Overlay creates surfaces. Implementations are owned by the presentation context.
type Overlay interface {
	Mount(spec MountSpec, h Handler) (Surface, error)
}

// Options configures a session.
type Options struct {
	// MinSelection is the minimum width and height in CSS pixels. Defaults to geometry.DefaultMinSelection.
	MinSelection float64
	// OnFinalize is called with the final selection before the overlay is torn down.
	OnFinalize func(r geometry.Rect)
	// OnCancel is called when the session ends without a selection.
	OnCancel func()
}

// Session is one drag-to-select interaction. All methods are safe for
// concurrent use; events arriving outside the matching state are ignored.
type Session struct {
	mu      sync.Mutex
	state   State
	start   geometry.Point
	end     geometry.Point
	surface Surface
	opts    Options
}

// New returns an idle session.
func New(opts Options) *Session {
	if opts.MinSelection <= 0 {
		opts.MinSelection = geometry.DefaultMinSelection
	}
	return &Session{opts: opts}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start mounts the overlay and moves Idle -> Active/no-selection. The
// session accepts input from the moment Mount publishes the handler, so
// events delivered before Mount returns are kept.
func (s *Session) Start(ov Overlay, spec MountSpec) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return fmt.Errorf("crop session already %s", s.state)
	}
	s.state = StateNoSelection
	s.mu.Unlock()

	surface, err := ov.Mount(spec, s)

	s.mu.Lock()
	if err != nil {
		if s.state.Active() {
			s.state = StateIdle
		}
		s.mu.Unlock()
		return fmt.Errorf("failed to mount overlay: %w", err)
	}
	if !s.state.Active() {
		// Finished by input that arrived while mounting.
		state := s.state
		s.mu.Unlock()
		surface.Remove()
		log.Printf("CropSession: %s during mount", state)
		return nil
	}
	s.surface = surface
	sel, visible := s.preview()
	s.mu.Unlock()

	surface.Redraw(sel, visible)
	log.Printf("CropSession: started, viewport=%.0fx%.0f dpr=%.2f", spec.Viewport.W, spec.Viewport.H, spec.DPR)
	return nil
}

// preview is the outline for the current state. Callers hold s.mu.
func (s *Session) preview() (geometry.Rect, bool) {
	if s.state == StateDragging {
		return geometry.Selection(s.start, s.end), true
	}
	return geometry.Rect{}, false
}

// PointerDown records the start point: Active/no-selection -> Active/dragging.
func (s *Session) PointerDown(pt geometry.Point) {
	s.mu.Lock()
	if s.state != StateNoSelection {
		s.mu.Unlock()
		return
	}
	s.state = StateDragging
	s.start = pt
	s.end = pt
	surface := s.surface
	s.mu.Unlock()

	if surface != nil {
		surface.Redraw(geometry.Selection(pt, pt), true)
	}
}

// PointerMove updates the end point and redraws the preview outline.
func (s *Session) PointerMove(pt geometry.Point) {
	s.mu.Lock()
	if s.state != StateDragging {
		s.mu.Unlock()
		return
	}
	s.end = pt
	sel := geometry.Selection(s.start, s.end)
	surface := s.surface
	s.mu.Unlock()

	if surface != nil {
		surface.Redraw(sel, true)
	}
}

// PointerUp fixes the selection and immediately finalizes or cancels it.
func (s *Session) PointerUp(pt geometry.Point) {
	s.mu.Lock()
	if s.state != StateDragging {
		s.mu.Unlock()
		return
	}
	s.end = pt
	s.state = StateSelected
	sel := geometry.Selection(s.start, s.end)
	surface := s.surface
	s.mu.Unlock()

	if surface != nil {
		surface.Redraw(sel, true)
	}

	if sel.Below(s.opts.MinSelection) {
		log.Printf("CropSession: selection %.1fx%.1f below %.0fpx, cancelling", sel.W, sel.H, s.opts.MinSelection)
		s.finish(StateCancelled, sel)
		return
	}
	s.finish(StateFinalized, sel)
}

// CancelKey cancels from any active state.
func (s *Session) CancelKey() {
	log.Printf("CropSession: cancel key")
	s.finish(StateCancelled, geometry.Rect{})
}

// Teardown ends an active session as cancelled and removes its overlay.
// It is a no-op on a session that has already ended or never started.
func (s *Session) Teardown() {
	s.finish(StateCancelled, geometry.Rect{})
}

// finish moves an active session to its terminal state, fires exactly one
// outcome callback and removes the overlay.
func (s *Session) finish(terminal State, sel geometry.Rect) {
	s.mu.Lock()
	if !s.state.Active() {
		s.mu.Unlock()
		return
	}
	s.state = terminal
	surface := s.surface
	s.surface = nil
	s.mu.Unlock()

	if terminal == StateFinalized && s.opts.OnFinalize != nil {
		s.opts.OnFinalize(sel)
	}
	if surface != nil {
		surface.Remove()
	}
	if terminal == StateCancelled && s.opts.OnCancel != nil {
		s.opts.OnCancel()
	}
	log.Printf("CropSession: %s", terminal)
}
