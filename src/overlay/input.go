package overlay

import (
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"

	"screen-grader/src/cropsession"
	"screen-grader/src/geometry"
)

// inputLayer is a transparent widget covering the overlay that turns fyne
// pointer events into crop-session events.
type inputLayer struct {
	widget.BaseWidget
	h    cropsession.Handler
	view viewMap
	last fyne.Position
}

var (
	_ desktop.Mouseable  = (*inputLayer)(nil)
	_ desktop.Hoverable  = (*inputLayer)(nil)
	_ desktop.Cursorable = (*inputLayer)(nil)
	_ fyne.Draggable     = (*inputLayer)(nil)
)

func newInputLayer(h cropsession.Handler, viewport geometry.Size) *inputLayer {
	l := &inputLayer{h: h}
	l.view = viewMap{viewport: viewport, size: l.Size}
	l.ExtendBaseWidget(l)
	return l
}

func (l *inputLayer) CreateRenderer() fyne.WidgetRenderer {
	return widget.NewSimpleRenderer(canvas.NewRectangle(color.Transparent))
}

func (l *inputLayer) Cursor() desktop.Cursor { return desktop.CrosshairCursor }

// viewMap converts between overlay units and the session viewport. The
// frame is stretched over the whole overlay, so the factor is the on-screen
// size over the viewport size, whatever scale the monitor runs at.
type viewMap struct {
	viewport geometry.Size
	size     func() fyne.Size
}

func (m viewMap) factors() (fx, fy float64) {
	if m.size == nil || m.viewport.W <= 0 || m.viewport.H <= 0 {
		return 1, 1
	}
	s := m.size()
	if s.Width <= 0 || s.Height <= 0 {
		return 1, 1
	}
	return float64(s.Width) / m.viewport.W, float64(s.Height) / m.viewport.H
}

func (m viewMap) toViewport(p fyne.Position) geometry.Point {
	fx, fy := m.factors()
	return geometry.Point{X: float64(p.X) / fx, Y: float64(p.Y) / fy}
}

func (m viewMap) toScreen(r geometry.Rect) (fyne.Position, fyne.Size) {
	fx, fy := m.factors()
	return fyne.NewPos(float32(r.X*fx), float32(r.Y*fy)), fyne.NewSize(float32(r.W*fx), float32(r.H*fy))
}

func (l *inputLayer) toPoint(p fyne.Position) geometry.Point { return l.view.toViewport(p) }

func (l *inputLayer) MouseDown(ev *desktop.MouseEvent) {
	if ev.Button != desktop.MouseButtonPrimary {
		return
	}
	l.last = ev.Position
	l.h.PointerDown(l.toPoint(ev.Position))
}

func (l *inputLayer) MouseUp(ev *desktop.MouseEvent) {
	if ev.Button != desktop.MouseButtonPrimary {
		return
	}
	l.last = ev.Position
	l.h.PointerUp(l.toPoint(ev.Position))
}

func (l *inputLayer) MouseIn(ev *desktop.MouseEvent) {}

func (l *inputLayer) MouseMoved(ev *desktop.MouseEvent) {
	l.last = ev.Position
	l.h.PointerMove(l.toPoint(ev.Position))
}

func (l *inputLayer) MouseOut() {}

// Dragged fires instead of MouseMoved while the button is held.
func (l *inputLayer) Dragged(ev *fyne.DragEvent) {
	l.last = ev.Position
	l.h.PointerMove(l.toPoint(ev.Position))
}

// DragEnd carries no position; a MouseUp that follows is ignored by the session.
func (l *inputLayer) DragEnd() {
	l.h.PointerUp(l.toPoint(l.last))
}
