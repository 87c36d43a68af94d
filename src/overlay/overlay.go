package overlay

import (
	"errors"
	"image/color"
	"log"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/driver/desktop"

	"screen-grader/src/cropsession"
	"screen-grader/src/geometry"
)

// outlineColor matches a translucent red marquee.
var outlineColor = color.NRGBA{R: 255, A: 184}

// Overlay mounts full-screen crop surfaces on a fyne app. Pointer positions
// are mapped into the session viewport through the overlay's on-screen size.
type Overlay struct {
	app fyne.App

	mu    sync.Mutex
	scale float64
}

// New returns an overlay backed by a.
func New(a fyne.App) *Overlay {
	return &Overlay{app: a}
}

// Mount shows the frozen frame full screen and routes its input to h.
// It must not be called from the fyne main goroutine.
func (o *Overlay) Mount(spec cropsession.MountSpec, h cropsession.Handler) (cropsession.Surface, error) {
	if spec.Frame == nil {
		return nil, errors.New("overlay needs a frame")
	}
	drv, ok := o.app.Driver().(desktop.Driver)
	if !ok {
		return nil, errors.New("overlay needs a desktop driver")
	}

	s := &surface{}
	fyne.DoAndWait(func() {
		w := drv.CreateSplashWindow()
		w.SetPadded(false)

		bg := canvas.NewImageFromImage(spec.Frame)
		bg.FillMode = canvas.ImageFillStretch
		bg.ScaleMode = canvas.ImageScaleFastest

		outline := canvas.NewRectangle(color.Transparent)
		outline.StrokeColor = outlineColor
		outline.StrokeWidth = 1
		outline.Hide()

		input := newInputLayer(h, spec.Viewport)
		w.SetContent(container.NewStack(bg, container.NewWithoutLayout(outline), input))
		w.Resize(fyne.NewSize(float32(spec.Viewport.W), float32(spec.Viewport.H)))
		w.Canvas().SetOnTypedKey(func(ev *fyne.KeyEvent) {
			if ev.Name == fyne.KeyEscape {
				h.CancelKey()
			}
		})
		w.SetOnClosed(h.CancelKey)
		w.SetFullScreen(true)
		w.Show()
		w.RequestFocus()
		o.observeScale(w.Canvas().Scale())

		s.win = w
		s.outline = outline
		s.view = input.view
	})

	log.Printf("OVERLAY: mounted %.0fx%.0f (backing %dx%d)", spec.Viewport.W, spec.Viewport.H, spec.Backing.W, spec.Backing.H)
	return s, nil
}

// Scale reports the device pixel ratio seen on the last overlay window,
// or 1 before any overlay has been shown. Crops stay exact either way since
// pointer positions are mapped through the overlay's on-screen size.
func (o *Overlay) Scale() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.scale <= 0 {
		return 1
	}
	return o.scale
}

func (o *Overlay) observeScale(scale float32) {
	if scale <= 0 {
		return
	}
	o.mu.Lock()
	o.scale = float64(scale)
	o.mu.Unlock()
}

type surface struct {
	win     fyne.Window
	outline *canvas.Rectangle
	view    viewMap
}

func (s *surface) Redraw(r geometry.Rect, visible bool) {
	fyne.Do(func() {
		if !visible {
			s.outline.Hide()
			return
		}
		pos, size := s.view.toScreen(r)
		s.outline.Move(pos)
		s.outline.Resize(size)
		s.outline.Show()
		s.outline.Refresh()
	})
}

func (s *surface) Remove() {
	fyne.Do(func() {
		s.win.SetOnClosed(nil)
		s.win.Close()
	})
	log.Printf("OVERLAY: removed")
}
