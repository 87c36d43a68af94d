package overlay

import (
	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
)

// Panel is the status/answer window. It implements the display sink.
type Panel struct {
	win   fyne.Window
	label *widget.Label
}

// NewPanel creates the panel window. Call from the fyne main goroutine
// before the app runs.
func NewPanel(a fyne.App, title string) *Panel {
	w := a.NewWindow(title)
	label := widget.NewLabel("")
	label.Wrapping = fyne.TextWrapWord
	label.TextStyle = fyne.TextStyle{Monospace: true}
	w.SetContent(container.NewVScroll(label))
	w.Resize(fyne.NewSize(360, 280))
	// Closing the panel only hides it; the app keeps running in the tray.
	w.SetCloseIntercept(w.Hide)
	return &Panel{win: w, label: label}
}

// SetText replaces the panel text and shows the panel unless text is empty.
// Safe to call from any goroutine.
func (p *Panel) SetText(text string) {
	fyne.Do(func() {
		p.label.SetText(text)
		if text != "" {
			p.win.Show()
		}
	})
}

// Show brings the panel up.
func (p *Panel) Show() {
	fyne.Do(p.win.Show)
}

// Window exposes the panel window, e.g. as the app's master window.
func (p *Panel) Window() fyne.Window { return p.win }
