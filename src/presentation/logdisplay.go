package presentation

import (
	"log"
	"sync"

	"screen-grader/src/logutil"
)

// LogDisplay writes display text to the log and remembers the last value.
// Used when no GUI is available.
type LogDisplay struct {
	mu   sync.Mutex
	text string
}

func (d *LogDisplay) SetText(text string) {
	d.mu.Lock()
	d.text = text
	d.mu.Unlock()
	log.Printf("Display: %s", logutil.Sanitize(text, 0))
}

// Text returns the last text set.
func (d *LogDisplay) Text() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.text
}

// Multi fans SetText out to several displays.
type Multi []Display

func (m Multi) SetText(text string) {
	for _, d := range m {
		d.SetText(text)
	}
}
