package screenshot

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"

	"github.com/kbinani/screenshot"
)

// ErrNoDisplay is returned when the platform reports no active surface.
var ErrNoDisplay = errors.New("no active displays found")

// Display captures one monitor. The zero value is the primary display.
type Display struct {
	Index int
}

// Primary returns the primary display.
func Primary() Display { return Display{Index: 0} }

// Bounds returns the display bounds in virtual-screen pixels.
func (d Display) Bounds() (image.Rectangle, error) {
	n := screenshot.NumActiveDisplays()
	if n == 0 {
		return image.Rectangle{}, ErrNoDisplay
	}
	if d.Index < 0 || d.Index >= n {
		return image.Rectangle{}, fmt.Errorf("display %d out of range (%d active)", d.Index, n)
	}
	return screenshot.GetDisplayBounds(d.Index), nil
}

// Snapshot captures the full display. The returned image is in device
// pixels with its origin at (0,0).
func (d Display) Snapshot(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bounds, err := d.Bounds()
	if err != nil {
		return nil, err
	}
	if bounds.Empty() {
		return nil, fmt.Errorf("display %d has empty bounds", d.Index)
	}

	img, err := screenshot.CaptureRect(bounds)
	if err != nil {
		return nil, fmt.Errorf("failed to capture display %d: %w", d.Index, err)
	}
	log.Printf("Screenshot: captured display %d at %v (%dx%d)", d.Index, bounds.Min, bounds.Dx(), bounds.Dy())

	// CaptureRect keeps virtual-screen coordinates on some platforms.
	if img.Rect.Min != (image.Point{}) {
		img.Rect = img.Rect.Sub(img.Rect.Min)
	}
	return img, nil
}

// NumDisplays reports how many displays are active.
func NumDisplays() int {
	return screenshot.NumActiveDisplays()
}
