package geometry

import (
	"image"
	"math"
)

// DefaultMinSelection is the smallest width/height, in CSS pixels, that counts as a selection.
const DefaultMinSelection = 10.0

// Point is a pointer position in CSS-pixel space, origin at the top-left of the viewport.
type Point struct {
	X float64
	Y float64
}

// Rect is a selection rectangle in CSS-pixel space.
type Rect struct {
	X float64
	Y float64
	W float64
	H float64
}

// Size is a viewport size in CSS pixels.
type Size struct {
	W float64
	H float64
}

// DeviceRect is a rectangle on the raster's physical pixel grid.
type DeviceRect struct {
	X int
	Y int
	W int
	H int
}

// DeviceSize is a surface size in device pixels.
type DeviceSize struct {
	W int
	H int
}

// Selection derives the rectangle spanned by a drag from start to end.
func Selection(start, end Point) Rect {
	return Rect{
		X: math.Min(start.X, end.X),
		Y: math.Min(start.Y, end.Y),
		W: math.Abs(end.X - start.X),
		H: math.Abs(end.Y - start.Y),
	}
}

// Below reports whether either side is shorter than min.
func (r Rect) Below(min float64) bool {
	return r.W < min || r.H < min
}

// ToDeviceRect scales r by dpr and rounds every field on its own.
// Callers are responsible for discarding selections under the minimum size first.
func ToDeviceRect(r Rect, dpr float64) DeviceRect {
	return DeviceRect{
		X: roundPx(r.X * dpr),
		Y: roundPx(r.Y * dpr),
		W: nonNegative(roundPx(r.W * dpr)),
		H: nonNegative(roundPx(r.H * dpr)),
	}
}

// SurfaceSize is the backing-store size of an overlay covering viewport at dpr.
func SurfaceSize(viewport Size, dpr float64) DeviceSize {
	return DeviceSize{
		W: nonNegative(roundPx(viewport.W * dpr)),
		H: nonNegative(roundPx(viewport.H * dpr)),
	}
}

// Viewport returns the CSS size of a raster of the given pixel bounds at dpr.
func Viewport(bounds image.Rectangle, dpr float64) Size {
	if dpr <= 0 {
		dpr = 1
	}
	return Size{W: float64(bounds.Dx()) / dpr, H: float64(bounds.Dy()) / dpr}
}

// Rectangle converts d to an image.Rectangle anchored at origin.
func (d DeviceRect) Rectangle(origin image.Point) image.Rectangle {
	min := origin.Add(image.Pt(d.X, d.Y))
	return image.Rectangle{Min: min, Max: min.Add(image.Pt(d.W, d.H))}
}

// Clamp intersects d with bounds. The result may be empty.
func Clamp(d DeviceRect, bounds image.Rectangle) image.Rectangle {
	return d.Rectangle(bounds.Min).Intersect(bounds)
}

// roundPx rounds half away from zero, which matches half-up for the
// non-negative coordinates pointer events produce.
func roundPx(v float64) int {
	return int(math.Round(v))
}

func nonNegative(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
