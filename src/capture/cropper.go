package capture

import (
	"context"
	"fmt"
	"log"

	"github.com/disintegration/imaging"

	"screen-grader/src/cropsession"
	"screen-grader/src/geometry"
)

// Cropper runs interactive crops on the presentation side. The controller
// guarantees a single active session, so a newer crop ends an older one
// as cancelled.
type Cropper struct {
	sessions     *cropsession.Controller
	minSelection float64
}

// NewCropper returns a cropper using ctrl; minSelection <= 0 uses the default.
func NewCropper(ctrl *cropsession.Controller, minSelection float64) *Cropper {
	return &Cropper{sessions: ctrl, minSelection: minSelection}
}

// Teardown cancels the crop in progress, if any. Its RunInteractiveCrop
// call returns Result{Cancelled: true}.
func (c *Cropper) Teardown() {
	c.sessions.Teardown()
}

type outcome struct {
	sel       geometry.Rect
	finalized bool
}

// RunInteractiveCrop decodes f, lets the user select a region and returns
// that region as a standalone PNG, or Result{Cancelled: true}.
func (c *Cropper) RunInteractiveCrop(ctx context.Context, f FullFrame) (Result, error) {
	img, err := Decode(ctx, f)
	if err != nil {
		return Result{}, err
	}

	dpr := f.DPR
	if dpr <= 0 {
		dpr = 1
	}
	viewport := geometry.Viewport(img.Bounds(), dpr)

	done := make(chan outcome, 1)
	sess, err := c.sessions.Start(cropsession.MountSpec{
		Frame:    img,
		DPR:      dpr,
		Viewport: viewport,
		Backing:  geometry.SurfaceSize(viewport, dpr),
	}, cropsession.Options{
		MinSelection: c.minSelection,
		OnFinalize:   func(r geometry.Rect) { done <- outcome{sel: r, finalized: true} },
		OnCancel:     func() { done <- outcome{} },
	})
	if err != nil {
		return Result{}, err
	}

	var out outcome
	select {
	case out = <-done:
	case <-ctx.Done():
		sess.Teardown()
		return Result{}, ctx.Err()
	}

	if !out.finalized {
		log.Printf("Cropper: selection cancelled")
		return Result{Cancelled: true}, nil
	}

	rect := geometry.Clamp(geometry.ToDeviceRect(out.sel, dpr), img.Bounds())
	if rect.Empty() {
		return Result{}, fmt.Errorf("%w: selection outside the captured frame", ErrCapture)
	}

	sub := imaging.Crop(img, rect)
	data, err := Encode(sub)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrCapture, err)
	}
	log.Printf("Cropper: cropped %v from %v, %d bytes", rect, img.Bounds(), len(data))
	return Result{Image: &Cropped{PNG: data}}, nil
}
