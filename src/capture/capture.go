package capture

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log"
)

var (
	// ErrCapture covers a missing display, an empty snapshot or an encode failure.
	ErrCapture = errors.New("capture failed")
	// ErrImageDecode is returned when a snapshot payload cannot be decoded.
	ErrImageDecode = errors.New("image decode failed")
)

var pngMagic = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

// FullFrame is an encoded snapshot of the whole viewport, tagged with the
// device pixel ratio in effect when it was taken.
type FullFrame struct {
	PNG []byte
	DPR float64
}

// Cropped is a standalone encoded sub-image. It shares no memory with the
// frame it was cut from.
type Cropped struct {
	PNG []byte
}

// DataURL returns the crop as a base64 data URL.
func (c Cropped) DataURL() string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(c.PNG)
}

// Result is the outcome of an interactive crop. Cancelled is a normal
// outcome and carries no image.
type Result struct {
	Image     *Cropped
	Cancelled bool
}

// Snapshotter produces a raster of the visible screen.
type Snapshotter interface {
	Snapshot(ctx context.Context) (image.Image, error)
}

// RatioFunc reports the current device pixel ratio.
type RatioFunc func() float64

// Capturer takes full-frame snapshots.
type Capturer struct {
	Source Snapshotter
	Ratio  RatioFunc
}

// CaptureFullFrame snapshots the screen and encodes it as PNG.
func (c *Capturer) CaptureFullFrame(ctx context.Context) (FullFrame, error) {
	if c.Source == nil {
		return FullFrame{}, fmt.Errorf("%w: no snapshot source", ErrCapture)
	}
	img, err := c.Source.Snapshot(ctx)
	if err != nil {
		return FullFrame{}, fmt.Errorf("%w: %v", ErrCapture, err)
	}
	if img == nil || img.Bounds().Empty() {
		return FullFrame{}, fmt.Errorf("%w: empty snapshot", ErrCapture)
	}

	data, err := Encode(img)
	if err != nil {
		return FullFrame{}, fmt.Errorf("%w: %v", ErrCapture, err)
	}

	dpr := 1.0
	if c.Ratio != nil {
		if r := c.Ratio(); r > 0 {
			dpr = r
		}
	}
	log.Printf("Capture: full frame %dx%d, %d bytes, dpr=%.2f", img.Bounds().Dx(), img.Bounds().Dy(), len(data), dpr)
	return FullFrame{PNG: data, DPR: dpr}, nil
}

// Encode writes img as PNG.
func Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image as PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// IsPNG checks the PNG signature.
func IsPNG(data []byte) bool {
	return len(data) >= len(pngMagic) && bytes.Equal(data[:len(pngMagic)], pngMagic)
}

// Decode decodes a frame off the calling goroutine and waits for it or ctx.
func Decode(ctx context.Context, f FullFrame) (image.Image, error) {
	if !IsPNG(f.PNG) {
		return nil, fmt.Errorf("%w: not a PNG payload", ErrImageDecode)
	}

	type decoded struct {
		img image.Image
		err error
	}
	ch := make(chan decoded, 1)
	go func() {
		img, err := png.Decode(bytes.NewReader(f.PNG))
		ch <- decoded{img: img, err: err}
	}()

	select {
	case d := <-ch:
		if d.err != nil {
			return nil, fmt.Errorf("%w: %v", ErrImageDecode, d.err)
		}
		return d.img, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
