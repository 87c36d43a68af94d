package presentation

import (
	"context"
	"errors"
	"log"
	"sync"

	"screen-grader/src/capture"
	"screen-grader/src/logutil"
	"screen-grader/src/messages"
	"screen-grader/src/router"
)

// Display is the on-screen text sink. An empty string clears it.
type Display interface {
	SetText(text string)
}

// Cropper runs one interactive crop over a full frame. Teardown ends the
// crop in progress as cancelled.
type Cropper interface {
	RunInteractiveCrop(ctx context.Context, f capture.FullFrame) (capture.Result, error)
	Teardown()
}

// Host is the presentation context: it owns the display sink and the crop
// overlay, and talks to the control context only through the router.
type Host struct {
	router  *router.Router
	inbox   <-chan messages.Envelope
	display Display
	cropper Cropper

	// OnAnswers, when set, receives every final answer text after it is displayed.
	OnAnswers func(text string)

	wg sync.WaitGroup
}

// NewHost wires a presentation host to its inbox.
func NewHost(r *router.Router, inbox <-chan messages.Envelope, display Display, cropper Cropper) *Host {
	return &Host{router: r, inbox: inbox, display: display, cropper: cropper}
}

// Run handles messages until ctx is done or the inbox is closed, then tears
// down the active overlay and waits for in-flight crops to return.
func (h *Host) Run(ctx context.Context) error {
	defer h.wg.Wait()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer h.cropper.Teardown()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-h.inbox:
			if !ok {
				return nil
			}
			h.handle(ctx, env)
		}
	}
}

func (h *Host) handle(ctx context.Context, env messages.Envelope) {
	switch m := env.Message.(type) {
	case messages.ShowStatus:
		h.display.SetText(m.Text)
	case messages.ShowAnswers:
		h.display.SetText(m.Text)
		log.Printf("Presentation: answers shown: %s", logutil.Sanitize(m.Text, 0))
		if h.OnAnswers != nil {
			h.OnAnswers(m.Text)
		}
	case messages.StartCropMode:
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			h.crop(ctx, m)
		}()
	default:
		log.Printf("Presentation: ignoring unknown message %T from %s", env.Message, env.From)
	}
}

// crop runs off the message loop so status updates keep flowing while the
// user drags. A newer StartCropMode ends this one as cancelled.
func (h *Host) crop(ctx context.Context, m messages.StartCropMode) {
	res, err := h.cropper.RunInteractiveCrop(ctx, capture.FullFrame{PNG: m.PNG, DPR: m.DPR})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		log.Printf("Presentation: crop %s failed: %v", m.RunID, err)
		h.display.SetText("N/A\n" + err.Error())
		return
	}
	if res.Cancelled || res.Image == nil {
		log.Printf("Presentation: crop %s cancelled", m.RunID)
		return
	}

	h.router.Post(messages.ContextPresentation, messages.ContextControl, messages.CroppedImageReady{
		RunID: m.RunID,
		PNG:   res.Image.PNG,
	})
}
