package eventloop

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"screen-grader/src/capture"
	"screen-grader/src/credentials"
	"screen-grader/src/messages"
	"screen-grader/src/router"
	"screen-grader/src/worker"
)

const (
	StatusCapturing = "Capturing full view..."
	StatusSelecting = "Drag to select area (Release to confirm, Esc cancel)..."

	// NAPrefix starts every failure shown to the user.
	NAPrefix = "N/A\n"
)

var (
	// ErrMissingCredentials is shown when either service key is absent.
	ErrMissingCredentials = errors.New("请运行 grader-cli keys set 填写 Kimi Key 与 OCR Key（Please set both keys with `grader-cli keys set`）")
	// ErrInvalidCrop is shown when the presentation side sent a payload that is not a PNG.
	ErrInvalidCrop = errors.New("Invalid cropped image")
)

// FrameCapturer takes the full-frame snapshot.
type FrameCapturer interface {
	CaptureFullFrame(ctx context.Context) (capture.FullFrame, error)
}

// Grader turns a cropped image into canonical answer text.
type Grader interface {
	Run(ctx context.Context, png []byte, creds credentials.Credentials, status func(string)) (string, error)
}

// Loop is the single-goroutine coordinator of the control context. All
// final display messages are produced here; stage work runs on the pool.
type Loop struct {
	router   *router.Router
	inbox    <-chan messages.Envelope
	creds    credentials.Source
	capturer FrameCapturer
	grader   Grader
	pool     *worker.Pool
	triggers chan struct{}
	results  chan result
}

type result struct {
	runID string
	frame *capture.FullFrame
	text  string
	err   error
}

// New creates a control loop reading from inbox.
func New(r *router.Router, inbox <-chan messages.Envelope, creds credentials.Source, capturer FrameCapturer, grader Grader) *Loop {
	return &Loop{
		router:   r,
		inbox:    inbox,
		creds:    creds,
		capturer: capturer,
		grader:   grader,
		pool:     worker.New(),
		triggers: make(chan struct{}, 4),
		results:  make(chan result, 4),
	}
}

// Trigger requests a new run. It never blocks; triggers beyond the small
// buffer are dropped while the loop is catching up.
func (l *Loop) Trigger() {
	select {
	case l.triggers <- struct{}{}:
	default:
		log.Printf("Loop: trigger dropped, loop busy")
	}
}

// Run processes triggers, inter-context messages and stage results until
// ctx is cancelled or the inbox closes.
func (l *Loop) Run(ctx context.Context) error {
	defer l.pool.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.triggers:
			l.handleTrigger(ctx)
		case env, ok := <-l.inbox:
			if !ok {
				return nil
			}
			l.handleMessage(ctx, env)
		case res := <-l.results:
			l.handleResult(res)
		}
	}
}

func (l *Loop) post(msg messages.Message) {
	l.router.Post(messages.ContextControl, messages.ContextPresentation, msg)
}

func (l *Loop) showError(err error) {
	l.post(messages.ShowAnswers{Text: NAPrefix + err.Error()})
}

// loadCredentials reads the store fresh and requires both keys.
func (l *Loop) loadCredentials() (credentials.Credentials, error) {
	c, err := l.creds.Load()
	if err != nil {
		return credentials.Credentials{}, err
	}
	if !c.Complete() {
		log.Printf("Loop: missing credentials: %v", c.Missing())
		return credentials.Credentials{}, ErrMissingCredentials
	}
	return c, nil
}

func (l *Loop) handleTrigger(ctx context.Context) {
	runID := uuid.NewString()
	log.Printf("Loop: trigger, run %s", runID)

	if _, err := l.loadCredentials(); err != nil {
		l.showError(err)
		return
	}

	l.post(messages.ShowStatus{Text: StatusCapturing})
	l.submit(ctx, runID, "capture", func(jobCtx context.Context) result {
		frame, err := l.capturer.CaptureFullFrame(jobCtx)
		if err != nil {
			return result{runID: runID, err: err}
		}
		return result{runID: runID, frame: &frame}
	})
}

func (l *Loop) handleMessage(ctx context.Context, env messages.Envelope) {
	switch m := env.Message.(type) {
	case messages.CroppedImageReady:
		l.handleCropped(ctx, m)
	default:
		log.Printf("Loop: ignoring %T from %s", env.Message, env.From)
	}
}

func (l *Loop) handleCropped(ctx context.Context, m messages.CroppedImageReady) {
	log.Printf("Loop: cropped image for run %s, %d bytes", m.RunID, len(m.PNG))
	if !capture.IsPNG(m.PNG) {
		l.showError(ErrInvalidCrop)
		return
	}

	creds, err := l.loadCredentials()
	if err != nil {
		l.showError(err)
		return
	}

	png := m.PNG
	l.submit(ctx, m.RunID, "grade", func(jobCtx context.Context) result {
		text, err := l.grader.Run(jobCtx, png, creds, func(s string) {
			l.post(messages.ShowStatus{Text: s})
		})
		return result{runID: m.RunID, text: text, err: err}
	})
}

func (l *Loop) handleResult(res result) {
	switch {
	case res.err != nil:
		log.Printf("Loop: run %s failed: %v", res.runID, res.err)
		l.showError(res.err)
	case res.frame != nil:
		l.post(messages.StartCropMode{RunID: res.runID, PNG: res.frame.PNG, DPR: res.frame.DPR})
		l.post(messages.ShowStatus{Text: StatusSelecting})
	default:
		log.Printf("Loop: run %s done", res.runID)
		l.post(messages.ShowAnswers{Text: res.text})
	}
}

// submit runs stage on the pool and hands its result back to the loop.
func (l *Loop) submit(ctx context.Context, runID, stage string, fn func(ctx context.Context) result) {
	ok := l.pool.Submit(ctx, fmt.Sprintf("%s/%s", stage, runID), func(jobCtx context.Context) {
		res := fn(jobCtx)
		select {
		case l.results <- res:
		case <-jobCtx.Done():
			log.Printf("Loop: dropping %s result for run %s: %v", stage, runID, jobCtx.Err())
		}
	})
	if !ok {
		l.showError(fmt.Errorf("%s stage could not start", stage))
	}
}
