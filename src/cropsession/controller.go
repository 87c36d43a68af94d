package cropsession

import (
	"sync"
)

// Controller owns the single active crop session of a presentation context.
// Starting a session always tears down the previous one first, so the most
// recently started session is the sole owner of the overlay.
type Controller struct {
	mu      sync.Mutex
	overlay Overlay
	current *Session
}

// NewController returns a controller mounting surfaces on ov.
func NewController(ov Overlay) *Controller {
	return &Controller{overlay: ov}
}

// Start tears down any prior session and starts a new one.
func (c *Controller) Start(spec MountSpec, opts Options) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil {
		c.current.Teardown()
		c.current = nil
	}

	s := New(opts)
	if err := s.Start(c.overlay, spec); err != nil {
		return nil, err
	}
	c.current = s
	return s, nil
}

// Teardown cancels the active session, if any. Safe to call repeatedly.
func (c *Controller) Teardown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil {
		c.current.Teardown()
		c.current = nil
	}
}
