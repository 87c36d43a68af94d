// Package clipboard copies final answer text to the system clipboard.
package clipboard

import (
	"log"
	"strings"
	"sync"

	"golang.design/x/clipboard"
)

// Writer is satisfied by the system clipboard and by test fakes.
type Writer interface {
	WriteText(text string)
}

type system struct{}

func (system) WriteText(text string) { clipboard.Write(clipboard.FmtText, []byte(text)) }

// Init prepares the system clipboard. It fails on hosts without one
// (headless Linux without X11, for example).
func Init() (Writer, error) {
	if err := clipboard.Init(); err != nil {
		return nil, err
	}
	return system{}, nil
}

// Copier copies answer text, skipping failure displays.
type Copier struct {
	mu     sync.Mutex
	w      Writer
	failed string
	skip   map[string]bool
}

// NewCopier wraps w. failurePrefix marks texts that must not be copied;
// markers are whole texts that must not be copied either.
func NewCopier(w Writer, failurePrefix string, markers ...string) *Copier {
	c := &Copier{w: w, failed: failurePrefix, skip: make(map[string]bool, len(markers))}
	for _, m := range markers {
		c.skip[m] = true
	}
	return c
}

// Copy writes text unless it is empty, a failure display or a marker.
// Reports whether the clipboard was written.
func (c *Copier) Copy(text string) bool {
	if text == "" || c.skip[text] || (c.failed != "" && strings.HasPrefix(text, c.failed)) {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.w.WriteText(text)
	log.Printf("Clipboard: copied %d bytes", len(text))
	return true
}
