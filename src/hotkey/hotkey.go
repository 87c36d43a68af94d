package hotkey

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime"
	"strings"
	"sync"

	gohook "github.com/robotn/gohook"
)

// ErrNoKeys is returned for a hotkey string without any usable key.
var ErrNoKeys = errors.New("hotkey has no keys")

type comboKey struct {
	name     string
	rawcodes []uint16
	pressed  bool
}

// Combo tracks the pressed state of one key combination.
type Combo struct {
	spec  string
	mu    sync.Mutex
	keys  []comboKey
	fired bool
}

// Parse builds a Combo from a string like "Ctrl+Shift+G".
func Parse(spec string) (*Combo, error) {
	c := &Combo{spec: spec}
	for _, name := range parseHotkey(spec) {
		if name == "" {
			continue
		}
		codes := keyNameToRawcodes(name)
		if len(codes) == 0 {
			return nil, fmt.Errorf("unknown key %q in hotkey %q", name, spec)
		}
		c.keys = append(c.keys, comboKey{name: name, rawcodes: codes})
	}
	if len(c.keys) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoKeys, spec)
	}
	return c, nil
}

// String returns the hotkey as configured.
func (c *Combo) String() string { return c.spec }

// Handle feeds one key event. It reports true when the event completes the
// combination. Auto-repeat does not fire again; releasing any key of the
// combination re-arms it, so tapping the last key with the others held
// fires once per tap.
func (c *Combo) Handle(down bool, rawcode uint16) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	matched := false
	for i := range c.keys {
		if c.keys[i].matches(rawcode) {
			c.keys[i].pressed = down
			matched = true
		}
	}
	if !down {
		if matched {
			c.fired = false
		}
		return false
	}
	if c.fired {
		return false
	}
	for i := range c.keys {
		if !c.keys[i].pressed {
			return false
		}
	}
	c.fired = true
	return true
}

func (k comboKey) matches(rawcode uint16) bool {
	for _, rc := range k.rawcodes {
		if rc == rawcode {
			return true
		}
	}
	return false
}

// Listen registers the global hotkey and calls fn each time it fires. It
// blocks until ctx is cancelled.
func Listen(ctx context.Context, spec string, fn func()) error {
	combo, err := Parse(spec)
	if err != nil {
		return err
	}
	log.Printf("Hotkey: listening for %s", spec)
	if note := rawcodeNote(runtime.GOOS); note != "" {
		log.Printf("Hotkey: WARNING: %s", note)
	}

	evChan := gohook.Start()
	if evChan == nil {
		return errors.New("hotkey: keyboard hook unavailable")
	}
	defer gohook.End()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-evChan:
			if !ok {
				log.Printf("Hotkey: event channel closed")
				return nil
			}
			if ev.Kind != gohook.KeyDown && ev.Kind != gohook.KeyUp {
				continue
			}
			if combo.Handle(ev.Kind == gohook.KeyDown, ev.Rawcode) {
				log.Printf("Hotkey: %s pressed", spec)
				if fn != nil {
					fn()
				}
			}
		}
	}
}

// rawcodeNote explains why a hotkey may never fire on goos. Key names map to
// Windows virtual key codes, which the hook reports only on Windows.
func rawcodeNote(goos string) string {
	if goos == "windows" {
		return ""
	}
	return fmt.Sprintf("hotkey rawcodes are Windows virtual key codes; on %s the hotkey may not fire, use the trigger command instead", goos)
}

// parseHotkey lowercases and splits "Ctrl+Alt+q"; win/super map to cmd.
func parseHotkey(spec string) []string {
	var keys []string
	for _, part := range strings.Split(strings.ToLower(spec), "+") {
		part = strings.TrimSpace(part)
		switch part {
		case "control":
			part = "ctrl"
		case "win", "super":
			part = "cmd"
		}
		keys = append(keys, part)
	}
	return keys
}

var namedKeys = map[string][]uint16{
	"ctrl":  {162, 163}, // VK_LCONTROL, VK_RCONTROL
	"alt":   {164, 165}, // VK_LMENU, VK_RMENU
	"shift": {160, 161}, // VK_LSHIFT, VK_RSHIFT
	"cmd":   {91, 92},   // VK_LWIN, VK_RWIN

	"space":     {32},
	"enter":     {13},
	"return":    {13},
	"esc":       {27},
	"escape":    {27},
	"tab":       {9},
	"backspace": {8},
	"delete":    {46},
	"del":       {46},
	"insert":    {45},
	"ins":       {45},
	"home":      {36},
	"end":       {35},
	"pageup":    {33},
	"pgup":      {33},
	"pagedown":  {34},
	"pgdn":      {34},
	"left":      {37},
	"up":        {38},
	"right":     {39},
	"down":      {40},
}

// keyNameToRawcodes maps a key name to Windows virtual key codes.
func keyNameToRawcodes(name string) []uint16 {
	name = strings.ToLower(strings.TrimSpace(name))
	if codes, ok := namedKeys[name]; ok {
		return codes
	}
	if len(name) == 1 {
		switch c := name[0]; {
		case c >= 'a' && c <= 'z':
			return []uint16{uint16(c-'a') + 65}
		case c >= '0' && c <= '9':
			return []uint16{uint16(c-'0') + 48}
		}
	}
	var n int
	if _, err := fmt.Sscanf(name, "f%d", &n); err == nil && n >= 1 && n <= 24 && name == fmt.Sprintf("f%d", n) {
		return []uint16{uint16(111 + n)}
	}
	return nil
}
