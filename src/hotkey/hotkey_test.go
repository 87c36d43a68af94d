package hotkey

import (
	"errors"
	"strings"
	"testing"
)

func TestKeyNameToRawcodes(t *testing.T) {
	tests := []struct {
		keyName  string
		expected []uint16
	}{
		{"ctrl", []uint16{162, 163}},
		{"alt", []uint16{164, 165}},
		{"shift", []uint16{160, 161}},
		{"cmd", []uint16{91, 92}},
		{"g", []uint16{71}},
		{"q", []uint16{81}},
		{"0", []uint16{48}},
		{"9", []uint16{57}},
		{"f1", []uint16{112}},
		{"f12", []uint16{123}},
		{"f24", []uint16{135}},
		{"space", []uint16{32}},
		{"esc", []uint16{27}},
		{"f25", nil},
		{"f01", nil},
		{"unknown", nil},
	}

	for _, tt := range tests {
		t.Run(tt.keyName, func(t *testing.T) {
			result := keyNameToRawcodes(tt.keyName)
			if len(result) != len(tt.expected) {
				t.Fatalf("keyNameToRawcodes(%q) = %v, want %v", tt.keyName, result, tt.expected)
			}
			for i := range result {
				if result[i] != tt.expected[i] {
					t.Errorf("keyNameToRawcodes(%q)[%d] = %d, want %d", tt.keyName, i, result[i], tt.expected[i])
				}
			}
		})
	}
}

func TestParseHotkey(t *testing.T) {
	tests := []struct {
		input    string
		expected []string
	}{
		{"Ctrl+Shift+G", []string{"ctrl", "shift", "g"}},
		{"Control+Alt+q", []string{"ctrl", "alt", "q"}},
		{"Alt+F4", []string{"alt", "f4"}},
		{"Win+Shift+S", []string{"cmd", "shift", "s"}},
		{"Super + Alt + T", []string{"cmd", "alt", "t"}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := parseHotkey(tt.input)
			if len(result) != len(tt.expected) {
				t.Fatalf("parseHotkey(%q) = %v, want %v", tt.input, result, tt.expected)
			}
			for i := range result {
				if result[i] != tt.expected[i] {
					t.Errorf("parseHotkey(%q)[%d] = %q, want %q", tt.input, i, result[i], tt.expected[i])
				}
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	if _, err := Parse(""); !errors.Is(err, ErrNoKeys) {
		t.Fatalf("empty hotkey: err = %v", err)
	}
	if _, err := Parse("Ctrl+Hyper"); err == nil {
		t.Fatal("unknown key must be rejected")
	}
}

func TestComboFiresOncePerPress(t *testing.T) {
	c, err := Parse("Ctrl+Shift+G")
	if err != nil {
		t.Fatal(err)
	}

	if c.Handle(true, 162) || c.Handle(true, 161) {
		t.Fatal("fired before all keys were down")
	}
	if !c.Handle(true, 71) {
		t.Fatal("did not fire when the combination completed")
	}
	// Auto-repeat of G must not fire again.
	if c.Handle(true, 71) || c.Handle(true, 71) {
		t.Fatal("fired again on auto-repeat")
	}

	c.Handle(false, 71)
	c.Handle(false, 162)
	if c.Handle(true, 71) {
		t.Fatal("fired after ctrl was released")
	}
	c.Handle(false, 71)
	c.Handle(true, 163) // right ctrl
	c.Handle(true, 160) // left shift
	if !c.Handle(true, 71) {
		t.Fatal("right-hand modifiers not accepted")
	}
}

func TestComboRefiresWithModifiersHeld(t *testing.T) {
	c, err := Parse("Ctrl+Shift+G")
	if err != nil {
		t.Fatal(err)
	}

	c.Handle(true, 162)
	c.Handle(true, 160)
	fired := 0
	for i := 0; i < 3; i++ {
		if c.Handle(true, 71) {
			fired++
		}
		c.Handle(false, 71)
	}
	if fired != 3 {
		t.Fatalf("three taps of G with ctrl+shift held fired %d times", fired)
	}

	if c.Handle(false, 65) || c.Handle(true, 65) {
		t.Fatal("unrelated key fired the combination")
	}
}

func TestRawcodeNote(t *testing.T) {
	if note := rawcodeNote("windows"); note != "" {
		t.Fatalf("windows should need no note, got %q", note)
	}
	for _, goos := range []string{"linux", "darwin"} {
		if note := rawcodeNote(goos); !strings.Contains(note, goos) {
			t.Fatalf("rawcodeNote(%q) = %q", goos, note)
		}
	}
}
