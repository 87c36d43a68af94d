package singleinstance

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"
)

// usePorts narrows the scan range so parallel packages do not collide.
func usePorts(t *testing.T, start, end int) {
	t.Setenv("SINGLEINSTANCE_PORT_START", strconv.Itoa(start))
	t.Setenv("SINGLEINSTANCE_PORT_END", strconv.Itoa(end))
}

func startServer(t *testing.T, h Handler) *Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	srv, err := Listen(ctx)
	if err != nil {
		cancel()
		t.Skipf("loopback listener unavailable: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, h) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Serve: %v", err)
		}
	})
	return srv
}

func TestPortRange(t *testing.T) {
	tests := []struct {
		start, end string
		wantS      int
		wantE      int
	}{
		{"", "", defaultPortStart, defaultPortEnd},
		{"50000", "50010", 50000, 50010},
		{"80", "2000", 1024, 2000},
		{"60000", "70000", 60000, 65535},
		{"50010", "50000", 50000, 50010},
		{"abc", "", defaultPortStart, defaultPortEnd},
	}
	for _, tt := range tests {
		t.Setenv("SINGLEINSTANCE_PORT_START", tt.start)
		t.Setenv("SINGLEINSTANCE_PORT_END", tt.end)
		s, e := PortRange()
		if s != tt.wantS || e != tt.wantE {
			t.Errorf("PortRange(%q,%q) = %d,%d want %d,%d", tt.start, tt.end, s, e, tt.wantS, tt.wantE)
		}
	}
}

func TestDelegateTrigger(t *testing.T) {
	usePorts(t, 49611, 49615)
	got := make(chan Command, 1)
	srv := startServer(t, func(c Command) error {
		got <- c
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if port, ok := DetectResident(ctx); !ok || port != srv.Port() {
		t.Fatalf("DetectResident = %d,%v want %d", port, ok, srv.Port())
	}
	delegated, err := Delegate(ctx, CommandTrigger)
	if err != nil || !delegated {
		t.Fatalf("Delegate = %v, %v", delegated, err)
	}
	select {
	case c := <-got:
		if c != CommandTrigger {
			t.Fatalf("handler got %q", c)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler not called")
	}
}

func TestDelegateHandlerError(t *testing.T) {
	usePorts(t, 49621, 49625)
	startServer(t, func(Command) error { return errors.New("panel unavailable") })

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	delegated, err := Delegate(ctx, CommandShow)
	if !delegated || err == nil || err.Error() != "panel unavailable" {
		t.Fatalf("Delegate = %v, %v", delegated, err)
	}
}

func TestSecondResidentRefused(t *testing.T) {
	usePorts(t, 49631, 49635)
	startServer(t, func(Command) error { return nil })

	if _, err := Listen(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second Listen err = %v, want ErrAlreadyRunning", err)
	}
}

func TestDelegateWithoutResident(t *testing.T) {
	usePorts(t, 49641, 49642)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	delegated, err := Delegate(ctx, CommandTrigger)
	if delegated || err != nil {
		t.Fatalf("Delegate = %v, %v; want false, nil", delegated, err)
	}
}

func TestParseCommand(t *testing.T) {
	if c, err := parseCommand("TRIGGER\n"); err != nil || c != CommandTrigger {
		t.Fatalf("parseCommand = %q, %v", c, err)
	}
	if _, err := parseCommand("STDOUT\n"); !errors.Is(err, ErrUnknownCommand) {
		t.Fatalf("err = %v", err)
	}
}
