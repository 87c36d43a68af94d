// Package singleinstance keeps one resident per user session and lets later
// invocations hand their command to it over loopback TCP.
package singleinstance

import (
	"errors"
	"fmt"
	"strings"
)

const (
	residentHost = "127.0.0.1"
	pingRequest  = "PING\n"
	pongResponse = "PONG screen-grader\n"

	replyOK    = "OK\n"
	replyError = "ERROR\n"
)

// Command is a request delegated to the resident.
type Command string

const (
	// CommandTrigger starts a grading run.
	CommandTrigger Command = "TRIGGER"
	// CommandShow brings up the status panel.
	CommandShow Command = "SHOW"
)

// ErrUnknownCommand is returned by the server for a line it does not understand.
var ErrUnknownCommand = errors.New("unknown command")

// Handler executes one delegated command inside the resident.
type Handler func(Command) error

func parseCommand(line string) (Command, error) {
	switch c := Command(strings.TrimSpace(line)); c {
	case CommandTrigger, CommandShow:
		return c, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCommand, strings.TrimSpace(line))
	}
}
