package singleinstance

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"time"
)

const pingTimeout = 300 * time.Millisecond

// DetectResident scans PortRange and returns the port of a resident that
// answers PING.
func DetectResident(ctx context.Context) (int, bool) {
	start, end := PortRange()
	for port := start; port <= end; port++ {
		if ctx.Err() != nil {
			return 0, false
		}
		if ping(residentAddr(port), timeoutFor(ctx, pingTimeout)) {
			return port, true
		}
	}
	return 0, false
}

// Delegate sends cmd to the running resident. delegated is false, with a nil
// error, when no resident was found.
func Delegate(ctx context.Context, cmd Command) (delegated bool, err error) {
	port, ok := DetectResident(ctx)
	if !ok {
		return false, nil
	}

	timeout := timeoutFor(ctx, 2*time.Second)
	conn, err := net.DialTimeout("tcp", residentAddr(port), timeout)
	if err != nil {
		return false, err
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(timeout))

	if _, err := conn.Write([]byte(string(cmd) + "\n")); err != nil {
		return true, err
	}
	br := bufio.NewReader(conn)
	status, err := br.ReadString('\n')
	if err != nil {
		return true, err
	}
	switch status {
	case replyOK:
		return true, nil
	case replyError:
		msg, _ := io.ReadAll(br)
		return true, errors.New(string(msg))
	default:
		return true, errors.New("unexpected reply: " + strings.TrimSpace(status))
	}
}

func ping(addr string, timeout time.Duration) bool {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return false
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(timeout))
	if _, err := conn.Write([]byte(pingRequest)); err != nil {
		return false
	}
	resp, err := bufio.NewReader(conn).ReadString('\n')
	return err == nil && resp == pongResponse
}

func residentAddr(port int) string {
	return net.JoinHostPort(residentHost, strconv.Itoa(port))
}

func timeoutFor(ctx context.Context, def time.Duration) time.Duration {
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d > 0 && d < def {
			return d
		}
	}
	return def
}
