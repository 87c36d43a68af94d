package router

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"screen-grader/src/messages"
)

// DefaultSendTimeout bounds how long Send waits on a full channel.
const DefaultSendTimeout = 5 * time.Second

// ChannelInfo holds information about a context channel
type ChannelInfo struct {
	Channel   chan messages.Envelope
	ContextID string
	Active    bool
}

// Router delivers envelopes between execution contexts. Delivery is
// at-most-once and unacknowledged: a sender never learns whether the
// receiver handled the message.
type Router struct {
	channels    map[string]*ChannelInfo
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
	sendTimeout time.Duration
	logMessages bool
}

// NewRouter creates a new message router
func NewRouter() *Router {
	ctx, cancel := context.WithCancel(context.Background())
	return &Router{
		channels:    make(map[string]*ChannelInfo),
		ctx:         ctx,
		cancel:      cancel,
		sendTimeout: DefaultSendTimeout,
		logMessages: true,
	}
}

// Register registers a context with the router and returns its inbox.
func (r *Router) Register(contextID string, bufferSize int) (<-chan messages.Envelope, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.channels[contextID]; exists {
		return nil, fmt.Errorf("context %s already registered", contextID)
	}

	ch := make(chan messages.Envelope, bufferSize)
	r.channels[contextID] = &ChannelInfo{
		Channel:   ch,
		ContextID: contextID,
		Active:    true,
	}

	log.Printf("Router: Registered context %s with buffer size %d", contextID, bufferSize)
	return ch, nil
}

// Send delivers an envelope to the context named by To.
func (r *Router) Send(envelope messages.Envelope) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if envelope.Message == nil {
		return fmt.Errorf("nil message from %s", envelope.From)
	}
	if r.logMessages {
		log.Printf("Router: %s -> %s: %s", envelope.From, envelope.To, envelope.Message.Type())
	}

	info, exists := r.channels[envelope.To]
	if !exists {
		return fmt.Errorf("context %s not found", envelope.To)
	}
	if !info.Active {
		return fmt.Errorf("context %s is not active", envelope.To)
	}

	timer := time.NewTimer(r.sendTimeout)
	defer timer.Stop()

	select {
	case info.Channel <- envelope:
		return nil
	case <-timer.C:
		return fmt.Errorf("timeout sending message to context %s", envelope.To)
	case <-r.ctx.Done():
		return fmt.Errorf("router is shutting down")
	}
}

// Post is a convenience wrapper that logs instead of returning the error,
// for fire-and-forget callers.
func (r *Router) Post(from, to string, msg messages.Message) {
	if err := r.Send(messages.Envelope{From: from, To: to, Message: msg}); err != nil {
		log.Printf("Router: dropped %s from %s: %v", msg.Type(), from, err)
	}
}

// SetMessageLogging enables or disables message logging
func (r *Router) SetMessageLogging(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logMessages = enabled
}

// Shutdown closes every inbox. Pending senders return an error.
func (r *Router) Shutdown() {
	log.Printf("Router: Shutting down...")

	r.cancel()

	r.mu.Lock()
	defer r.mu.Unlock()

	for contextID, info := range r.channels {
		if info.Active {
			info.Active = false
			close(info.Channel)
			log.Printf("Router: Closed channel for context %s", contextID)
		}
	}
	r.channels = make(map[string]*ChannelInfo)

	log.Printf("Router: Shutdown complete")
}

// WaitForMessage waits for a specific message type from a channel with timeout
func WaitForMessage(ch <-chan messages.Envelope, messageType string, timeout time.Duration) (messages.Envelope, error) {
	deadline := time.After(timeout)

	for {
		select {
		case envelope, ok := <-ch:
			if !ok {
				return messages.Envelope{}, fmt.Errorf("channel closed waiting for %s", messageType)
			}
			if envelope.Message.Type() == messageType {
				return envelope, nil
			}
		case <-deadline:
			return messages.Envelope{}, fmt.Errorf("timeout waiting for message type %s", messageType)
		}
	}
}

// DrainChannel drains all buffered messages from a channel
func DrainChannel(ch <-chan messages.Envelope) int {
	count := 0
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return count
			}
			count++
		default:
			return count
		}
	}
}
