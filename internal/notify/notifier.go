// Package notify carries read-receipt confirmations from the open
// conversation view to the conversation list without a shared store and
// without polling: a single-slot publish point with an explicit fallback
// when no consumer is mounted.
package notify

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/whisper-im/whisper/internal/logging"
)

// ReadEvent states that one message in one conversation became read.
type ReadEvent struct {
	ConversationID string
	MessageID      string
}

// Handler consumes a ReadEvent.
type Handler func(ReadEvent)

// ReadNotifier is a one-producer/one-consumer publish point. The list
// view registers the single handler when it mounts; the active
// conversation publishes confirmed acknowledgements. Publishing with no
// handler mounted invokes the fallback instead, typically a full list
// refresh request.
type ReadNotifier struct {
	mu       sync.Mutex
	handler  Handler
	gen      uint64
	fallback func()
	logger   zerolog.Logger
}

// Option configures a ReadNotifier.
type Option func(*ReadNotifier)

// WithFallback sets the action taken when an event is published while no
// handler is registered.
func WithFallback(fn func()) Option {
	return func(n *ReadNotifier) {
		n.fallback = fn
	}
}

// NewReadNotifier creates an empty notifier.
func NewReadNotifier(opts ...Option) *ReadNotifier {
	n := &ReadNotifier{logger: logging.Component("notify")}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Register installs the handler, replacing any previous one, and returns
// an unregister function. Unregister is a no-op if another handler was
// installed in the meantime.
func (n *ReadNotifier) Register(h Handler) func() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.handler != nil {
		n.logger.Debug().Msg("replacing read handler")
	}
	n.handler = h
	n.gen++
	gen := n.gen

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		// Only the registration that installed the current handler
		// may clear the slot; a stale unregister is a no-op.
		if n.gen == gen {
			n.handler = nil
		}
	}
}

// HasSubscriber reports whether a handler is currently mounted.
func (n *ReadNotifier) HasSubscriber() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.handler != nil
}

// Publish delivers the event to the handler, or falls back to the
// registered fallback when no handler is mounted.
func (n *ReadNotifier) Publish(ev ReadEvent) {
	n.mu.Lock()
	handler := n.handler
	fallback := n.fallback
	n.mu.Unlock()

	if handler != nil {
		handler(ev)
		return
	}
	if fallback != nil {
		n.logger.Debug().
			Str("conversation_id", ev.ConversationID).
			Str("message_id", ev.MessageID).
			Msg("no read handler mounted, falling back")
		fallback()
	}
}
