package chat

import (
	"errors"
)

// Engine errors.
var (
	// ErrStaleResult marks a completed async operation whose target
	// view is no longer active. Callers discard the result; the user
	// never sees it.
	ErrStaleResult = errors.New("stale result for inactive view")

	// ErrUnknownMessage is returned when a local mutation names a
	// message id the store has never seen.
	ErrUnknownMessage = errors.New("unknown message id")

	// ErrConversationClosed is returned by operations on a controller
	// after Close.
	ErrConversationClosed = errors.New("conversation closed")
)
