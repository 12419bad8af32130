package models

import (
	"errors"
	"time"
)

// ErrMalformedMessage is returned when a message from the wire is missing
// its id, conversation id, or timestamp. Stores reject such input without
// touching their state.
var ErrMalformedMessage = errors.New("malformed message")

// Message is a single chat message. Messages are immutable once created;
// the only mutable field is Read, which is monotonic true once the server
// confirms it but may be flipped back during an optimistic rollback.
type Message struct {
	// ID is globally unique and assigned by the server. Locally minted
	// ids exist only for transient optimistic placeholders and are
	// substituted by the server-assigned id on send confirmation.
	ID string `json:"id"`

	// ConversationID is the conversation this message belongs to for
	// its whole lifetime.
	ConversationID string `json:"chatId"`

	// SenderPhone identifies the author.
	SenderPhone string `json:"senderPhone"`

	// Content is opaque text.
	Content string `json:"content"`

	// SentAt is the server-assigned send time.
	SentAt time.Time `json:"timeSend"`

	// Read reports whether the recipient has seen the message.
	Read bool `json:"read"`

	// Delivered is informational only.
	Delivered bool `json:"delivered"`
}

// Validate checks the fields every store operation depends on.
func (m Message) Validate() error {
	if m.ID == "" || m.ConversationID == "" || m.SentAt.IsZero() {
		return ErrMalformedMessage
	}
	return nil
}

// Before reports whether m sorts before other in the canonical message
// order: ascending SentAt, ties broken by id ascending. Timestamps alone
// are not unique, so the tiebreak keeps the order total.
func (m Message) Before(other Message) bool {
	if !m.SentAt.Equal(other.SentAt) {
		return m.SentAt.Before(other.SentAt)
	}
	return m.ID < other.ID
}
