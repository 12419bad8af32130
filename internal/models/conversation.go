package models

import (
	"time"
)

// Conversation is a two-party message thread plus the cached display
// metadata the list view needs. Conversations are created on hydration or
// via an explicit start-chat call and live until session teardown.
type Conversation struct {
	// ID is the stable conversation identifier.
	ID string `json:"id"`

	// Messages is the embedded message list from hydration. The list
	// store keeps it appended and re-derives everything else from it.
	Messages []Message `json:"messageList"`

	// OtherPhone is the identity key of the other participant.
	OtherPhone string `json:"otherParticipantPhone"`

	// ContactName is the saved contact name for the other participant,
	// if any. Preferred over OtherName for display.
	ContactName string `json:"contactName,omitempty"`

	// OtherName is the other participant's profile name.
	OtherName string `json:"otherParticipantName,omitempty"`

	// OtherOnline caches the other participant's online flag.
	OtherOnline bool `json:"otherParticipantOnline"`

	// OtherLastSeen caches when the other participant was last online.
	OtherLastSeen *time.Time `json:"otherParticipantLastSeen,omitempty"`

	// OtherAvatarURL caches the other participant's profile image.
	OtherAvatarURL string `json:"otherParticipantProfileImageUrl,omitempty"`

	// CreatedAt is the conversation creation time, used as the activity
	// time while the thread is still empty.
	CreatedAt time.Time `json:"createdAt"`
}

// DisplayName returns the best available name for the other participant.
func (c Conversation) DisplayName() string {
	switch {
	case c.ContactName != "":
		return c.ContactName
	case c.OtherName != "":
		return c.OtherName
	case c.OtherPhone != "":
		return c.OtherPhone
	default:
		return "Chat #" + c.ID
	}
}

// LastActivity returns max(message.SentAt), or CreatedAt for an empty
// thread. This is the list sort key.
func (c Conversation) LastActivity() time.Time {
	last := c.CreatedAt
	for _, m := range c.Messages {
		if m.SentAt.After(last) {
			last = m.SentAt
		}
	}
	return last
}

// LastMessage returns the most recent message, or nil for an empty thread.
func (c Conversation) LastMessage() *Message {
	var last *Message
	for i := range c.Messages {
		if last == nil || last.Before(c.Messages[i]) {
			last = &c.Messages[i]
		}
	}
	return last
}

// UnreadCount counts messages that are unread and not authored by
// selfPhone. Invariant maintained by every list store operation.
func (c Conversation) UnreadCount(selfPhone string) int {
	n := 0
	for _, m := range c.Messages {
		if !m.Read && m.SenderPhone != selfPhone {
			n++
		}
	}
	return n
}
