package models

import (
	"time"
)

// User represents a Whisper account as returned by the server.
// The phone number is the stable identity key; everything else is
// display metadata the core never mutates (except for the current
// user's own record, which the session owns).
type User struct {
	// Phone is the unique, stable identity key.
	Phone string `json:"phoneNumber"`

	// Username is the handle chosen at registration.
	Username string `json:"userName"`

	// FullName is the display name, may be empty.
	FullName string `json:"fullname"`

	// Email is the account email, informational only.
	Email string `json:"email"`

	// Online reports whether the user currently has an active session.
	Online bool `json:"online"`

	// LastSeen is the last time the user was online.
	LastSeen time.Time `json:"lastSeen"`

	// AvatarURL points at the profile image, may be empty.
	AvatarURL string `json:"profileImageUrl"`
}

// DisplayName returns the best available human-readable name.
func (u User) DisplayName() string {
	switch {
	case u.FullName != "":
		return u.FullName
	case u.Username != "":
		return u.Username
	default:
		return u.Phone
	}
}
