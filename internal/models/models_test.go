package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageValidate(t *testing.T) {
	at := time.Now()
	valid := Message{ID: "m1", ConversationID: "c1", SentAt: at}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name string
		m    Message
	}{
		{"missing id", Message{ConversationID: "c1", SentAt: at}},
		{"missing conversation", Message{ID: "m1", SentAt: at}},
		{"zero timestamp", Message{ID: "m1", ConversationID: "c1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.m.Validate(), ErrMalformedMessage)
		})
	}
}

func TestMessageBefore(t *testing.T) {
	at := time.Now()
	earlier := Message{ID: "b", SentAt: at}
	later := Message{ID: "a", SentAt: at.Add(time.Second)}

	assert.True(t, earlier.Before(later))
	assert.False(t, later.Before(earlier))

	// Equal timestamps fall back to id order.
	tieA := Message{ID: "a", SentAt: at}
	tieB := Message{ID: "b", SentAt: at}
	assert.True(t, tieA.Before(tieB))
	assert.False(t, tieB.Before(tieA))
}

func TestMessageWireFormat(t *testing.T) {
	raw := `{
		"id": "m1",
		"chatId": "c1",
		"senderPhone": "+100",
		"content": "hey",
		"timeSend": "2026-03-01T12:00:00Z",
		"read": true,
		"delivered": true
	}`

	var m Message
	require.NoError(t, json.Unmarshal([]byte(raw), &m))
	assert.Equal(t, "m1", m.ID)
	assert.Equal(t, "c1", m.ConversationID)
	assert.Equal(t, "+100", m.SenderPhone)
	assert.True(t, m.Read)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), m.SentAt)
}

func TestConversationLastActivity(t *testing.T) {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	empty := Conversation{ID: "c1", CreatedAt: created}
	assert.Equal(t, created, empty.LastActivity())

	withMessages := Conversation{
		ID:        "c1",
		CreatedAt: created,
		Messages: []Message{
			{ID: "m1", SentAt: created.Add(time.Hour)},
			{ID: "m2", SentAt: created.Add(2 * time.Hour)},
		},
	}
	assert.Equal(t, created.Add(2*time.Hour), withMessages.LastActivity())
}

func TestConversationUnreadCount(t *testing.T) {
	c := Conversation{Messages: []Message{
		{ID: "m1", SenderPhone: "+200", Read: false},
		{ID: "m2", SenderPhone: "+100", Read: false}, // own
		{ID: "m3", SenderPhone: "+200", Read: true},
	}}
	assert.Equal(t, 1, c.UnreadCount("+100"))
}

func TestConversationDisplayName(t *testing.T) {
	tests := []struct {
		name string
		c    Conversation
		want string
	}{
		{"contact name wins", Conversation{ContactName: "Ada", OtherName: "ada99", OtherPhone: "+200"}, "Ada"},
		{"profile name next", Conversation{OtherName: "ada99", OtherPhone: "+200"}, "ada99"},
		{"phone fallback", Conversation{OtherPhone: "+200"}, "+200"},
		{"id fallback", Conversation{ID: "7"}, "Chat #7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.c.DisplayName())
		})
	}
}

func TestUserDisplayName(t *testing.T) {
	assert.Equal(t, "Ada Lovelace", User{FullName: "Ada Lovelace", Username: "ada", Phone: "+100"}.DisplayName())
	assert.Equal(t, "ada", User{Username: "ada", Phone: "+100"}.DisplayName())
	assert.Equal(t, "+100", User{Phone: "+100"}.DisplayName())
}

func TestConversationLastMessage(t *testing.T) {
	assert.Nil(t, Conversation{}.LastMessage())

	at := time.Now()
	c := Conversation{Messages: []Message{
		{ID: "m2", SentAt: at.Add(time.Second)},
		{ID: "m1", SentAt: at},
	}}
	last := c.LastMessage()
	require.NotNil(t, last)
	assert.Equal(t, "m2", last.ID)
}
