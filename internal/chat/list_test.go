package chat

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whisper-im/whisper/internal/models"
)

func conv(id, otherPhone string, createdAt time.Time, messages ...models.Message) models.Conversation {
	return models.Conversation{
		ID:         id,
		OtherPhone: otherPhone,
		CreatedAt:  createdAt,
		Messages:   messages,
	}
}

func listMsg(id, convID, sender string, at time.Time, read bool) models.Message {
	return models.Message{
		ID:             id,
		ConversationID: convID,
		SenderPhone:    sender,
		Content:        "hi",
		SentAt:         at,
		Read:           read,
	}
}

func TestListStoreSortsByLastActivityDescending(t *testing.T) {
	store := NewListStore("+100", nil)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	store.ReplaceAll([]models.Conversation{
		conv("c1", "+200", base, listMsg("m1", "c1", "+200", base.Add(time.Hour), false)),
		conv("c2", "+300", base, listMsg("m2", "c2", "+300", base.Add(2*time.Hour), false)),
		conv("c3", "+400", base.Add(30*time.Minute)), // no messages, CreatedAt counts
	})

	assert.Equal(t, []string{"c2", "c1", "c3"}, store.Order())
}

func TestListStoreSortTiesBreakByIDDescending(t *testing.T) {
	store := NewListStore("+100", nil)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	store.ReplaceAll([]models.Conversation{
		conv("c1", "+200", at),
		conv("c2", "+300", at),
	})

	assert.Equal(t, []string{"c2", "c1"}, store.Order())
}

func TestListStoreResortWithoutMutationKeepsOrder(t *testing.T) {
	store := NewListStore("+100", nil)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// A mix of distinct and tied activity times.
	store.ReplaceAll([]models.Conversation{
		conv("c1", "+200", base),
		conv("c4", "+500", base),
		conv("c2", "+300", base.Add(time.Hour)),
		conv("c3", "+400", base),
	})
	want := store.Order()
	require.Equal(t, []string{"c2", "c4", "c3", "c1"}, want)

	// Another full sort pass over the same content changes nothing.
	store.ReplaceAll(store.Snapshot())
	assert.Equal(t, want, store.Order())

	// Re-upserting an unchanged conversation changes nothing either.
	top, ok := store.Get(want[0])
	require.True(t, ok)
	store.Upsert(top)
	assert.Equal(t, want, store.Order())
}

func TestListStoreIncomingMessageReordersList(t *testing.T) {
	store := NewListStore("+100", nil)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	store.ReplaceAll([]models.Conversation{
		conv("c1", "+200", base, listMsg("m1", "c1", "+200", base.Add(time.Hour), true)),
		conv("c2", "+300", base, listMsg("m2", "c2", "+300", base.Add(30*time.Minute), true)),
	})
	require.Equal(t, "c1", store.TopID())

	changed := store.ApplyIncomingMessage(listMsg("m3", "c2", "+300", base.Add(2*time.Hour), false))
	assert.True(t, changed)
	assert.Equal(t, "c2", store.TopID())
}

func TestListStoreSelfSendIntoTopConversationSuppressesChange(t *testing.T) {
	store := NewListStore("+100", nil)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	store.ReplaceAll([]models.Conversation{
		conv("c1", "+200", base, listMsg("m1", "c1", "+200", base.Add(time.Hour), true)),
		conv("c2", "+300", base),
	})
	require.Equal(t, "c1", store.TopID())

	changed := store.ApplyIncomingMessage(listMsg("m2", "c1", "+100", base.Add(2*time.Hour), true))
	assert.False(t, changed)
	assert.Equal(t, "c1", store.TopID())

	// The message is still cached even though no change was signalled.
	got, ok := store.Get("c1")
	require.True(t, ok)
	assert.Len(t, got.Messages, 2)
}

func TestListStoreSelfSendIntoLowerConversationReorders(t *testing.T) {
	store := NewListStore("+100", nil)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	store.ReplaceAll([]models.Conversation{
		conv("c1", "+200", base, listMsg("m1", "c1", "+200", base.Add(time.Hour), true)),
		conv("c2", "+300", base),
	})

	changed := store.ApplyIncomingMessage(listMsg("m2", "c2", "+100", base.Add(2*time.Hour), true))
	assert.True(t, changed)
	assert.Equal(t, "c2", store.TopID())
}

func TestListStoreUnknownConversationRequestsRefetch(t *testing.T) {
	var refetches atomic.Int64
	done := make(chan struct{})
	store := NewListStore("+100", func() {
		refetches.Add(1)
		close(done)
	})
	store.ReplaceAll([]models.Conversation{conv("c1", "+200", time.Now())})

	changed := store.ApplyIncomingMessage(listMsg("m1", "c-new", "+500", time.Now(), false))
	assert.False(t, changed)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("refetch was not requested")
	}
	assert.Equal(t, int64(1), refetches.Load())
}

func TestListStoreDuplicateEventIgnored(t *testing.T) {
	store := NewListStore("+100", nil)
	base := time.Now()
	store.ReplaceAll([]models.Conversation{conv("c1", "+200", base)})

	m := listMsg("m1", "c1", "+200", base.Add(time.Minute), false)
	assert.True(t, store.ApplyIncomingMessage(m))
	assert.False(t, store.ApplyIncomingMessage(m))

	got, _ := store.Get("c1")
	assert.Len(t, got.Messages, 1)
}

func TestListStoreApplyReadAckLowersUnreadCount(t *testing.T) {
	store := NewListStore("+100", nil)
	base := time.Now()
	store.ReplaceAll([]models.Conversation{
		conv("c1", "+200", base,
			listMsg("m1", "c1", "+200", base, false),
			listMsg("m2", "c1", "+200", base.Add(time.Second), false)),
	})
	require.True(t, store.AnyUnread())

	store.ApplyReadAck("c1", "m1")
	got, _ := store.Get("c1")
	assert.Equal(t, 1, got.UnreadCount("+100"))

	store.ApplyReadAck("c1", "m2")
	assert.False(t, store.AnyUnread())
}

func TestListStoreMarkConversationReadAndRevert(t *testing.T) {
	store := NewListStore("+100", nil)
	base := time.Now()
	store.ReplaceAll([]models.Conversation{
		conv("c1", "+200", base,
			listMsg("m1", "c1", "+200", base, false),
			listMsg("m2", "c1", "+100", base.Add(time.Second), false), // own message stays untouched
			listMsg("m3", "c1", "+200", base.Add(2*time.Second), true)),
	})

	flipped := store.MarkConversationRead("c1")
	assert.Equal(t, []string{"m1"}, flipped)
	got, _ := store.Get("c1")
	assert.Equal(t, 0, got.UnreadCount("+100"))

	store.RevertConversationRead("c1", flipped)
	got, _ = store.Get("c1")
	assert.Equal(t, 1, got.UnreadCount("+100"))
}

func TestListStoreFindByParticipant(t *testing.T) {
	store := NewListStore("+100", nil)
	base := time.Now()
	store.ReplaceAll([]models.Conversation{
		conv("c1", "+200", base),
		conv("c2", "", base, listMsg("m1", "c2", "+300", base, true)),
	})

	got, ok := store.FindByParticipant("+200")
	require.True(t, ok)
	assert.Equal(t, "c1", got.ID)

	// Participant identified through message authorship when the
	// conversation metadata lacks the phone.
	got, ok = store.FindByParticipant("+300")
	require.True(t, ok)
	assert.Equal(t, "c2", got.ID)

	_, ok = store.FindByParticipant("+999")
	assert.False(t, ok)
}

func TestListStoreUpsertReplacesExisting(t *testing.T) {
	store := NewListStore("+100", nil)
	base := time.Now()
	store.ReplaceAll([]models.Conversation{conv("c1", "+200", base)})

	updated := conv("c1", "+200", base, listMsg("m1", "c1", "+200", base.Add(time.Minute), false))
	store.Upsert(updated)

	got, _ := store.Get("c1")
	assert.Len(t, got.Messages, 1)
	assert.Equal(t, []string{"c1"}, store.Order())
}
