package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whisper-im/whisper/internal/models"
)

func msg(id, sender string, at time.Time, read bool) models.Message {
	return models.Message{
		ID:             id,
		ConversationID: "conv-1",
		SenderPhone:    sender,
		Content:        "hello " + id,
		SentAt:         at,
		Read:           read,
	}
}

func collect(s *MessageStore) []models.Message {
	var out []models.Message
	for m := range s.All() {
		out = append(out, m)
	}
	return out
}

func TestMessageStoreHydrateOrdersBySentAt(t *testing.T) {
	store := NewMessageStore("conv-1", "+100")
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	err := store.Hydrate([]models.Message{
		msg("m3", "+200", base.Add(2*time.Minute), false),
		msg("m1", "+200", base, false),
		msg("m2", "+100", base.Add(time.Minute), true),
	})
	require.NoError(t, err)

	got := collect(store)
	require.Len(t, got, 3)
	assert.Equal(t, "m1", got[0].ID)
	assert.Equal(t, "m2", got[1].ID)
	assert.Equal(t, "m3", got[2].ID)
}

func TestMessageStoreOrderTiesBreakByID(t *testing.T) {
	store := NewMessageStore("conv-1", "+100")
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := store.Ingest(msg("b", "+200", at, false))
	require.NoError(t, err)
	_, err = store.Ingest(msg("a", "+200", at, false))
	require.NoError(t, err)

	got := collect(store)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
}

func TestMessageStoreIngestDeduplicates(t *testing.T) {
	store := NewMessageStore("conv-1", "+100")
	at := time.Now()

	fresh, err := store.Ingest(msg("m1", "+200", at, false))
	require.NoError(t, err)
	assert.True(t, fresh)

	// Same event delivered again via the second route.
	fresh, err = store.Ingest(msg("m1", "+200", at, false))
	require.NoError(t, err)
	assert.False(t, fresh)
	assert.Equal(t, 1, store.Len())
}

func TestMessageStoreEventBeforeHydrateConvergesOnce(t *testing.T) {
	store := NewMessageStore("conv-1", "+100")
	at := time.Now()

	fresh, err := store.Ingest(msg("m5", "+200", at, false))
	require.NoError(t, err)
	require.True(t, fresh)

	// The snapshot that arrives afterwards contains the same message.
	require.NoError(t, store.Hydrate([]models.Message{
		msg("m4", "+200", at.Add(-time.Minute), true),
		msg("m5", "+200", at, false),
	}))

	assert.Equal(t, 2, store.Len())
}

func TestMessageStoreReadNeverReverts(t *testing.T) {
	store := NewMessageStore("conv-1", "+100")
	at := time.Now()

	require.NoError(t, store.Hydrate([]models.Message{msg("m1", "+200", at, true)}))

	// A stale snapshot still carries read=false.
	require.NoError(t, store.Hydrate([]models.Message{msg("m1", "+200", at, false)}))

	got, ok := store.Get("m1")
	require.True(t, ok)
	assert.True(t, got.Read)
}

func TestMessageStoreHydrateRejectsMalformedBatch(t *testing.T) {
	store := NewMessageStore("conv-1", "+100")
	at := time.Now()

	bad := msg("", "+200", at, false)
	err := store.Hydrate([]models.Message{msg("m1", "+200", at, false), bad})
	require.ErrorIs(t, err, models.ErrMalformedMessage)
	assert.Equal(t, 0, store.Len())
}

func TestMessageStoreMarkAndRevertLocalRead(t *testing.T) {
	store := NewMessageStore("conv-1", "+100")
	_, err := store.Ingest(msg("m1", "+200", time.Now(), false))
	require.NoError(t, err)

	require.NoError(t, store.MarkLocalRead("m1"))
	got, _ := store.Get("m1")
	assert.True(t, got.Read)

	require.NoError(t, store.RevertLocalRead("m1"))
	got, _ = store.Get("m1")
	assert.False(t, got.Read)

	require.ErrorIs(t, store.MarkLocalRead("nope"), ErrUnknownMessage)
}

func TestMessageStoreSubstituteReplacesPlaceholder(t *testing.T) {
	store := NewMessageStore("conv-1", "+100")
	at := time.Now()

	_, err := store.Ingest(msg("local-abc", "+100", at, true))
	require.NoError(t, err)

	server := msg("m9", "+100", at.Add(time.Second), true)
	require.NoError(t, store.Substitute("local-abc", server))

	_, ok := store.Get("local-abc")
	assert.False(t, ok)
	got, ok := store.Get("m9")
	require.True(t, ok)
	assert.Equal(t, server.Content, got.Content)
}

func TestMessageStoreSubstituteWhenServerCopyAlreadyArrived(t *testing.T) {
	store := NewMessageStore("conv-1", "+100")
	at := time.Now()

	_, err := store.Ingest(msg("local-abc", "+100", at, true))
	require.NoError(t, err)
	_, err = store.Ingest(msg("m9", "+100", at.Add(time.Second), true))
	require.NoError(t, err)

	require.NoError(t, store.Substitute("local-abc", msg("m9", "+100", at.Add(time.Second), true)))
	assert.Equal(t, 1, store.Len())
}

func TestMessageStoreAllIsRestartable(t *testing.T) {
	store := NewMessageStore("conv-1", "+100")
	at := time.Now()
	_, err := store.Ingest(msg("m1", "+200", at, false))
	require.NoError(t, err)

	seq := store.All()

	first := 0
	for range seq {
		first++
	}

	_, err = store.Ingest(msg("m2", "+200", at.Add(time.Second), false))
	require.NoError(t, err)

	second := 0
	for range seq {
		second++
	}

	assert.Equal(t, 1, first)
	assert.Equal(t, 2, second)
}

func TestMessageStoreUnreadFromOthers(t *testing.T) {
	store := NewMessageStore("conv-1", "+100")
	at := time.Now()

	require.NoError(t, store.Hydrate([]models.Message{
		msg("m1", "+200", at, false),
		msg("m2", "+100", at.Add(time.Second), false), // own, never a candidate
		msg("m3", "+200", at.Add(2*time.Second), true),
		msg("m4", "+200", at.Add(3*time.Second), false),
	}))

	candidates := store.UnreadFromOthers()
	require.Len(t, candidates, 2)
	assert.Equal(t, "m1", candidates[0].ID)
	assert.Equal(t, "m4", candidates[1].ID)
}
