package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whisper-im/whisper/internal/models"
	"github.com/whisper-im/whisper/internal/notify"
)

type fakeAcker struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
	gate  chan struct{}
}

func newFakeAcker() *fakeAcker {
	return &fakeAcker{fail: make(map[string]error)}
}

func (f *fakeAcker) AcknowledgeRead(_ context.Context, messageID string) error {
	f.mu.Lock()
	f.calls = append(f.calls, messageID)
	gate := f.gate
	err := f.fail[messageID]
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return err
}

func (f *fakeAcker) callCount(messageID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, id := range f.calls {
		if id == messageID {
			n++
		}
	}
	return n
}

func TestReadSyncerSweepConfirmsUnread(t *testing.T) {
	store := NewMessageStore("conv-1", "+100")
	at := time.Now()
	require.NoError(t, store.Hydrate([]models.Message{
		msg("m1", "+200", at, false),
		msg("m2", "+100", at.Add(time.Second), false),
	}))

	api := newFakeAcker()
	var events []notify.ReadEvent
	notifier := notify.NewReadNotifier()
	notifier.Register(func(ev notify.ReadEvent) { events = append(events, ev) })

	syncer := NewReadSyncer(store, api, notifier)
	syncer.Sweep(context.Background())

	// Only the other participant's message was acknowledged.
	assert.Equal(t, 1, api.callCount("m1"))
	assert.Equal(t, 0, api.callCount("m2"))

	got, _ := store.Get("m1")
	assert.True(t, got.Read)
	assert.Equal(t, 0, syncer.PendingCount())

	require.Len(t, events, 1)
	assert.Equal(t, notify.ReadEvent{ConversationID: "conv-1", MessageID: "m1"}, events[0])
}

func TestReadSyncerSweepIsIdempotent(t *testing.T) {
	store := NewMessageStore("conv-1", "+100")
	require.NoError(t, store.Hydrate([]models.Message{msg("m1", "+200", time.Now(), false)}))

	api := newFakeAcker()
	syncer := NewReadSyncer(store, api, nil)

	syncer.Sweep(context.Background())
	syncer.Sweep(context.Background())

	// The second sweep finds no unread candidates.
	assert.Equal(t, 1, api.callCount("m1"))
}

func TestReadSyncerFailureRevertsAndRetries(t *testing.T) {
	store := NewMessageStore("conv-1", "+100")
	require.NoError(t, store.Hydrate([]models.Message{msg("m1", "+200", time.Now(), false)}))

	api := newFakeAcker()
	api.fail["m1"] = errors.New("boom")

	syncer := NewReadSyncer(store, api, nil)
	syncer.Sweep(context.Background())

	got, _ := store.Get("m1")
	assert.False(t, got.Read, "optimistic flip must roll back")
	assert.Equal(t, 0, syncer.PendingCount())

	// Next sweep retries once the server recovers.
	delete(api.fail, "m1")
	syncer.Sweep(context.Background())

	got, _ = store.Get("m1")
	assert.True(t, got.Read)
	assert.Equal(t, 2, api.callCount("m1"))
}

func TestReadSyncerPendingGuardBlocksDoubleAck(t *testing.T) {
	store := NewMessageStore("conv-1", "+100")
	require.NoError(t, store.Hydrate([]models.Message{msg("m1", "+200", time.Now(), false)}))

	api := newFakeAcker()
	api.gate = make(chan struct{})

	syncer := NewReadSyncer(store, api, nil)

	done := make(chan struct{})
	go func() {
		syncer.Sweep(context.Background())
		close(done)
	}()

	// Wait until the first acknowledgement is in flight.
	require.Eventually(t, func() bool {
		return api.callCount("m1") == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, syncer.PendingCount())

	// A concurrent trigger for the same message is a no-op.
	syncer.OnIngest(context.Background(), msg("m1", "+200", time.Now(), false))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, api.callCount("m1"))

	close(api.gate)
	<-done
	require.Eventually(t, func() bool {
		return syncer.PendingCount() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestReadSyncerOnIngestReturnsWhileAckInFlight(t *testing.T) {
	store := NewMessageStore("conv-1", "+100")
	incoming := msg("m1", "+200", time.Now(), false)
	_, err := store.Ingest(incoming)
	require.NoError(t, err)

	api := newFakeAcker()
	api.gate = make(chan struct{})
	syncer := NewReadSyncer(store, api, nil)

	// The call must come back immediately even though the server is
	// holding the acknowledgement open.
	returned := make(chan struct{})
	go func() {
		syncer.OnIngest(context.Background(), incoming)
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("OnIngest blocked on the acknowledgement round-trip")
	}

	require.Eventually(t, func() bool {
		return api.callCount("m1") == 1
	}, time.Second, 5*time.Millisecond)

	close(api.gate)
	require.Eventually(t, func() bool {
		return syncer.PendingCount() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestReadSyncerOnIngestSkipsOwnAndRead(t *testing.T) {
	store := NewMessageStore("conv-1", "+100")
	at := time.Now()
	own := msg("m1", "+100", at, false)
	already := msg("m2", "+200", at, true)
	_, err := store.Ingest(own)
	require.NoError(t, err)
	_, err = store.Ingest(already)
	require.NoError(t, err)

	api := newFakeAcker()
	syncer := NewReadSyncer(store, api, nil)

	syncer.OnIngest(context.Background(), own)
	syncer.OnIngest(context.Background(), already)

	assert.Empty(t, api.calls)
}
