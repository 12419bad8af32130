package chat

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/whisper-im/whisper/internal/logging"
	"github.com/whisper-im/whisper/internal/models"
	"github.com/whisper-im/whisper/internal/notify"
)

// Acker issues per-message read acknowledgements against the server.
type Acker interface {
	AcknowledgeRead(ctx context.Context, messageID string) error
}

// ReadSyncer converges server-side read state toward the local optimistic
// view. Each candidate message moves through unread, pending, confirmed;
// the pending set guards against double acknowledgement while a request
// is in flight, and a failed request rolls the optimistic flip back so
// the next sweep retries.
type ReadSyncer struct {
	store    *MessageStore
	api      Acker
	notifier *notify.ReadNotifier
	logger   zerolog.Logger

	mu      sync.Mutex
	pending map[string]*models.AckTask
}

// NewReadSyncer wires a syncer to one conversation's store. notifier may
// be nil when no cross-view consumer exists.
func NewReadSyncer(store *MessageStore, api Acker, notifier *notify.ReadNotifier) *ReadSyncer {
	return &ReadSyncer{
		store:    store,
		api:      api,
		notifier: notifier,
		logger:   logging.Component("readsync").With().Str("conversation_id", store.ConversationID()).Logger(),
		pending:  make(map[string]*models.AckTask),
	}
}

// Sweep acknowledges every unread message from the other participant.
// The read flag flips optimistically before the request; on failure it
// reverts and the task is dropped so a later sweep can retry. Messages
// with an acknowledgement already in flight are skipped.
func (r *ReadSyncer) Sweep(ctx context.Context) {
	for _, m := range r.store.UnreadFromOthers() {
		r.acknowledge(ctx, m.ID)
	}
}

// OnIngest reacts to a freshly ingested message: a new message from the
// other participant is acknowledged immediately rather than waiting for
// the next sweep. The acknowledgement round-trip runs on its own
// goroutine; OnIngest is called from event handlers and must return
// without blocking on the network. The pending guard absorbs the sweep
// racing the same message.
func (r *ReadSyncer) OnIngest(ctx context.Context, m models.Message) {
	if r.store.Mine(m) || m.Read {
		return
	}
	go r.acknowledge(ctx, m.ID)
}

// PendingCount returns the number of acknowledgements in flight.
func (r *ReadSyncer) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *ReadSyncer) acknowledge(ctx context.Context, messageID string) {
	r.mu.Lock()
	if _, inFlight := r.pending[messageID]; inFlight {
		r.mu.Unlock()
		return
	}
	task := &models.AckTask{
		MessageID:      messageID,
		ConversationID: r.store.ConversationID(),
		State:          models.AckStatePending,
	}
	r.pending[messageID] = task
	r.mu.Unlock()

	if err := r.store.MarkLocalRead(messageID); err != nil {
		// Message vanished between the candidate scan and now.
		r.clearTask(messageID)
		return
	}

	if err := r.api.AcknowledgeRead(ctx, messageID); err != nil {
		r.logger.Warn().Err(err).Str("message_id", messageID).Msg("read ack failed, reverting")
		if revertErr := r.store.RevertLocalRead(messageID); revertErr != nil {
			r.logger.Debug().Err(revertErr).Str("message_id", messageID).Msg("revert skipped")
		}
		r.clearTask(messageID)
		return
	}

	r.mu.Lock()
	task.State = models.AckStateConfirmed
	delete(r.pending, messageID)
	r.mu.Unlock()

	if r.notifier != nil {
		r.notifier.Publish(notify.ReadEvent{
			ConversationID: r.store.ConversationID(),
			MessageID:      messageID,
		})
	}
}

func (r *ReadSyncer) clearTask(messageID string) {
	r.mu.Lock()
	delete(r.pending, messageID)
	r.mu.Unlock()
}
