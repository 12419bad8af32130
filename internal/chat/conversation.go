package chat

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/whisper-im/whisper/internal/logging"
	"github.com/whisper-im/whisper/internal/models"
	"github.com/whisper-im/whisper/internal/notify"
	"github.com/whisper-im/whisper/internal/transport"
)

const defaultSweepInterval = 2 * time.Second

// ConversationConfig assembles a ConversationController.
type ConversationConfig struct {
	ConversationID string
	SelfPhone      string

	API       API
	Transport transport.Transport
	Scheduler *Scheduler
	Notifier  *notify.ReadNotifier

	// SweepInterval is the read-acknowledgement sweep period.
	SweepInterval time.Duration

	// OnChange is called after any mutation that should re-render the
	// open conversation. Called from event and timer goroutines.
	OnChange func()
}

// ConversationController owns the lifecycle of one open conversation:
// hydration, the live event subscription, the periodic read sweep, and
// optimistic sends. Results of async work that completes after Close are
// discarded as stale.
type ConversationController struct {
	cfg    ConversationConfig
	store  *MessageStore
	syncer *ReadSyncer
	logger zerolog.Logger

	mu     sync.Mutex
	sub    *transport.Subscription
	sweep  *Handle
	closed bool
}

// NewConversationController builds the controller. Open must be called
// before events flow.
func NewConversationController(cfg ConversationConfig) *ConversationController {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepInterval
	}
	if cfg.OnChange == nil {
		cfg.OnChange = func() {}
	}
	store := NewMessageStore(cfg.ConversationID, cfg.SelfPhone)
	return &ConversationController{
		cfg:    cfg,
		store:  store,
		syncer: NewReadSyncer(store, cfg.API, cfg.Notifier),
		logger: logging.WithConversation(cfg.ConversationID),
	}
}

// Store exposes the conversation's message store for rendering.
func (c *ConversationController) Store() *MessageStore {
	return c.store
}

// Open brings the conversation live: cached messages render immediately,
// the event subscription starts before the authoritative fetch so no
// event can fall into the gap, then the REST snapshot merges in and the
// read sweep begins. cached may be nil.
func (c *ConversationController) Open(ctx context.Context, cached []models.Message) error {
	if len(cached) > 0 {
		if err := c.store.Hydrate(cached); err != nil {
			c.logger.Warn().Err(err).Msg("cached messages rejected")
		}
	}

	sub, err := c.cfg.Transport.Subscribe(
		transport.ConversationTopic(c.cfg.ConversationID), c.handleEvent)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		sub.Cancel()
		return ErrConversationClosed
	}
	c.sub = sub
	c.mu.Unlock()

	messages, err := c.cfg.API.Messages(ctx, c.cfg.ConversationID)
	if err != nil {
		return err
	}
	if c.isClosed() {
		return ErrStaleResult
	}
	if err := c.store.Hydrate(messages); err != nil {
		return err
	}

	c.mu.Lock()
	if !c.closed && c.sweep == nil {
		c.sweep = c.cfg.Scheduler.Every(c.cfg.SweepInterval, "read-sweep", func() {
			c.syncer.Sweep(context.Background())
			c.cfg.OnChange()
		})
	}
	c.mu.Unlock()

	c.syncer.Sweep(ctx)
	c.cfg.OnChange()
	return nil
}

// Send performs an optimistic send: a placeholder appears in the store
// immediately, the server's copy substitutes it on success, and a failed
// request removes it again.
func (c *ConversationController) Send(ctx context.Context, content string) (models.Message, error) {
	if c.isClosed() {
		return models.Message{}, ErrConversationClosed
	}

	placeholder := models.Message{
		ID:             "local-" + uuid.NewString(),
		ConversationID: c.cfg.ConversationID,
		SenderPhone:    c.cfg.SelfPhone,
		Content:        content,
		SentAt:         time.Now(),
		Read:           true,
	}
	if _, err := c.store.Ingest(placeholder); err != nil {
		return models.Message{}, err
	}
	c.cfg.OnChange()

	sent, err := c.cfg.API.Send(ctx, c.cfg.ConversationID, content)
	if err != nil {
		c.store.Remove(placeholder.ID)
		c.cfg.OnChange()
		return models.Message{}, err
	}

	if err := c.store.Substitute(placeholder.ID, sent); err != nil {
		// Server copy unusable; keep the placeholder out either way.
		c.store.Remove(placeholder.ID)
		c.logger.Warn().Err(err).Msg("send response rejected")
	}
	c.cfg.OnChange()
	return sent, nil
}

// Close tears the conversation down: the subscription, the sweep timer,
// and any in-flight result become stale.
func (c *ConversationController) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	sub := c.sub
	sweep := c.sweep
	c.sub = nil
	c.sweep = nil
	c.mu.Unlock()

	if sweep != nil {
		sweep.Stop()
	}
	if sub != nil {
		sub.Cancel()
	}
	c.logger.Debug().Msg("conversation closed")
}

func (c *ConversationController) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// handleEvent ingests one streamed message. Duplicates are silent; a new
// message from the other participant is acknowledged right away instead
// of waiting for the sweep.
func (c *ConversationController) handleEvent(payload []byte) {
	var m models.Message
	if err := json.Unmarshal(payload, &m); err != nil {
		c.logger.Debug().Err(err).Msg("dropping unparseable event")
		return
	}

	fresh, err := c.store.Ingest(m)
	if err != nil {
		c.logger.Warn().Err(err).Msg("dropping malformed event")
		return
	}
	if !fresh {
		return
	}

	if c.isClosed() {
		return
	}
	c.syncer.OnIngest(context.Background(), m)
	c.cfg.OnChange()
}
