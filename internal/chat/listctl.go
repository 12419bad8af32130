package chat

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/whisper-im/whisper/internal/logging"
	"github.com/whisper-im/whisper/internal/models"
	"github.com/whisper-im/whisper/internal/notify"
	"github.com/whisper-im/whisper/internal/transport"
)

const defaultPollInterval = 30 * time.Second

// ErrUserNotFound is returned by StartChat when the phone number matches
// no registered user.
var ErrUserNotFound = errors.New("no user with that phone number")

// ListConfig assembles a ListController.
type ListConfig struct {
	SelfPhone string

	API       API
	Transport transport.Transport
	Scheduler *Scheduler
	Notifier  *notify.ReadNotifier

	// PollInterval is the safety-net refresh period. Each tick refetches
	// only while some conversation still has unread messages.
	PollInterval time.Duration

	// OnChange is called whenever the visible list changed.
	OnChange func()

	// OnError receives server-pushed error notices from the error queue.
	OnError func(message string)
}

// ListController owns the conversation list for the whole session: the
// initial hydration, the user queue and error queue subscriptions, the
// cross-view read notifications, the gated poll, and the bulk
// mark-conversation-read flow.
type ListController struct {
	cfg    ListConfig
	store  *ListStore
	logger zerolog.Logger

	mu         sync.Mutex
	subs       []*transport.Subscription
	poll       *Handle
	unregister func()
	stopped    bool
}

// NewListController builds the controller around a fresh ListStore.
func NewListController(cfg ListConfig) *ListController {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.OnChange == nil {
		cfg.OnChange = func() {}
	}
	c := &ListController{
		cfg:    cfg,
		logger: logging.Component("list"),
	}
	c.store = NewListStore(cfg.SelfPhone, c.requestRefetch)
	return c
}

// Store exposes the list store for rendering.
func (c *ListController) Store() *ListStore {
	return c.store
}

// Start hydrates the list and brings the live paths up: the personal
// message queue, the error queue, the read notification handler, and the
// gated poll.
func (c *ListController) Start(ctx context.Context) error {
	if err := c.Refetch(ctx); err != nil {
		return err
	}

	userSub, err := c.cfg.Transport.Subscribe(
		transport.UserQueue(c.cfg.SelfPhone), c.handleIncoming)
	if err != nil {
		return err
	}
	errSub, err := c.cfg.Transport.Subscribe(transport.ErrorQueue, c.handleError)
	if err != nil {
		userSub.Cancel()
		return err
	}

	unregister := c.cfg.Notifier.Register(func(ev notify.ReadEvent) {
		c.store.ApplyReadAck(ev.ConversationID, ev.MessageID)
		c.cfg.OnChange()
	})

	poll := c.cfg.Scheduler.Every(c.cfg.PollInterval, "list-poll", func() {
		if !c.store.AnyUnread() {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.PollInterval)
		defer cancel()
		if err := c.Refetch(ctx); err != nil {
			c.logger.Warn().Err(err).Msg("poll refetch failed")
		}
	})

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		userSub.Cancel()
		errSub.Cancel()
		unregister()
		poll.Stop()
		return ErrStaleResult
	}
	c.subs = append(c.subs, userSub, errSub)
	c.unregister = unregister
	c.poll = poll
	c.mu.Unlock()

	return nil
}

// Refetch replaces the cached list with a fresh server snapshot.
func (c *ListController) Refetch(ctx context.Context) error {
	conversations, err := c.cfg.API.Conversations(ctx)
	if err != nil {
		return err
	}
	if c.isStopped() {
		return ErrStaleResult
	}
	c.store.ReplaceAll(conversations)
	c.cfg.OnChange()
	return nil
}

// requestRefetch is the non-blocking escape hatch the store uses when it
// cannot apply an update incrementally.
func (c *ListController) requestRefetch() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := c.Refetch(ctx); err != nil && !errors.Is(err, ErrStaleResult) {
		c.logger.Warn().Err(err).Msg("requested refetch failed")
	}
}

// MarkConversationRead flips every unread message in the conversation
// optimistically, then confirms with one bulk acknowledgement. Failure
// rolls the flips back. On success the list refetches only when the
// conversation is not already first, where nothing visible can move.
func (c *ListController) MarkConversationRead(ctx context.Context, conversationID string) error {
	flipped := c.store.MarkConversationRead(conversationID)
	if len(flipped) == 0 {
		return nil
	}
	c.cfg.OnChange()

	if err := c.cfg.API.AcknowledgeConversationRead(ctx, conversationID, c.cfg.SelfPhone); err != nil {
		c.store.RevertConversationRead(conversationID, flipped)
		c.cfg.OnChange()
		return err
	}

	if c.store.TopID() != conversationID {
		if err := c.Refetch(ctx); err != nil && !errors.Is(err, ErrStaleResult) {
			c.logger.Warn().Err(err).Msg("post-ack refetch failed")
		}
	}
	return nil
}

// StartChat resolves a phone number to a conversation: an existing
// cached thread is reused, otherwise the user is looked up and a new
// conversation created on the server.
func (c *ListController) StartChat(ctx context.Context, phone string) (models.Conversation, error) {
	if conv, ok := c.store.FindByParticipant(phone); ok {
		return conv, nil
	}

	users, err := c.cfg.API.SearchUsers(ctx, phone)
	if err != nil {
		return models.Conversation{}, err
	}
	if len(users) == 0 {
		return models.Conversation{}, ErrUserNotFound
	}

	conv, err := c.cfg.API.StartConversation(ctx, users[0].Phone)
	if err != nil {
		return models.Conversation{}, err
	}
	c.store.Upsert(conv)
	c.cfg.OnChange()
	return conv, nil
}

// Stop tears down subscriptions, the poll, and the notification handler.
func (c *ListController) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	subs := c.subs
	poll := c.poll
	unregister := c.unregister
	c.subs = nil
	c.poll = nil
	c.unregister = nil
	c.mu.Unlock()

	if poll != nil {
		poll.Stop()
	}
	for _, sub := range subs {
		sub.Cancel()
	}
	if unregister != nil {
		unregister()
	}
}

func (c *ListController) isStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

func (c *ListController) handleIncoming(payload []byte) {
	var m models.Message
	if err := json.Unmarshal(payload, &m); err != nil {
		c.logger.Debug().Err(err).Msg("dropping unparseable queue event")
		return
	}
	if c.store.ApplyIncomingMessage(m) {
		c.cfg.OnChange()
	}
}

func (c *ListController) handleError(payload []byte) {
	var notice struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(payload, &notice); err != nil || notice.Content == "" {
		notice.Content = string(payload)
	}
	// Server notices can echo request headers.
	text := logging.Redact(notice.Content)
	c.logger.Warn().Str("notice", text).Msg("server error notice")
	if c.cfg.OnError != nil {
		c.cfg.OnError(text)
	}
}
