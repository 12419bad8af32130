package chat

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/whisper-im/whisper/internal/logging"
	"github.com/whisper-im/whisper/internal/models"
)

// ListStore maintains every conversation of the session, sorted by
// activity, and exposes incremental update paths that avoid a full
// refetch where possible. It never performs I/O itself: when only a
// refetch can resolve an update (a message for an unknown conversation),
// it invokes the refetch request callback and leaves the network to the
// owner.
type ListStore struct {
	selfPhone      string
	requestRefetch func()
	logger         zerolog.Logger

	mu            sync.Mutex
	conversations []models.Conversation // descending LastActivity, ties by id descending
}

// NewListStore creates an empty list store. requestRefetch is invoked
// (possibly from an event handler goroutine) whenever the store cannot
// apply an update incrementally; it must not block.
func NewListStore(selfPhone string, requestRefetch func()) *ListStore {
	if requestRefetch == nil {
		requestRefetch = func() {}
	}
	return &ListStore{
		selfPhone:      selfPhone,
		requestRefetch: requestRefetch,
		logger:         logging.Component("list-store"),
	}
}

// ReplaceAll installs a full hydration batch and recomputes the order.
func (s *ListStore) ReplaceAll(conversations []models.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversations = make([]models.Conversation, len(conversations))
	copy(s.conversations, conversations)
	s.sortLocked()
}

// Upsert inserts or replaces a single conversation, typically the result
// of a start-chat call, and re-sorts.
func (s *ListStore) Upsert(conversation models.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pos, ok := s.findLocked(conversation.ID); ok {
		s.conversations[pos] = conversation
	} else {
		s.conversations = append(s.conversations, conversation)
	}
	s.sortLocked()
}

// ApplyIncomingMessage folds one streamed message into the cached list.
// Returns true when the visible list changed and a re-render is due.
//
// A message for an unknown conversation cannot be synthesized locally
// (its participant metadata is not on the wire), so the store requests a
// full refetch instead. A self-sent message into the conversation that
// is already first keeps list order and emits no change signal; this is
// the anti-thrash rule, not an accuracy requirement.
func (s *ListStore) ApplyIncomingMessage(m models.Message) bool {
	if err := m.Validate(); err != nil {
		s.logger.Warn().Err(err).Msg("dropping malformed list event")
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.findLocked(m.ConversationID)
	if !ok {
		s.logger.Debug().
			Str("conversation_id", m.ConversationID).
			Msg("message for unknown conversation, requesting refetch")
		go s.requestRefetch()
		return false
	}

	// Duplicate suppression: the same event can arrive via both the
	// broadcast topic and the user queue.
	for _, existing := range s.conversations[pos].Messages {
		if existing.ID == m.ID {
			return false
		}
	}

	selfSendOnTop := m.SenderPhone == s.selfPhone && pos == 0

	s.conversations[pos].Messages = append(s.conversations[pos].Messages, m)

	if selfSendOnTop {
		return false
	}
	s.sortLocked()
	return true
}

// ApplyReadAck flips one message's read flag inside the cached
// conversation. The unread count is derived, so nothing else changes and
// no refetch happens.
func (s *ListStore) ApplyReadAck(conversationID, messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.findLocked(conversationID)
	if !ok {
		return
	}
	messages := s.conversations[pos].Messages
	for i := range messages {
		if messages[i].ID == messageID {
			messages[i].Read = true
			return
		}
	}
}

// MarkConversationRead optimistically flips every non-self unread
// message in the conversation and returns the flipped ids so a failed
// bulk acknowledgement can be rolled back with Revert.
func (s *ListStore) MarkConversationRead(conversationID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.findLocked(conversationID)
	if !ok {
		return nil
	}

	var flipped []string
	messages := s.conversations[pos].Messages
	for i := range messages {
		if !messages[i].Read && messages[i].SenderPhone != s.selfPhone {
			messages[i].Read = true
			flipped = append(flipped, messages[i].ID)
		}
	}
	return flipped
}

// RevertConversationRead undoes an optimistic MarkConversationRead.
func (s *ListStore) RevertConversationRead(conversationID string, messageIDs []string) {
	if len(messageIDs) == 0 {
		return
	}
	ids := make(map[string]struct{}, len(messageIDs))
	for _, id := range messageIDs {
		ids[id] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.findLocked(conversationID)
	if !ok {
		return
	}
	messages := s.conversations[pos].Messages
	for i := range messages {
		if _, hit := ids[messages[i].ID]; hit {
			messages[i].Read = false
		}
	}
}

// Snapshot returns a sorted copy of the list.
func (s *ListStore) Snapshot() []models.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Conversation, len(s.conversations))
	copy(out, s.conversations)
	for i := range out {
		msgs := make([]models.Message, len(out[i].Messages))
		copy(msgs, out[i].Messages)
		out[i].Messages = msgs
	}
	return out
}

// Get returns a copy of one conversation.
func (s *ListStore) Get(conversationID string) (models.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.findLocked(conversationID)
	if !ok {
		return models.Conversation{}, false
	}
	conv := s.conversations[pos]
	msgs := make([]models.Message, len(conv.Messages))
	copy(msgs, conv.Messages)
	conv.Messages = msgs
	return conv, true
}

// FindByParticipant returns the cached conversation with the given other
// participant, used to reuse an existing thread from a search result.
func (s *ListStore) FindByParticipant(phone string) (models.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, conv := range s.conversations {
		if conv.OtherPhone == phone {
			return conv, true
		}
		for _, m := range conv.Messages {
			if m.SenderPhone == phone {
				return conv, true
			}
		}
	}
	return models.Conversation{}, false
}

// TopID returns the id of the first conversation in sort order, or "".
func (s *ListStore) TopID() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.conversations) == 0 {
		return ""
	}
	return s.conversations[0].ID
}

// AnyUnread reports whether any cached conversation still has unread
// messages; the poll scheduler gates on this.
func (s *ListStore) AnyUnread() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, conv := range s.conversations {
		if conv.UnreadCount(s.selfPhone) > 0 {
			return true
		}
	}
	return false
}

// Order returns the conversation ids in sort order, cheap to compare for
// render decisions.
func (s *ListStore) Order() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, len(s.conversations))
	for i, conv := range s.conversations {
		out[i] = conv.ID
	}
	return out
}

func (s *ListStore) findLocked(conversationID string) (int, bool) {
	for i := range s.conversations {
		if s.conversations[i].ID == conversationID {
			return i, true
		}
	}
	return 0, false
}

// sortLocked keeps the total order: descending LastActivity, ties broken
// by conversation id descending. Sorting an unchanged list is a no-op.
func (s *ListStore) sortLocked() {
	sort.SliceStable(s.conversations, func(i, j int) bool {
		a, b := s.conversations[i], s.conversations[j]
		at, bt := a.LastActivity(), b.LastActivity()
		if !at.Equal(bt) {
			return at.After(bt)
		}
		return a.ID > b.ID
	})
}
