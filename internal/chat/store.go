// Package chat implements the synchronization engine: per-conversation
// message stores, the conversation list store, the read-receipt
// synchronizer, and the schedulers that keep them converging while REST
// hydration, streamed events, and optimistic local actions race each
// other.
package chat

import (
	"iter"
	"sort"
	"sync"

	"github.com/whisper-im/whisper/internal/models"
)

// MessageStore owns the canonical, deduplicated, chronologically ordered
// message set for one conversation. Hydrated batches and streamed events
// may arrive in either order, possibly duplicated; the store reconciles
// them through id-based union and read-flag monotonicity.
type MessageStore struct {
	conversationID string
	selfPhone      string

	mu       sync.Mutex
	messages []models.Message // ascending SentAt, ties by id
	index    map[string]int   // id -> position in messages
}

// NewMessageStore creates an empty store for one conversation. selfPhone
// classifies messages as own versus the other participant's.
func NewMessageStore(conversationID, selfPhone string) *MessageStore {
	return &MessageStore{
		conversationID: conversationID,
		selfPhone:      selfPhone,
		index:          make(map[string]int),
	}
}

// ConversationID returns the owning conversation.
func (s *MessageStore) ConversationID() string {
	return s.conversationID
}

// Mine reports whether the current user authored the message.
func (s *MessageStore) Mine(m models.Message) bool {
	return m.SenderPhone == s.selfPhone
}

// Hydrate merges a REST-fetched batch. The merge is idempotent and
// order-independent with respect to streamed events: union by id, with a
// confirmed read flag never reverting to unread. Malformed input rejects
// the whole batch and leaves the store untouched.
func (s *MessageStore) Hydrate(batch []models.Message) error {
	for _, m := range batch {
		if err := m.Validate(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range batch {
		if pos, ok := s.index[m.ID]; ok {
			// Known message: read=true wins over false, nothing
			// else may change.
			if m.Read {
				s.messages[pos].Read = true
			}
			continue
		}
		s.insertLocked(m)
	}
	return nil
}

// Ingest applies one streamed or locally produced message. Returns true
// only for a genuinely new message; a duplicate id is a no-op, which
// absorbs the same event arriving via both the broadcast topic and the
// point-to-point queue.
func (s *MessageStore) Ingest(m models.Message) (bool, error) {
	if err := m.Validate(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[m.ID]; ok {
		return false, nil
	}
	s.insertLocked(m)
	return true, nil
}

// MarkLocalRead flips the read flag to true. Pure local mutation, no
// I/O; used for the optimistic half of an acknowledgement.
func (s *MessageStore) MarkLocalRead(messageID string) error {
	return s.setRead(messageID, true)
}

// RevertLocalRead flips the read flag back to false after a failed
// acknowledgement.
func (s *MessageStore) RevertLocalRead(messageID string) error {
	return s.setRead(messageID, false)
}

func (s *MessageStore) setRead(messageID string, read bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.index[messageID]
	if !ok {
		return ErrUnknownMessage
	}
	s.messages[pos].Read = read
	return nil
}

// Substitute replaces an optimistic placeholder with the server-assigned
// message from a send response. If the server copy already arrived via
// the event stream, the placeholder is simply dropped.
func (s *MessageStore) Substitute(placeholderID string, m models.Message) error {
	if err := m.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(placeholderID)
	if _, ok := s.index[m.ID]; !ok {
		s.insertLocked(m)
	}
	return nil
}

// Remove drops a message, used to undo a failed optimistic send.
func (s *MessageStore) Remove(messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(messageID)
}

// Get returns a copy of the message with the given id.
func (s *MessageStore) Get(messageID string) (models.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.index[messageID]
	if !ok {
		return models.Message{}, false
	}
	return s.messages[pos], true
}

// Len returns the number of messages.
func (s *MessageStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// All produces a lazy, restartable sequence of messages ascending by
// send time, ties broken by id. Each restart observes the store's
// current state.
func (s *MessageStore) All() iter.Seq[models.Message] {
	return func(yield func(models.Message) bool) {
		s.mu.Lock()
		snapshot := make([]models.Message, len(s.messages))
		copy(snapshot, s.messages)
		s.mu.Unlock()

		for _, m := range snapshot {
			if !yield(m) {
				return
			}
		}
	}
}

// UnreadFromOthers returns copies of every message that is unread and
// not self-authored: the read-acknowledgement candidates.
func (s *MessageStore) UnreadFromOthers() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Message
	for _, m := range s.messages {
		if !m.Read && m.SenderPhone != s.selfPhone {
			out = append(out, m)
		}
	}
	return out
}

// insertLocked places m at its sorted position and reindexes the tail.
func (s *MessageStore) insertLocked(m models.Message) {
	pos := sort.Search(len(s.messages), func(i int) bool {
		return m.Before(s.messages[i])
	})
	s.messages = append(s.messages, models.Message{})
	copy(s.messages[pos+1:], s.messages[pos:])
	s.messages[pos] = m
	for i := pos; i < len(s.messages); i++ {
		s.index[s.messages[i].ID] = i
	}
}

func (s *MessageStore) removeLocked(messageID string) {
	pos, ok := s.index[messageID]
	if !ok {
		return
	}
	delete(s.index, messageID)
	s.messages = append(s.messages[:pos], s.messages[pos+1:]...)
	for i := pos; i < len(s.messages); i++ {
		s.index[s.messages[i].ID] = i
	}
}
