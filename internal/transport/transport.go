// Package transport abstracts the push side of the Whisper protocol: a
// publish/subscribe connection delivering message events by topic. Any
// concrete pub/sub client satisfying Transport is substitutable; the
// default is a websocket client.
package transport

import (
	"context"
	"errors"
)

// ErrDisconnected is returned by operations on a transport after
// Disconnect.
var ErrDisconnected = errors.New("transport disconnected")

// Handler receives the raw JSON payload of one event on a topic.
// Handlers run on a per-subscription goroutine; a handler that blocks
// delays only its own topic, never the connection or other topics.
type Handler func(payload []byte)

// Transport is a pub/sub connection: connect, subscribe by topic, and
// disconnect. Implementations own reconnection; subscriptions survive a
// reconnect.
type Transport interface {
	// Connect establishes the connection using the session token.
	Connect(ctx context.Context) error

	// Subscribe registers a handler for one topic. The returned
	// subscription stays active across reconnects until cancelled.
	Subscribe(topic string, handler Handler) (*Subscription, error)

	// Disconnect tears the connection down and drops all
	// subscriptions. In-flight handler calls may still complete.
	Disconnect() error
}

// Subscription is a cancellable registration on one topic.
type Subscription struct {
	id     string
	topic  string
	cancel func(id string)
}

// NewSubscription builds a subscription handle. Intended for Transport
// implementations, including test doubles.
func NewSubscription(id, topic string, cancel func(id string)) *Subscription {
	return &Subscription{id: id, topic: topic, cancel: cancel}
}

// Topic returns the subscribed topic.
func (s *Subscription) Topic() string {
	return s.topic
}

// Cancel removes the subscription. Safe to call more than once.
func (s *Subscription) Cancel() {
	if s.cancel != nil {
		s.cancel(s.id)
		s.cancel = nil
	}
}

// ConversationTopic is the broadcast topic for one conversation.
func ConversationTopic(conversationID string) string {
	return "/topic/chat/" + conversationID
}

// UserQueue is the point-to-point queue delivering every message
// addressed to the given user, regardless of conversation.
func UserQueue(phone string) string {
	return "/user/" + phone + "/queue/messages"
}

// ErrorQueue carries server-side errors as {content} payloads.
const ErrorQueue = "/user/queue/errors"
