// Package httpapi implements the request/response side of the Whisper
// protocol: hydration fetches, sends, and read acknowledgements.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/whisper-im/whisper/internal/logging"
	"github.com/whisper-im/whisper/internal/models"
)

const defaultTimeout = 15 * time.Second

// TokenSource supplies the bearer token for outbound requests. The
// session satisfies this.
type TokenSource interface {
	Token() string
}

// staticToken adapts a plain string into a TokenSource, used before the
// session exists (Establish itself needs a client).
type staticToken string

func (t staticToken) Token() string { return string(t) }

// StaticToken returns a TokenSource for a fixed token.
func StaticToken(token string) TokenSource { return staticToken(token) }

// Client talks to the Whisper REST endpoints.
type Client struct {
	baseURL string
	tokens  TokenSource
	http    *http.Client
	logger  zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying *http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// NewClient creates a REST client rooted at baseURL.
func NewClient(baseURL string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  logging.Component("httpapi"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CurrentUser resolves the identity behind the session token.
func (c *Client) CurrentUser(ctx context.Context) (models.User, error) {
	var user models.User
	err := c.do(ctx, "fetch current user", http.MethodGet, "/auth/me", nil, &user)
	return user, err
}

// Conversations fetches the full conversation list with embedded
// messages.
func (c *Client) Conversations(ctx context.Context) ([]models.Conversation, error) {
	var conversations []models.Conversation
	err := c.do(ctx, "fetch conversations", http.MethodGet, "/user/getchats", nil, &conversations)
	return conversations, err
}

// Messages fetches all messages of one conversation.
func (c *Client) Messages(ctx context.Context, conversationID string) ([]models.Message, error) {
	var messages []models.Message
	path := fmt.Sprintf("/api/messages/chat/%s", url.PathEscape(conversationID))
	err := c.do(ctx, "fetch messages", http.MethodGet, path, nil, &messages)
	return messages, err
}

// Send posts a new message. The server assigns id and timestamp; the
// returned message replaces the caller's optimistic placeholder.
func (c *Client) Send(ctx context.Context, conversationID, content string) (models.Message, error) {
	var message models.Message
	path := fmt.Sprintf("/api/messages/chat/%s/send", url.PathEscape(conversationID))
	body := map[string]string{"content": content}
	err := c.do(ctx, "send message", http.MethodPost, path, body, &message)
	return message, err
}

// AcknowledgeRead marks a single message as read on the server.
func (c *Client) AcknowledgeRead(ctx context.Context, messageID string) error {
	path := fmt.Sprintf("/api/messages/%s/read", url.PathEscape(messageID))
	return c.do(ctx, "acknowledge read", http.MethodPut, path, nil, nil)
}

// AcknowledgeConversationRead marks every message of a conversation as
// read for the given user in one round-trip.
func (c *Client) AcknowledgeConversationRead(ctx context.Context, conversationID, userPhone string) error {
	path := fmt.Sprintf("/api/messages/chat/%s/mark-read", url.PathEscape(conversationID))
	body := map[string]string{"userPhone": userPhone}
	return c.do(ctx, "acknowledge conversation read", http.MethodPut, path, body, nil)
}

// StartConversation creates (or returns) the conversation with the given
// participant.
func (c *Client) StartConversation(ctx context.Context, otherPhone string) (models.Conversation, error) {
	var conversation models.Conversation
	body := map[string]string{"otherUserPhone": otherPhone}
	err := c.do(ctx, "start conversation", http.MethodPost, "/chats/start", body, &conversation)
	return conversation, err
}

// SearchUsers looks up users by phone number prefix.
func (c *Client) SearchUsers(ctx context.Context, phone string) ([]models.User, error) {
	path := "/user/searchPhone?phoneNumber=" + url.QueryEscape(phone)

	// The endpoint returns either a single object or an array depending
	// on how many users match.
	var raw json.RawMessage
	if err := c.do(ctx, "search users", http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var users []models.User
		if err := json.Unmarshal(trimmed, &users); err != nil {
			return nil, &RequestError{Op: "search users", Err: err}
		}
		return users, nil
	}
	var user models.User
	if err := json.Unmarshal(trimmed, &user); err != nil {
		return nil, &RequestError{Op: "search users", Err: err}
	}
	return []models.User{user}, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &RequestError{Op: op, Err: err}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &RequestError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if token := c.tokens.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &RequestError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Debug().
			Str("op", op).
			Int("status", resp.StatusCode).
			Msg("request failed")
		return &RequestError{Op: op, Status: resp.StatusCode}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &RequestError{Op: op, Err: err}
	}
	return nil
}
