package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/whisper-im/whisper/internal/logging"
)

const (
	defaultDialTimeout      = 10 * time.Second
	defaultWriteWait        = 10 * time.Second
	defaultReconnectInitial = time.Second
	defaultReconnectMax     = 30 * time.Second
	defaultSubscribeBuffer  = 256
)

// TokenSource supplies the bearer token for the connection handshake.
type TokenSource interface {
	Token() string
}

// frame is the wire format in both directions. Outbound frames carry a
// command (subscribe/unsubscribe); inbound frames carry a topic and the
// event payload.
type frame struct {
	Cmd     string          `json:"cmd,omitempty"`
	ID      string          `json:"id,omitempty"`
	Topic   string          `json:"topic,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// WSConfig configures a websocket transport.
type WSConfig struct {
	// URL is the websocket endpoint (ws:// or wss://).
	URL string

	// Tokens supplies the bearer token for the handshake.
	Tokens TokenSource

	// ReconnectInitial is the first backoff delay; doubles per failed
	// attempt up to ReconnectMax.
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration

	// DialTimeout bounds a single dial attempt.
	DialTimeout time.Duration

	// SubscribeBuffer is the per-subscription inbound channel size. A
	// subscription whose buffer is full drops events; the refetch paths
	// heal the gap.
	SubscribeBuffer int
}

// WSTransport is a Transport over one websocket connection. It speaks
// JSON frames and reconnects with bounded exponential backoff, replaying
// all live subscriptions after every reconnect. Each subscription gets a
// buffered channel drained by its own goroutine, so one slow handler
// never stalls the shared read loop or the other subscriptions.
type WSTransport struct {
	cfg    WSConfig
	logger zerolog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	subs    map[string]*subEntry
	closed  bool
	running bool
}

type subEntry struct {
	id      string
	topic   string
	handler Handler
	ch      chan []byte
	once    sync.Once
}

// run drains the subscription's buffer until stop closes it.
func (e *subEntry) run() {
	for payload := range e.ch {
		e.handler(payload)
	}
}

func (e *subEntry) stop() {
	e.once.Do(func() { close(e.ch) })
}

// NewWSTransport creates a websocket transport. Connect must be called
// before events flow.
func NewWSTransport(cfg WSConfig) *WSTransport {
	if cfg.ReconnectInitial <= 0 {
		cfg.ReconnectInitial = defaultReconnectInitial
	}
	if cfg.ReconnectMax < cfg.ReconnectInitial {
		cfg.ReconnectMax = defaultReconnectMax
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.SubscribeBuffer <= 0 {
		cfg.SubscribeBuffer = defaultSubscribeBuffer
	}
	return &WSTransport{
		cfg:    cfg,
		logger: logging.Component("transport"),
		subs:   make(map[string]*subEntry),
	}
}

// Connect dials the server and starts the read loop.
func (t *WSTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrDisconnected
	}
	if t.running {
		return nil
	}

	conn, err := t.dial(ctx)
	if err != nil {
		return fmt.Errorf("connect %s: %w", t.cfg.URL, err)
	}

	t.conn = conn
	t.running = true
	go t.readLoop(conn)

	t.logger.Info().Str("url", t.cfg.URL).Msg("connected")
	return nil
}

// Subscribe registers a handler for one topic and announces the
// subscription to the server.
func (t *WSTransport) Subscribe(topic string, handler Handler) (*Subscription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrDisconnected
	}

	entry := &subEntry{
		id:      uuid.NewString(),
		topic:   topic,
		handler: handler,
		ch:      make(chan []byte, t.cfg.SubscribeBuffer),
	}
	t.subs[entry.id] = entry
	go entry.run()

	if t.conn != nil {
		if err := t.writeFrame(t.conn, frame{Cmd: "subscribe", ID: entry.id, Topic: topic}); err != nil {
			// Keep the entry; the reconnect loop replays it.
			t.logger.Warn().Err(err).Str("topic", topic).Msg("subscribe frame failed, will replay on reconnect")
		}
	}

	return &Subscription{id: entry.id, topic: topic, cancel: t.unsubscribe}, nil
}

// Disconnect closes the connection and drops all subscriptions.
func (t *WSTransport) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	for _, entry := range t.subs {
		entry.stop()
	}
	t.subs = make(map[string]*subEntry)

	if t.conn != nil {
		deadline := time.Now().Add(defaultWriteWait)
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		err := t.conn.Close()
		t.conn = nil
		return err
	}
	return nil
}

func (t *WSTransport) unsubscribe(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.subs[id]
	if !ok {
		return
	}
	delete(t.subs, id)
	entry.stop()

	if t.conn != nil {
		if err := t.writeFrame(t.conn, frame{Cmd: "unsubscribe", ID: id}); err != nil {
			t.logger.Debug().Err(err).Str("topic", entry.topic).Msg("unsubscribe frame failed")
		}
	}
}

func (t *WSTransport) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: t.cfg.DialTimeout}
	header := http.Header{}
	if t.cfg.Tokens != nil {
		if token := t.cfg.Tokens.Token(); token != "" {
			header.Set("Authorization", "Bearer "+token)
		}
	}
	conn, _, err := dialer.DialContext(ctx, t.cfg.URL, header)
	return conn, err
}

func (t *WSTransport) writeFrame(conn *websocket.Conn, f frame) error {
	_ = conn.SetWriteDeadline(time.Now().Add(defaultWriteWait))
	return conn.WriteJSON(f)
}

// readLoop pumps inbound frames until the connection dies, then hands
// off to the reconnect loop unless Disconnect was called.
func (t *WSTransport) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			closed := t.closed
			t.mu.Unlock()
			if closed {
				return
			}
			t.logger.Warn().Err(err).Msg("connection lost")
			t.reconnectLoop()
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			t.logger.Debug().Err(err).Msg("dropping unparseable frame")
			continue
		}
		t.dispatch(f)
	}
}

// dispatch enqueues the frame for every matching subscription. The
// sends happen under the lock, so an entry cannot be stopped between
// the lookup and the send; they never block because the channels are
// buffered and a full buffer drops the event instead.
func (t *WSTransport) dispatch(f frame) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, entry := range t.subs {
		if entry.topic != f.Topic {
			continue
		}
		select {
		case entry.ch <- f.Payload:
		default:
			t.logger.Warn().Str("topic", entry.topic).Msg("subscription buffer full, dropping event")
		}
	}
}

// reconnectLoop redials with exponential backoff and replays every live
// subscription once the connection is back.
func (t *WSTransport) reconnectLoop() {
	backoff := t.cfg.ReconnectInitial

	for {
		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			return
		}
		t.conn = nil
		t.mu.Unlock()

		time.Sleep(backoff)

		ctx, cancel := context.WithTimeout(context.Background(), t.cfg.DialTimeout)
		conn, err := t.dial(ctx)
		cancel()
		if err != nil {
			t.logger.Warn().Err(err).Dur("backoff", backoff).Msg("reconnect failed")
			backoff *= 2
			if backoff > t.cfg.ReconnectMax {
				backoff = t.cfg.ReconnectMax
			}
			continue
		}

		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			_ = conn.Close()
			return
		}
		t.conn = conn
		replayed := 0
		for _, entry := range t.subs {
			if err := t.writeFrame(conn, frame{Cmd: "subscribe", ID: entry.id, Topic: entry.topic}); err != nil {
				t.logger.Warn().Err(err).Str("topic", entry.topic).Msg("subscription replay failed")
				continue
			}
			replayed++
		}
		t.mu.Unlock()

		t.logger.Info().Int("subscriptions", replayed).Msg("reconnected")
		go t.readLoop(conn)
		return
	}
}
