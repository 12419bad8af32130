// Package session holds the identity context for one signed-in user.
// It is constructed once at startup, passed by reference into every
// component, and read-only for all of them.
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/whisper-im/whisper/internal/models"
)

// ErrNotEstablished is returned when a component reads the session
// before Establish succeeded or after Teardown.
var ErrNotEstablished = errors.New("session not established")

// CurrentUserFetcher resolves the identity behind a token. The REST
// client satisfies this.
type CurrentUserFetcher interface {
	CurrentUser(ctx context.Context) (models.User, error)
}

// Session is the process-wide identity context: the auth token plus the
// current user's identity key. Components read it through accessors and
// never mutate it; only Establish and Teardown write.
type Session struct {
	mu          sync.RWMutex
	token       string
	user        models.User
	established bool
}

// New creates a session carrying the given bearer token. The identity is
// unknown until Establish resolves it against the server.
func New(token string) *Session {
	return &Session{token: token}
}

// Establish resolves the current user behind the token. It must complete
// before any store or synchronizer is started.
func (s *Session) Establish(ctx context.Context, api CurrentUserFetcher) error {
	user, err := api.CurrentUser(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = user
	s.established = true
	return nil
}

// Teardown drops the identity. All session-scoped state (stores, timers,
// subscriptions) must already be stopped by the caller.
func (s *Session) Teardown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.user = models.User{}
	s.established = false
}

// Established reports whether Establish has completed.
func (s *Session) Established() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.established
}

// Token returns the bearer token for outbound requests.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Phone returns the current user's identity key.
func (s *Session) Phone() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user.Phone
}

// User returns a copy of the current user's record.
func (s *Session) User() (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.established {
		return models.User{}, ErrNotEstablished
	}
	return s.user, nil
}
