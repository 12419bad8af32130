package chat

import (
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/whisper-im/whisper/internal/logging"
)

// Scheduler runs named periodic jobs on independent goroutines. Each job
// gets a Handle so the owning view can stop exactly its own timers on
// teardown while others keep running.
type Scheduler struct {
	logger zerolog.Logger

	mu      sync.Mutex
	handles map[string]*Handle
	nextID  int
}

// Handle controls one running periodic job.
type Handle struct {
	name string
	stop chan struct{}
	once sync.Once
}

// Stop cancels the job. Safe to call more than once; a tick already in
// flight finishes.
func (h *Handle) Stop() {
	h.once.Do(func() { close(h.stop) })
}

// Name returns the job's name.
func (h *Handle) Name() string {
	return h.name
}

// NewScheduler creates an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{
		logger:  logging.Component("scheduler"),
		handles: make(map[string]*Handle),
	}
}

// Every starts fn on a fixed interval. The first run happens after one
// full interval, not immediately; callers wanting an eager first pass
// call fn themselves before scheduling.
func (s *Scheduler) Every(interval time.Duration, name string, fn func()) *Handle {
	h := &Handle{name: name, stop: make(chan struct{})}

	s.mu.Lock()
	s.nextID++
	key := name
	if _, taken := s.handles[key]; taken {
		key = name + "#" + strconv.Itoa(s.nextID)
	}
	s.handles[key] = h
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.handles, key)
			s.mu.Unlock()
		}()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		s.logger.Debug().Str("job", name).Dur("interval", interval).Msg("job started")
		for {
			select {
			case <-h.stop:
				s.logger.Debug().Str("job", name).Msg("job stopped")
				return
			case <-ticker.C:
				fn()
			}
		}
	}()

	return h
}

// StopAll cancels every running job.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	handles := make([]*Handle, 0, len(s.handles))
	for _, h := range s.handles {
		handles = append(handles, h)
	}
	s.mu.Unlock()

	for _, h := range handles {
		h.Stop()
	}
}

// Running returns the number of live jobs.
func (s *Scheduler) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}
