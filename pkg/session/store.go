package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
)

type Factory func(id uuid.UUID) *Session

// Sessions keyed by their id, idle ones are reaped
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	factory  Factory
	idle     time.Duration
	logger   *slog.Logger
}

func NewStore(factory Factory, idle time.Duration, parent_logger *slog.Logger) *Store {
	return &Store{
		sessions: make(map[string]*Session),
		factory:  factory,
		idle:     idle,
		logger:   parent_logger.With("coroutine", "sessions"),
	}
}

// Touches the session it returns
func (st *Store) Get(id string) (*Session, bool) {
	st.mu.Lock()
	s, ok := st.sessions[id]
	st.mu.Unlock()
	if ok {
		s.Touch()
	}
	return s, ok
}

func (st *Store) Create() *Session {
	s := st.factory(uuid.New())
	st.mu.Lock()
	st.sessions[s.Id()] = s
	total := len(st.sessions)
	st.mu.Unlock()
	st.logger.Info("Session created", "session", s.Id(), "total", total)
	return s
}

// Closes and forgets every session idle for longer than the timeout
func (st *Store) Reap(now time.Time) []string {
	st.mu.Lock()
	var reaped []*Session
	for id, s := range st.sessions {
		if s.Idle(now, st.idle) {
			reaped = append(reaped, s)
			delete(st.sessions, id)
		}
	}
	st.mu.Unlock()

	ids := make([]string, 0, len(reaped))
	for _, s := range reaped {
		if err := s.Close(); err != nil {
			st.logger.Warn("Can't close session", "session", s.Id(), "error", err)
		}
		ids = append(ids, s.Id())
	}
	if len(ids) > 0 {
		st.logger.Info("Sessions reaped", "count", len(ids))
	}
	return ids
}

func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

func (st *Store) Close() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	var err error
	for id, s := range st.sessions {
		err = multierr.Append(err, s.Close())
		delete(st.sessions, id)
	}
	return err
}
