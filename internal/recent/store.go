package recent

import (
	"sync"

	"scangate/internal/model"
)

// Store keeps a bounded ring of the most recent toggle actions for the
// kiosk display.
type Store struct {
	mu    sync.RWMutex
	buf   []model.RecentAction
	limit int
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 50
	}
	return &Store{limit: limit}
}

func (s *Store) Add(action model.RecentAction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buf) < s.limit {
		s.buf = append(s.buf, action)
		return
	}
	copy(s.buf, s.buf[1:])
	s.buf[len(s.buf)-1] = action
}

// Latest returns the most recent action, if any.
func (s *Store) Latest() (model.RecentAction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.buf) == 0 {
		return model.RecentAction{}, false
	}
	return s.buf[len(s.buf)-1], true
}

// List returns up to limit actions, newest last.
func (s *Store) List(limit int) []model.RecentAction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.buf) {
		limit = len(s.buf)
	}
	out := make([]model.RecentAction, 0, limit)
	start := len(s.buf) - limit
	for i := start; i < len(s.buf); i++ {
		out = append(out, s.buf[i])
	}
	return out
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = nil
}
