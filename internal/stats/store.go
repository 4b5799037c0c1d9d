package stats

import (
	"sync"
	"time"

	"scangate/internal/model"
)

// Counters aggregates gate decisions and toggle outcomes for one station
// since start or last clear.
type Counters struct {
	Detections     int                        `json:"detections"`
	Accepted       int                        `json:"accepted"`
	Rejected       map[model.RejectReason]int `json:"rejected"`
	DecodeFailures int                        `json:"decode_failures"`
	Checkins       int                        `json:"checkins"`
	Checkouts      int                        `json:"checkouts"`
	ToggleFailures int                        `json:"toggle_failures"`
	UpdatedAt      time.Time                  `json:"updated_at"`
}

type Store struct {
	mu sync.RWMutex
	c  Counters
}

func NewStore() *Store {
	return &Store{c: Counters{Rejected: make(map[model.RejectReason]int)}}
}

func (s *Store) Detection() {
	s.mu.Lock()
	s.c.Detections++
	s.c.UpdatedAt = time.Now().UTC()
	s.mu.Unlock()
}

func (s *Store) Accepted() {
	s.mu.Lock()
	s.c.Accepted++
	s.c.UpdatedAt = time.Now().UTC()
	s.mu.Unlock()
}

func (s *Store) Rejected(reason model.RejectReason) {
	s.mu.Lock()
	s.c.Rejected[reason]++
	s.c.UpdatedAt = time.Now().UTC()
	s.mu.Unlock()
}

func (s *Store) DecodeFailure() {
	s.mu.Lock()
	s.c.DecodeFailures++
	s.c.UpdatedAt = time.Now().UTC()
	s.mu.Unlock()
}

func (s *Store) Toggled(action model.Action) {
	s.mu.Lock()
	switch action {
	case model.ActionCheckin:
		s.c.Checkins++
	case model.ActionCheckout:
		s.c.Checkouts++
	}
	s.c.UpdatedAt = time.Now().UTC()
	s.mu.Unlock()
}

func (s *Store) ToggleFailure() {
	s.mu.Lock()
	s.c.ToggleFailures++
	s.c.UpdatedAt = time.Now().UTC()
	s.mu.Unlock()
}

func (s *Store) Snapshot() Counters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.c
	out.Rejected = make(map[model.RejectReason]int, len(s.c.Rejected))
	for k, v := range s.c.Rejected {
		out.Rejected[k] = v
	}
	return out
}

func (s *Store) Clear() {
	s.mu.Lock()
	s.c = Counters{Rejected: make(map[model.RejectReason]int)}
	s.mu.Unlock()
}
