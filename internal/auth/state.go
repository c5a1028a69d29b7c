package auth

import (
	"context"
	"sync"
	"time"

	"tmail/internal/biz"
)

var _ biz.StateStore = (*StateStore)(nil)

// StateStore manages issued OAuth state parameters (simple in-memory, one-time use)
type StateStore struct {
	states sync.Map // map[state]time.Time (expiry)
	now    func() time.Time
}

// NewStateStore creates a new state store. Expired states are swept until ctx is done.
func NewStateStore(ctx context.Context) *StateStore {
	store := &StateStore{now: time.Now}
	go store.cleanup(ctx, 5*time.Minute)
	return store
}

// Save stores a state with expiry
func (s *StateStore) Save(state string, ttl time.Duration) {
	s.states.Store(state, s.now().Add(ttl))
}

// Consume checks and deletes a state
func (s *StateStore) Consume(state string) bool {
	if state == "" {
		return false
	}
	val, ok := s.states.LoadAndDelete(state)
	if !ok {
		return false
	}
	return !s.now().After(val.(time.Time))
}

func (s *StateStore) cleanup(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := s.now()
			s.states.Range(func(key, value any) bool {
				if now.After(value.(time.Time)) {
					s.states.Delete(key)
				}
				return true
			})
		}
	}
}
