package store

import (
	"context"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/atmx/dutch-auction/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu           sync.RWMutex
	config       model.AuctionConfig
	state        model.AuctionState
	participants map[common.Address]model.Participant
	events       []model.Event
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		participants: make(map[common.Address]model.Participant),
	}
}

func (s *MemoryStore) GetConfig(_ context.Context) (model.AuctionConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config, nil
}

func (s *MemoryStore) GetState(_ context.Context) (model.AuctionState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state, nil
}

func (s *MemoryStore) GetParticipant(_ context.Context, addr common.Address) (model.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.participants[addr]
	if !ok {
		return model.Participant{Address: addr}, nil
	}
	return p, nil
}

func (s *MemoryStore) ListParticipants(_ context.Context) ([]model.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Participant, 0, len(s.participants))
	for _, p := range s.participants {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Address.Cmp(out[j].Address) < 0
	})
	return out, nil
}

// Commit applies the mutation under a single write lock. Values are
// stored by copy so callers cannot mutate stored state afterwards.
func (s *MemoryStore) Commit(_ context.Context, m Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.Config != nil {
		s.config = *m.Config
	}
	if m.State != nil {
		s.state = *m.State
	}
	for _, p := range m.Participants {
		s.participants[p.Address] = p
	}
	s.events = append(s.events, m.Events...)
	return nil
}

func (s *MemoryStore) ListEvents(_ context.Context) ([]model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Event, len(s.events))
	copy(out, s.events)
	return out, nil
}

func (s *MemoryStore) ListEventsByParticipant(_ context.Context, addr common.Address) ([]model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Event
	for _, e := range s.events {
		if e.Participant == addr {
			result = append(result, e)
		}
	}
	return result, nil
}
