package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/atmx/dutch-auction/internal/metrics"
	"github.com/atmx/dutch-auction/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
//
// Cached reads may be stale for up to the TTL when an invalidation fails.
// Read-modify-write paths must read through Primary instead.
type CachedStore struct {
	primary Store
	rdb     redis.Cmdable
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb redis.Cmdable, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) Commit(ctx context.Context, m Mutation) error {
	if err := s.primary.Commit(ctx, m); err != nil {
		return err
	}

	var keys []string
	if m.Config != nil {
		keys = append(keys, configKey)
	}
	if m.State != nil {
		keys = append(keys, stateKey)
	}
	for _, p := range m.Participants {
		keys = append(keys, participantKey(p.Address))
	}
	if len(keys) == 0 {
		return nil
	}
	// Invalidate; next read will re-populate. The primary write already
	// succeeded, so a failed delete is reported but does not undo it.
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		slog.Warn("cache invalidation failed", "keys", keys, "err", err)
		metrics.CacheInvalidationFailures.Inc()
	}
	return nil
}

// Primary returns the store this cache fronts.
func (s *CachedStore) Primary() Store { return s.primary }

// --- Read-through (check cache first) ---

func (s *CachedStore) GetConfig(ctx context.Context) (model.AuctionConfig, error) {
	var c model.AuctionConfig
	if s.load(ctx, configKey, &c) {
		return c, nil
	}

	c, err := s.primary.GetConfig(ctx)
	if err != nil {
		return model.AuctionConfig{}, err
	}
	s.store(ctx, configKey, c)
	return c, nil
}

func (s *CachedStore) GetState(ctx context.Context) (model.AuctionState, error) {
	var st model.AuctionState
	if s.load(ctx, stateKey, &st) {
		return st, nil
	}

	st, err := s.primary.GetState(ctx)
	if err != nil {
		return model.AuctionState{}, err
	}
	s.store(ctx, stateKey, st)
	return st, nil
}

func (s *CachedStore) GetParticipant(ctx context.Context, addr common.Address) (model.Participant, error) {
	var p model.Participant
	if s.load(ctx, participantKey(addr), &p) {
		return p, nil
	}

	p, err := s.primary.GetParticipant(ctx, addr)
	if err != nil {
		return model.Participant{}, err
	}
	s.store(ctx, participantKey(addr), p)
	return p, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListParticipants(ctx context.Context) ([]model.Participant, error) {
	return s.primary.ListParticipants(ctx)
}

func (s *CachedStore) ListEvents(ctx context.Context) ([]model.Event, error) {
	return s.primary.ListEvents(ctx)
}

func (s *CachedStore) ListEventsByParticipant(ctx context.Context, addr common.Address) ([]model.Event, error) {
	return s.primary.ListEventsByParticipant(ctx, addr)
}

// --- Cache helpers ---

func (s *CachedStore) load(ctx context.Context, key string, dst any) bool {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, dst) == nil
}

func (s *CachedStore) store(ctx context.Context, key string, v any) {
	if data, err := json.Marshal(v); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
}

const (
	configKey = "auction:config"
	stateKey  = "auction:state"
)

func participantKey(addr common.Address) string { return fmt.Sprintf("participant:%s", addr.Hex()) }
