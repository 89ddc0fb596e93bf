package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/dutch-auction/internal/model"
)

// fakeRedis implements the subset of redis.Cmdable used by CachedStore.
type fakeRedis struct {
	redis.Cmdable

	mu     sync.Mutex
	data   map[string][]byte
	ttls   map[string]time.Duration
	delErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(string(v), nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value.([]byte)
	f.ttls[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.delErr != nil {
		return redis.NewIntResult(0, f.delErr)
	}
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeRedis) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.data[key]
	return ok
}

// countingStore counts primary reads.
type countingStore struct {
	*MemoryStore
	mu    sync.Mutex
	reads int
}

func (c *countingStore) hit() {
	c.mu.Lock()
	c.reads++
	c.mu.Unlock()
}

func (c *countingStore) GetState(ctx context.Context) (model.AuctionState, error) {
	c.hit()
	return c.MemoryStore.GetState(ctx)
}

func (c *countingStore) GetParticipant(ctx context.Context, addr common.Address) (model.Participant, error) {
	c.hit()
	return c.MemoryStore.GetParticipant(ctx, addr)
}

func TestCachedStore_ReadThrough(t *testing.T) {
	ctx := context.Background()
	primary := &countingStore{MemoryStore: NewMemoryStore()}
	rdb := newFakeRedis()
	s := NewCachedStore(primary, rdb, time.Minute)

	require.NoError(t, primary.Commit(ctx, Mutation{State: &model.AuctionState{
		TotalDeposited: decimal.NewFromInt(500),
	}}))

	st, err := s.GetState(ctx)
	require.NoError(t, err)
	assert.True(t, st.TotalDeposited.Equal(decimal.NewFromInt(500)))
	assert.True(t, rdb.has(stateKey))
	assert.Equal(t, time.Minute, rdb.ttls[stateKey])

	st, err = s.GetState(ctx)
	require.NoError(t, err)
	assert.True(t, st.TotalDeposited.Equal(decimal.NewFromInt(500)))
	assert.Equal(t, 1, primary.reads, "second read should be served from cache")
}

func TestCachedStore_CommitInvalidates(t *testing.T) {
	ctx := context.Background()
	primary := &countingStore{MemoryStore: NewMemoryStore()}
	rdb := newFakeRedis()
	s := NewCachedStore(primary, rdb, time.Minute)

	_, err := s.GetParticipant(ctx, alice)
	require.NoError(t, err)
	_, err = s.GetState(ctx)
	require.NoError(t, err)
	require.True(t, rdb.has(participantKey(alice)))

	err = s.Commit(ctx, Mutation{
		State:        &model.AuctionState{TotalDeposited: decimal.NewFromInt(7)},
		Participants: []model.Participant{{Address: alice, Whitelisted: true}},
	})
	require.NoError(t, err)
	assert.False(t, rdb.has(participantKey(alice)))
	assert.False(t, rdb.has(stateKey))

	p, err := s.GetParticipant(ctx, alice)
	require.NoError(t, err)
	assert.True(t, p.Whitelisted)

	st, err := s.GetState(ctx)
	require.NoError(t, err)
	assert.True(t, st.TotalDeposited.Equal(decimal.NewFromInt(7)))
}

func TestCachedStore_ConfigRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewCachedStore(NewMemoryStore(), newFakeRedis(), time.Minute)

	cfg := model.AuctionConfig{
		StartTime:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		P1:              decimal.RequireFromString("100000000000000000000"),
		P2:              decimal.NewFromInt(10),
		T1:              100,
		T2:              900,
		MaxDepositPerTx: decimal.NewFromInt(1000),
	}
	require.NoError(t, s.Commit(ctx, Mutation{Config: &cfg}))

	// Miss populates, hit decodes the cached JSON.
	for i := 0; i < 2; i++ {
		got, err := s.GetConfig(ctx)
		require.NoError(t, err)
		assert.True(t, got.StartTime.Equal(cfg.StartTime))
		assert.True(t, got.P1.Equal(cfg.P1))
		assert.Equal(t, cfg.T2, got.T2)
	}
}

func TestCachedStore_FailedInvalidationKeepsPrimaryWrite(t *testing.T) {
	ctx := context.Background()
	primary := NewMemoryStore()
	rdb := newFakeRedis()
	s := NewCachedStore(primary, rdb, time.Minute)

	_, err := s.GetParticipant(ctx, alice)
	require.NoError(t, err)
	rdb.delErr = errors.New("redis: connection refused")

	err = s.Commit(ctx, Mutation{Participants: []model.Participant{{Address: alice, Claimed: true}}})
	require.NoError(t, err, "primary write succeeded; invalidation failure is not a commit failure")

	// The cache is stale until TTL; the primary is authoritative.
	cached, err := s.GetParticipant(ctx, alice)
	require.NoError(t, err)
	assert.False(t, cached.Claimed)

	fresh, err := Primary(s).GetParticipant(ctx, alice)
	require.NoError(t, err)
	assert.True(t, fresh.Claimed)
}

func TestPrimary(t *testing.T) {
	mem := NewMemoryStore()
	assert.Same(t, mem, Primary(mem))
	assert.Same(t, mem, Primary(NewCachedStore(mem, newFakeRedis(), time.Minute)))
}
