package auction_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/dutch-auction/internal/auction"
	"github.com/atmx/dutch-auction/internal/store"
	"github.com/atmx/dutch-auction/internal/vault"
)

// memRedis is an in-process stand-in for the redis.Cmdable subset that
// CachedStore calls. Deletes fail while delErr is set.
type memRedis struct {
	redis.Cmdable

	mu     sync.Mutex
	data   map[string][]byte
	delErr error
}

func newMemRedis() *memRedis {
	return &memRedis{data: map[string][]byte{}}
}

func (m *memRedis) Get(_ context.Context, key string) *redis.StringCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(string(v), nil)
}

func (m *memRedis) Set(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value.([]byte)
	return redis.NewStatusResult("OK", nil)
}

func (m *memRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.delErr != nil {
		return redis.NewIntResult(0, m.delErr)
	}
	var n int64
	for _, k := range keys {
		if _, ok := m.data[k]; ok {
			delete(m.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (m *memRedis) failDeletes(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delErr = err
}

// newCachedEnv wires the service over CachedStore(MemoryStore) the way the
// server does when REDIS_URL is set.
func newCachedEnv(t *testing.T) (*testEnv, *memRedis) {
	t.Helper()
	rdb := newMemRedis()
	env := &testEnv{
		store:  store.NewMemoryStore(),
		tokens: vault.NewTokens(holder, d(1000)),
		funds:  vault.NewFunds(),
		clock:  &fakeClock{now: start.Add(-time.Hour)},
		events: &recorder{},
	}
	env.svc = auction.NewService(auction.Deps{
		Store:     store.NewCachedStore(env.store, rdb, time.Minute),
		Assets:    env.tokens,
		Funds:     env.funds,
		Owner:     owner,
		Holder:    holder,
		Clock:     env.clock,
		Publisher: env.events,
	})

	ctx := context.Background()
	require.NoError(t, env.svc.Configure(ctx, owner, scenarioConfig()))
	require.NoError(t, env.svc.Whitelist(ctx, owner, alice, bob))
	require.NoError(t, env.svc.SetPayoutAddress(ctx, owner, payout))
	return env, rdb
}

// depositBoth has alice and bob deposit 20000 each at +50 and warms the
// cache with their pre-settlement records.
func depositBoth(t *testing.T, env *testEnv) {
	t.Helper()
	ctx := context.Background()
	env.clock.at(50)
	_, err := env.svc.Deposit(ctx, alice, d(20000))
	require.NoError(t, err)
	_, err = env.svc.Deposit(ctx, bob, d(20000))
	require.NoError(t, err)

	_, err = env.svc.Participant(ctx, alice)
	require.NoError(t, err)
	_, err = env.svc.TotalDeposited(ctx)
	require.NoError(t, err)
}

func TestCachedStore_SettlementWithInvalidation(t *testing.T) {
	ctx := context.Background()
	env, _ := newCachedEnv(t)
	depositBoth(t, env)
	env.clock.at(2000)

	s, err := env.svc.ClaimSettlement(ctx, alice)
	require.NoError(t, err)
	assert.True(t, s.FinalPrice.Equal(d(40)), "final price = %s", s.FinalPrice)
	assert.True(t, s.Tokens.Equal(d(500)), "tokens = %s", s.Tokens)

	p, err := env.svc.Participant(ctx, alice)
	require.NoError(t, err)
	assert.True(t, p.Claimed, "cached read should see the claim after invalidation")

	_, err = env.svc.ClaimSettlement(ctx, alice)
	assert.ErrorIs(t, err, auction.ErrAlreadyClaimed)

	_, err = env.svc.WithdrawProceeds(ctx, owner)
	require.NoError(t, err)
	assert.True(t, env.funds.PaidTo(payout).Equal(d(40000)))
}

func TestCachedStore_SettlementSurvivesFailedInvalidation(t *testing.T) {
	ctx := context.Background()
	env, rdb := newCachedEnv(t)
	depositBoth(t, env)
	env.clock.at(2000)

	rdb.failDeletes(errors.New("redis: connection refused"))

	s, err := env.svc.ClaimSettlement(ctx, alice)
	require.NoError(t, err)
	assert.True(t, s.Tokens.Equal(d(500)), "tokens = %s", s.Tokens)

	// The stale cache must not let the claim or the latch run twice.
	for i := 0; i < 2; i++ {
		_, err = env.svc.ClaimSettlement(ctx, alice)
		assert.ErrorIs(t, err, auction.ErrAlreadyClaimed)
	}
	final, err := env.svc.FinalPrice(ctx)
	require.NoError(t, err)
	assert.True(t, final.Equal(d(40)), "final price = %s", final)

	s, err = env.svc.ClaimSettlement(ctx, bob)
	require.NoError(t, err)
	assert.True(t, s.FinalPrice.Equal(d(40)), "bob final price = %s", s.FinalPrice)
	assert.True(t, s.Tokens.Equal(d(500)), "bob tokens = %s", s.Tokens)

	aliceBal, _ := env.tokens.BalanceOf(ctx, alice)
	holderBal, _ := env.tokens.BalanceOf(ctx, holder)
	assert.True(t, aliceBal.Equal(d(500)), "alice balance = %s", aliceBal)
	assert.True(t, holderBal.IsZero(), "holder balance = %s", holderBal)

	_, err = env.svc.WithdrawProceeds(ctx, owner)
	require.NoError(t, err)
	_, err = env.svc.WithdrawProceeds(ctx, owner)
	assert.ErrorIs(t, err, auction.ErrNothingToWithdraw)
	assert.True(t, env.funds.PaidTo(payout).Equal(d(40000)))
}

func TestCachedStore_DepositsSeeOwnWritesWhenInvalidationFails(t *testing.T) {
	ctx := context.Background()
	env, rdb := newCachedEnv(t)
	env.clock.at(50)

	_, err := env.svc.TotalDeposited(ctx)
	require.NoError(t, err)
	rdb.failDeletes(errors.New("redis: timeout"))

	_, err = env.svc.Deposit(ctx, alice, d(40000))
	require.NoError(t, err)

	// 40000 + 20000 >= cap 55000 even though the cached total still reads 0.
	_, err = env.svc.Deposit(ctx, bob, d(20000))
	assert.ErrorIs(t, err, auction.ErrCapExceeded)

	snap, err := env.svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, snap.TotalDeposited.Equal(d(40000)), "total = %s", snap.TotalDeposited)
}
