package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/dutch-auction/internal/auction"
	"github.com/atmx/dutch-auction/internal/store"
	"github.com/atmx/dutch-auction/internal/vault"
)

type fixedClock time.Time

func (c fixedClock) Now() time.Time { return time.Time(c) }

const bootstrapYAML = `
auction:
  start_in: 10m
  p1: 100
  p2: 10
  t1: 100
  t2: 900
  max_deposit_per_tx: 1000
payout_address: "0x00000000000000000000000000000000000000cc"
whitelist:
  - "0x1111111111111111111111111111111111111111"
`

func TestApplyBootstrap(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	owner := common.HexToAddress("0xaa")
	holder := common.HexToAddress("0xbb")

	svc := auction.NewService(auction.Deps{
		Store:  store.NewMemoryStore(),
		Assets: vault.NewTokens(holder, decimal.NewFromInt(1000)),
		Funds:  vault.NewFunds(),
		Owner:  owner,
		Holder: holder,
		Clock:  fixedClock(now),
	})

	path := filepath.Join(t.TempDir(), "auction.yaml")
	require.NoError(t, os.WriteFile(path, []byte(bootstrapYAML), 0o600))

	require.NoError(t, applyBootstrap(ctx, svc, path, now))

	cfg, err := svc.Config(ctx)
	require.NoError(t, err)
	assert.Equal(t, now.Add(10*time.Minute), cfg.StartTime)

	ok, err := svc.IsWhitelisted(ctx, common.HexToAddress("0x1111111111111111111111111111111111111111"))
	require.NoError(t, err)
	assert.True(t, ok)

	payout, err := svc.PayoutAddress(ctx)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xcc"), payout)

	// A second run leaves the existing configuration alone, even with a
	// file that would no longer validate.
	require.NoError(t, os.WriteFile(path, []byte("auction: {}"), 0o600))
	require.NoError(t, applyBootstrap(ctx, svc, path, now.Add(time.Minute)))

	again, _ := svc.Config(ctx)
	assert.Equal(t, cfg.StartTime, again.StartTime)
}
