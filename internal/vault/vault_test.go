package vault

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	holder = common.HexToAddress("0x9999999999999999999999999999999999999999")
	alice  = common.HexToAddress("0x1111111111111111111111111111111111111111")
)

func TestTokens_Transfer(t *testing.T) {
	ctx := context.Background()
	tok := NewTokens(holder, decimal.NewFromInt(1000))

	require.NoError(t, tok.Transfer(ctx, alice, decimal.NewFromInt(300)))

	h, _ := tok.BalanceOf(ctx, holder)
	a, _ := tok.BalanceOf(ctx, alice)
	assert.True(t, h.Equal(decimal.NewFromInt(700)), "holder balance = %s, want 700", h)
	assert.True(t, a.Equal(decimal.NewFromInt(300)), "alice balance = %s, want 300", a)
}

func TestTokens_InsufficientBalance(t *testing.T) {
	tok := NewTokens(holder, decimal.NewFromInt(10))

	err := tok.Transfer(context.Background(), alice, decimal.NewFromInt(11))
	assert.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestTokens_FailWith(t *testing.T) {
	tok := NewTokens(holder, decimal.NewFromInt(10))
	boom := errors.New("rail down")
	tok.FailWith(boom)

	assert.ErrorIs(t, tok.Transfer(context.Background(), alice, decimal.NewFromInt(1)), boom)

	tok.FailWith(nil)
	assert.NoError(t, tok.Transfer(context.Background(), alice, decimal.NewFromInt(1)), "expected recovery")
}

func TestFunds_Transfer(t *testing.T) {
	f := NewFunds()
	require.NoError(t, f.Transfer(context.Background(), alice, decimal.NewFromInt(5)))
	assert.Error(t, f.Transfer(context.Background(), alice, decimal.Zero), "zero payout should fail")
	got := f.PaidTo(alice)
	assert.True(t, got.Equal(decimal.NewFromInt(5)), "paid = %s, want 5", got)
}
