package admission

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/atmx/dutch-auction/internal/model"
)

func d(i int64) decimal.Decimal {
	return decimal.NewFromInt(i)
}

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testLimiter() *Limiter {
	return NewLimiter(model.AuctionConfig{
		MaxDepositPerTx:    d(1000),
		MinDepositInterval: 60,
	})
}

func whitelisted() model.Participant {
	return model.Participant{Whitelisted: true}
}

func TestCheck_WithinLimits(t *testing.T) {
	assert.NoError(t, testLimiter().Check(whitelisted(), d(100), now))
}

func TestCheck_AtMaximumAllowed(t *testing.T) {
	assert.NoError(t, testLimiter().Check(whitelisted(), d(1000), now),
		"deposit equal to per-tx max should pass")
}

func TestCheck_OverMaximum(t *testing.T) {
	assert.ErrorIs(t, testLimiter().Check(whitelisted(), d(1001), now), ErrAmountOutOfRange)
}

func TestCheck_ZeroAndNegative(t *testing.T) {
	for _, amt := range []decimal.Decimal{decimal.Zero, d(-5)} {
		assert.ErrorIs(t, testLimiter().Check(whitelisted(), amt, now), ErrAmountOutOfRange, "amount %s", amt)
	}
}

func TestCheck_FractionalBaseUnit(t *testing.T) {
	for _, s := range []string{"0.5", "100.000001"} {
		amt := decimal.RequireFromString(s)
		assert.ErrorIs(t, testLimiter().Check(whitelisted(), amt, now), ErrAmountOutOfRange, "amount %s", s)
	}
	// Trailing zeros are still whole.
	assert.NoError(t, testLimiter().Check(whitelisted(), decimal.RequireFromString("100.000"), now))
}

func TestCheck_NotWhitelisted(t *testing.T) {
	assert.ErrorIs(t, testLimiter().Check(model.Participant{}, d(100), now), ErrNotWhitelisted)
}

func TestCheck_AmountCheckedBeforeWhitelist(t *testing.T) {
	assert.ErrorIs(t, testLimiter().Check(model.Participant{}, d(0), now), ErrAmountOutOfRange,
		"amount rule should fire first")
}

func TestCheck_FirstDepositNeverRateLimited(t *testing.T) {
	assert.NoError(t, testLimiter().CheckRate(whitelisted(), now))
}

func TestCheck_CooldownNotElapsed(t *testing.T) {
	p := whitelisted()
	p.LastDepositAt = now.Add(-59 * time.Second)

	assert.ErrorIs(t, testLimiter().Check(p, d(100), now), ErrRateLimited)
}

func TestCheck_CooldownExactlyElapsed(t *testing.T) {
	p := whitelisted()
	p.LastDepositAt = now.Add(-60 * time.Second)

	assert.NoError(t, testLimiter().Check(p, d(100), now), "cooldown boundary should pass")
}

func TestNewLimiter_NegativeIntervalClamped(t *testing.T) {
	l := NewLimiter(model.AuctionConfig{MaxDepositPerTx: d(1), MinDepositInterval: -10})
	assert.Zero(t, l.MinInterval)
}
