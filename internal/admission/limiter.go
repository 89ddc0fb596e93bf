// Package admission implements the per-participant admission rules applied
// to every deposit before the capacity cap is consulted: the per-transaction
// bound, the whitelist gate and the per-participant cooldown.
package admission

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/dutch-auction/internal/model"
)

var (
	// ErrAmountOutOfRange is returned for a zero, negative, fractional or
	// over-limit deposit.
	ErrAmountOutOfRange = errors.New("admission: deposit amount out of range")

	// ErrNotWhitelisted is returned when the participant was never whitelisted.
	ErrNotWhitelisted = errors.New("admission: participant not whitelisted")

	// ErrRateLimited is returned when the participant's cooldown has not elapsed.
	ErrRateLimited = errors.New("admission: deposit cooldown not elapsed")
)

// Limiter enforces the admission rules derived from the auction config.
type Limiter struct {
	// MaxPerTx is the largest single deposit accepted.
	MaxPerTx decimal.Decimal

	// MinInterval is the cooldown between two deposits of one participant.
	MinInterval time.Duration
}

// NewLimiter builds a limiter from the auction configuration.
func NewLimiter(cfg model.AuctionConfig) *Limiter {
	interval := cfg.MinDepositInterval
	if interval < 0 {
		interval = 0
	}
	return &Limiter{
		MaxPerTx:    cfg.MaxDepositPerTx,
		MinInterval: time.Duration(interval) * time.Second,
	}
}

// Check applies every rule in order and returns the first violation.
//
// Parameters:
//   - p: the participant's current record (zero record if never seen)
//   - amount: the deposit being attempted
//   - now: the evaluation instant
func (l *Limiter) Check(p model.Participant, amount decimal.Decimal, now time.Time) error {
	if err := l.CheckAmount(amount); err != nil {
		return err
	}
	if !p.Whitelisted {
		return ErrNotWhitelisted
	}
	return l.CheckRate(p, now)
}

// CheckAmount validates 0 < amount <= MaxPerTx in whole base units.
func (l *Limiter) CheckAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive, got %s", ErrAmountOutOfRange, amount)
	}
	if !amount.IsInteger() {
		return fmt.Errorf("%w: %s is not a whole number of base units", ErrAmountOutOfRange, amount)
	}
	if amount.GreaterThan(l.MaxPerTx) {
		return fmt.Errorf("%w: %s exceeds per-transaction maximum %s",
			ErrAmountOutOfRange, amount, l.MaxPerTx)
	}
	return nil
}

// CheckRate validates that MinInterval has passed since the participant's
// last accepted deposit. A participant who never deposited always passes.
func (l *Limiter) CheckRate(p model.Participant, now time.Time) error {
	if p.LastDepositAt.IsZero() {
		return nil
	}
	if since := now.Sub(p.LastDepositAt); since < l.MinInterval {
		return fmt.Errorf("%w: retry in %s", ErrRateLimited, (l.MinInterval - since).Round(time.Second))
	}
	return nil
}
