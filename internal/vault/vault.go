// Package vault provides in-memory token and funds collaborators for the
// auction. Used for development and tests; production deployments plug in
// their own settlement rails behind the same interfaces.
package vault

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ErrInsufficientBalance is returned when a transfer exceeds the source balance.
var ErrInsufficientBalance = errors.New("vault: insufficient balance")

// Tokens is an in-memory token ledger. Transfers debit the holder.
type Tokens struct {
	mu       sync.Mutex
	holder   common.Address
	balances map[common.Address]decimal.Decimal
	failure  error
}

// NewTokens creates a token ledger with supply minted to holder.
func NewTokens(holder common.Address, supply decimal.Decimal) *Tokens {
	return &Tokens{
		holder:   holder,
		balances: map[common.Address]decimal.Decimal{holder: supply},
	}
}

// BalanceOf returns addr's balance; zero if unknown.
func (t *Tokens) BalanceOf(_ context.Context, addr common.Address) (decimal.Decimal, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.balances[addr], nil
}

// Transfer moves qty from the holder to to.
func (t *Tokens) Transfer(_ context.Context, to common.Address, qty decimal.Decimal) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.failure != nil {
		return t.failure
	}
	if qty.IsNegative() {
		return fmt.Errorf("vault: negative transfer %s", qty)
	}
	from := t.balances[t.holder]
	if from.LessThan(qty) {
		return fmt.Errorf("%w: holder has %s, need %s", ErrInsufficientBalance, from, qty)
	}
	t.balances[t.holder] = from.Sub(qty)
	t.balances[to] = t.balances[to].Add(qty)
	return nil
}

// Mint credits qty to addr. Used to fund the holder.
func (t *Tokens) Mint(addr common.Address, qty decimal.Decimal) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.balances[addr] = t.balances[addr].Add(qty)
}

// FailWith makes every following transfer fail with err; nil restores normal behavior.
func (t *Tokens) FailWith(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failure = err
}

// Funds records native-currency payouts.
type Funds struct {
	mu      sync.Mutex
	paid    map[common.Address]decimal.Decimal
	failure error
}

// NewFunds creates an empty payout ledger.
func NewFunds() *Funds {
	return &Funds{paid: make(map[common.Address]decimal.Decimal)}
}

// Transfer credits amount to to.
func (f *Funds) Transfer(_ context.Context, to common.Address, amount decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failure != nil {
		return f.failure
	}
	if !amount.IsPositive() {
		return fmt.Errorf("vault: non-positive payout %s", amount)
	}
	f.paid[to] = f.paid[to].Add(amount)
	return nil
}

// PaidTo returns the total paid out to addr.
func (f *Funds) PaidTo(addr common.Address) decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paid[addr]
}

// FailWith makes every following transfer fail with err; nil restores normal behavior.
func (f *Funds) FailWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failure = err
}
