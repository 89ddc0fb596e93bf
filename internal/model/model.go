// Package model defines the core domain types shared across the auction engine.
// All monetary values use shopspring/decimal — never float64 for money.
// Amounts are integers in 18-decimal base units (wei-style).
package model

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// AuctionConfig holds the auction parameters. Immutable once the auction
// starts; a zero StartTime means the auction is not configured yet.
type AuctionConfig struct {
	StartTime          time.Time       `json:"start_time"`
	P1                 decimal.Decimal `json:"p1"` // opening price
	P2                 decimal.Decimal `json:"p2"` // price at end of phase 1
	T1                 int64           `json:"t1"` // phase 1 length, seconds
	T2                 int64           `json:"t2"` // phase 2 length, seconds
	MaxDepositPerTx    decimal.Decimal `json:"max_deposit_per_tx"`
	MinDepositInterval int64           `json:"min_deposit_interval"` // seconds
}

// Configured reports whether a start time has been set.
func (c AuctionConfig) Configured() bool {
	return !c.StartTime.IsZero()
}

// EndTime is the instant after which the price is zero.
func (c AuctionConfig) EndTime() time.Time {
	return c.StartTime.Add(time.Duration(c.T1+c.T2) * time.Second)
}

// Participant is the per-address record. Created lazily: an address that
// was never whitelisted or seen reads as the zero record.
type Participant struct {
	Address        common.Address  `json:"address"`
	Whitelisted    bool            `json:"whitelisted"`
	TotalDeposited decimal.Decimal `json:"total_deposited"`
	LastDepositAt  time.Time       `json:"last_deposit_at"`
	Claimed        bool            `json:"claimed"`
	ClaimedTokens  decimal.Decimal `json:"claimed_tokens"`
}

// AuctionState is the single process-wide aggregate.
type AuctionState struct {
	TotalDeposited decimal.Decimal `json:"total_deposited"`
	FundsBalance   decimal.Decimal `json:"funds_balance"` // deposits not yet withdrawn
	LatestPrice    decimal.Decimal `json:"latest_price"`  // informational: total / supply
	PayoutAddress  common.Address  `json:"payout_address"`
	Finalized      bool            `json:"finalized"`
	FinalPrice     decimal.Decimal `json:"final_price"` // valid only when Finalized
}

// Phase is the lifecycle position of the auction. Always recomputed, never stored.
type Phase string

const (
	PhaseUnconfigured Phase = "unconfigured"
	PhaseScheduled    Phase = "scheduled"
	PhaseAccumulating Phase = "accumulating"
	PhaseClosed       Phase = "closed"
)

// EventType names an emitted domain event.
type EventType string

const (
	EventConfigured        EventType = "configured"
	EventWhitelisted       EventType = "whitelisted"
	EventPayoutAddressSet  EventType = "payout_address_set"
	EventDepositAccepted   EventType = "deposit_accepted"
	EventAuctionClosed     EventType = "auction_closed"
	EventSettlementClaimed EventType = "settlement_claimed"
	EventProceedsWithdrawn EventType = "proceeds_withdrawn"
)

// Event is an immutable record of something the auction did.
// Once created, events are never modified or deleted.
type Event struct {
	ID          string          `json:"id" db:"id"`
	Type        EventType       `json:"type" db:"type"`
	Participant common.Address  `json:"participant" db:"participant"`
	Amount      decimal.Decimal `json:"amount" db:"amount"` // funds or tokens, depending on Type
	Price       decimal.Decimal `json:"price" db:"price"`
	Timestamp   time.Time       `json:"timestamp" db:"timestamp"`
}

// Snapshot is the read-side view of the whole auction at one instant.
type Snapshot struct {
	Phase          Phase           `json:"phase"`
	Now            time.Time       `json:"now"`
	Config         AuctionConfig   `json:"config"`
	Phase1End      time.Time       `json:"phase1_end,omitempty"`
	EndTime        time.Time       `json:"end_time,omitempty"`
	CurrentPrice   decimal.Decimal `json:"current_price"`
	CurrentCap     decimal.Decimal `json:"current_cap"`
	Supply         decimal.Decimal `json:"supply"`
	TotalDeposited decimal.Decimal `json:"total_deposited"`
	LatestPrice    decimal.Decimal `json:"latest_price"`
	FundsBalance   decimal.Decimal `json:"funds_balance"`
	PayoutAddress  common.Address  `json:"payout_address"`
	Finalized      bool            `json:"finalized"`
	FinalPrice     decimal.Decimal `json:"final_price"`
}
