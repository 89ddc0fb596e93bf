// Package auction implements the reverse Dutch liquidity auction: the
// configuration manager, the deposit ledger and settlement.
//
// Every operation is serialized by one mutex on Service. The phase is never
// stored; it is recomputed on each call from the clock, the configuration,
// the aggregate total and the live token supply. The only latched value is
// the settlement price, captured by the first operation that requires the
// closed phase.
package auction

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atmx/dutch-auction/internal/identity"
	"github.com/atmx/dutch-auction/internal/metrics"
	"github.com/atmx/dutch-auction/internal/model"
	"github.com/atmx/dutch-auction/internal/pricing"
	"github.com/atmx/dutch-auction/internal/store"
)

// Deps wires a Service to its collaborators.
type Deps struct {
	Store  store.Store
	Assets AssetHolder
	Funds  FundsTransfer

	// Owner is the single configuring identity.
	Owner common.Address

	// Holder is the identity whose token balance is the available supply.
	Holder common.Address

	// Clock defaults to SystemClock.
	Clock Clock

	// Publisher is optional; it receives events after they are persisted.
	Publisher Publisher
}

// Service owns the auction aggregate. Uses a mutex for serialized
// execution (single-instance). For horizontal scaling, replace with
// distributed locking or database-level optimistic concurrency.
type Service struct {
	store     store.Store
	primary   store.Store
	assets    AssetHolder
	funds     FundsTransfer
	authority identity.Authority
	holder    common.Address
	clock     Clock
	publisher Publisher
	mu        sync.Mutex
}

// NewService creates a new auction service.
func NewService(deps Deps) *Service {
	clock := deps.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	return &Service{
		store:     deps.Store,
		primary:   store.Primary(deps.Store),
		assets:    deps.Assets,
		funds:     deps.Funds,
		authority: identity.Authority{Owner: deps.Owner},
		holder:    deps.Holder,
		clock:     clock,
		publisher: deps.Publisher,
	}
}

// Owner returns the configuring identity.
func (s *Service) Owner() common.Address {
	return s.authority.Owner
}

// view is everything a phase decision needs, read at one instant.
type view struct {
	now    time.Time
	cfg    model.AuctionConfig
	state  model.AuctionState
	supply decimal.Decimal
}

func (v view) price() decimal.Decimal {
	return pricing.Price(v.now, v.cfg)
}

func (v view) capacity() decimal.Decimal {
	return pricing.Cap(v.now, v.cfg, v.supply)
}

// phase evaluates the lifecycle guards. Closed is reached when the window
// has elapsed or the aggregate total has met the shrinking cap.
func (v view) phase() model.Phase {
	switch {
	case !v.cfg.Configured():
		return model.PhaseUnconfigured
	case v.now.Before(v.cfg.StartTime):
		return model.PhaseScheduled
	case v.state.Finalized:
		return model.PhaseClosed
	case !pricing.Window(v.now, v.cfg):
		return model.PhaseClosed
	case v.state.TotalDeposited.GreaterThanOrEqual(v.capacity()):
		return model.PhaseClosed
	default:
		return model.PhaseAccumulating
	}
}

// load reads the aggregate from the primary store, bypassing any cache.
// Must be called with s.mu held.
func (s *Service) load(ctx context.Context) (view, error) {
	v := view{now: s.clock.Now()}

	var err error
	if v.cfg, err = s.primary.GetConfig(ctx); err != nil {
		return view{}, err
	}
	if v.state, err = s.primary.GetState(ctx); err != nil {
		return view{}, err
	}
	if !v.cfg.Configured() {
		v.supply = decimal.Zero
		return v, nil
	}
	if v.supply, err = s.assets.BalanceOf(ctx, s.holder); err != nil {
		return view{}, fmt.Errorf("read available supply: %w", err)
	}
	return v, nil
}

// finalize latches the settlement price the first time a closed-only
// operation runs. The latched price is the current curve price, raised to
// ceil(total / supply) when needed so that the sum of all truncated claims
// can never exceed the supply. Must be called with s.mu held.
func (s *Service) finalize(ctx context.Context, v *view) error {
	if v.state.Finalized {
		return nil
	}

	price := v.price()
	if v.supply.IsPositive() {
		if floor := pricing.CeilQuo(v.state.TotalDeposited, v.supply); floor.GreaterThan(price) {
			price = floor
		}
	}

	next := v.state
	next.Finalized = true
	next.FinalPrice = price

	ev := s.newEvent(model.EventAuctionClosed, common.Address{}, v.state.TotalDeposited, price, v.now)
	if err := s.store.Commit(ctx, store.Mutation{State: &next, Events: []model.Event{ev}}); err != nil {
		return fmt.Errorf("latch final price: %w", err)
	}
	v.state = next

	metrics.CurrentPrice.Set(price.InexactFloat64())
	slog.Info("auction closed",
		"final_price", price.String(),
		"total_deposited", v.state.TotalDeposited.String(),
		"supply", v.supply.String(),
	)
	s.publish(ev)
	return nil
}

func (s *Service) newEvent(typ model.EventType, who common.Address, amount, price decimal.Decimal, at time.Time) model.Event {
	return model.Event{
		ID:          uuid.New().String(),
		Type:        typ,
		Participant: who,
		Amount:      amount,
		Price:       price,
		Timestamp:   at,
	}
}

func (s *Service) publish(events ...model.Event) {
	if s.publisher == nil {
		return
	}
	for _, e := range events {
		s.publisher.Publish(e)
	}
}

func (s *Service) requireOwner(caller common.Address) error {
	if !s.authority.IsOwner(caller) {
		return fmt.Errorf("%w: %s is not the configuring identity", ErrUnauthorized, caller.Hex())
	}
	return nil
}
