package auction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/atmx/dutch-auction/internal/admission"
	"github.com/atmx/dutch-auction/internal/metrics"
	"github.com/atmx/dutch-auction/internal/model"
	"github.com/atmx/dutch-auction/internal/pricing"
	"github.com/atmx/dutch-auction/internal/store"
)

// DepositReceipt describes an accepted deposit.
type DepositReceipt struct {
	EventID        string            `json:"event_id"`
	Participant    model.Participant `json:"participant"`
	Amount         decimal.Decimal   `json:"amount"`
	Price          decimal.Decimal   `json:"price"`
	Cap            decimal.Decimal   `json:"cap"`
	TotalDeposited decimal.Decimal   `json:"total_deposited"`
	LatestPrice    decimal.Decimal   `json:"latest_price"`
}

// Settlement describes a successful claim.
type Settlement struct {
	EventID     string          `json:"event_id"`
	Participant common.Address  `json:"participant"`
	Deposited   decimal.Decimal `json:"deposited"`
	FinalPrice  decimal.Decimal `json:"final_price"`
	Tokens      decimal.Decimal `json:"tokens"`
}

// Withdrawal describes a successful proceeds payout.
type Withdrawal struct {
	EventID string          `json:"event_id"`
	To      common.Address  `json:"to"`
	Amount  decimal.Decimal `json:"amount"`
}

// Deposit admits amount from caller. The caller attaches the funds with the
// call; on success they are added to the collected balance.
func (s *Service) Deposit(ctx context.Context, caller common.Address, amount decimal.Decimal) (*DepositReceipt, error) {
	start := time.Now()
	receipt, err := s.deposit(ctx, caller, amount)
	if err != nil {
		metrics.DepositRejections.WithLabelValues(rejectionReason(err)).Inc()
		return nil, err
	}
	metrics.DepositsTotal.Inc()
	metrics.DepositLatency.Observe(time.Since(start).Seconds())
	return receipt, nil
}

func (s *Service) deposit(ctx context.Context, caller common.Address, amount decimal.Decimal) (*DepositReceipt, error) {
	// Serialize deposits so no two read the same stale total.
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	if phase := v.phase(); phase != model.PhaseAccumulating {
		return nil, fmt.Errorf("%w: auction is %s", ErrNotInAccumulatingPhase, phase)
	}
	if s.authority.IsOwner(caller) {
		return nil, fmt.Errorf("%w: configuring identity cannot deposit", ErrUnauthorized)
	}

	p, err := s.primary.GetParticipant(ctx, caller)
	if err != nil {
		return nil, err
	}
	if err := admission.NewLimiter(v.cfg).Check(p, amount, v.now); err != nil {
		return nil, err
	}

	// Strict: reaching the cap exactly closes the auction, it is not a valid deposit.
	price := v.price()
	capacity := v.capacity()
	newTotal := v.state.TotalDeposited.Add(amount)
	if !newTotal.LessThan(capacity) {
		return nil, fmt.Errorf("%w: total %s + %s >= cap %s",
			ErrCapExceeded, v.state.TotalDeposited, amount, capacity)
	}
	if !v.supply.IsPositive() {
		return nil, fmt.Errorf("%w: available supply is zero", ErrDivisionByZero)
	}

	p.TotalDeposited = p.TotalDeposited.Add(amount)
	p.LastDepositAt = v.now

	next := v.state
	next.TotalDeposited = newTotal
	next.FundsBalance = next.FundsBalance.Add(amount)
	next.LatestPrice = pricing.Quo(newTotal, v.supply)

	ev := s.newEvent(model.EventDepositAccepted, caller, amount, price, v.now)
	err = s.store.Commit(ctx, store.Mutation{
		State:        &next,
		Participants: []model.Participant{p},
		Events:       []model.Event{ev},
	})
	if err != nil {
		return nil, fmt.Errorf("record deposit: %w", err)
	}

	metrics.CurrentPrice.Set(price.InexactFloat64())
	metrics.TotalDeposited.Set(newTotal.InexactFloat64())
	slog.Info("deposit accepted",
		"event_id", ev.ID,
		"participant", caller.Hex(),
		"amount", amount.String(),
		"price", price.String(),
		"cap", capacity.String(),
		"total_deposited", newTotal.String(),
	)
	s.publish(ev)

	return &DepositReceipt{
		EventID:        ev.ID,
		Participant:    p,
		Amount:         amount,
		Price:          price,
		Cap:            capacity,
		TotalDeposited: newTotal,
		LatestPrice:    next.LatestPrice,
	}, nil
}

// ClaimSettlement pays caller deposited / finalPrice tokens, once.
// The claim is recorded before the token transfer; a failed transfer
// restores the previous record.
func (s *Service) ClaimSettlement(ctx context.Context, caller common.Address) (*Settlement, error) {
	settlement, err := s.claim(ctx, caller)
	switch {
	case err == nil:
		metrics.ClaimsTotal.WithLabelValues("claimed").Inc()
	case errors.Is(err, ErrTransferFailed):
		metrics.ClaimsTotal.WithLabelValues("transfer_failed").Inc()
	default:
		metrics.ClaimsTotal.WithLabelValues("rejected").Inc()
	}
	return settlement, err
}

func (s *Service) claim(ctx context.Context, caller common.Address) (*Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	if phase := v.phase(); phase != model.PhaseClosed {
		return nil, fmt.Errorf("%w: auction is %s", ErrNotInClosedPhase, phase)
	}
	if err := s.finalize(ctx, &v); err != nil {
		return nil, err
	}

	p, err := s.primary.GetParticipant(ctx, caller)
	if err != nil {
		return nil, err
	}
	if !p.Whitelisted || !p.TotalDeposited.IsPositive() {
		return nil, ErrNothingToClaim
	}
	if p.Claimed {
		return nil, ErrAlreadyClaimed
	}
	if !v.state.FinalPrice.IsPositive() {
		return nil, fmt.Errorf("%w: final price is zero", ErrDivisionByZero)
	}

	// Fractional remainders are forfeited.
	tokens := pricing.Quo(p.TotalDeposited, v.state.FinalPrice)
	if !tokens.IsPositive() {
		return nil, fmt.Errorf("%w: deposit %s is below final price %s",
			ErrNothingToClaim, p.TotalDeposited, v.state.FinalPrice)
	}

	prev := p
	p.Claimed = true
	p.ClaimedTokens = tokens
	if err := s.store.Commit(ctx, store.Mutation{Participants: []model.Participant{p}}); err != nil {
		return nil, fmt.Errorf("record claim: %w", err)
	}

	if err := s.assets.Transfer(ctx, caller, tokens); err != nil {
		if rbErr := s.store.Commit(ctx, store.Mutation{Participants: []model.Participant{prev}}); rbErr != nil {
			slog.Error("claim rollback failed", "participant", caller.Hex(), "err", rbErr)
			return nil, errors.Join(fmt.Errorf("%w: %v", ErrTransferFailed, err), rbErr)
		}
		slog.Warn("token transfer failed, claim rolled back", "participant", caller.Hex(), "err", err)
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	ev := s.newEvent(model.EventSettlementClaimed, caller, tokens, v.state.FinalPrice, v.now)
	if err := s.store.Commit(ctx, store.Mutation{Events: []model.Event{ev}}); err != nil {
		// Tokens already moved; the claim itself stands.
		slog.Error("record claim event failed", "participant", caller.Hex(), "err", err)
	}

	slog.Info("settlement claimed",
		"event_id", ev.ID,
		"participant", caller.Hex(),
		"deposited", p.TotalDeposited.String(),
		"final_price", v.state.FinalPrice.String(),
		"tokens", tokens.String(),
	)
	s.publish(ev)

	return &Settlement{
		EventID:     ev.ID,
		Participant: caller,
		Deposited:   p.TotalDeposited,
		FinalPrice:  v.state.FinalPrice,
		Tokens:      tokens,
	}, nil
}

// WithdrawProceeds moves the whole collected balance to the payout address.
// Owner only, closed phase only.
func (s *Service) WithdrawProceeds(ctx context.Context, caller common.Address) (*Withdrawal, error) {
	w, err := s.withdraw(ctx, caller)
	switch {
	case err == nil:
		metrics.WithdrawalsTotal.WithLabelValues("withdrawn").Inc()
	case errors.Is(err, ErrTransferFailed):
		metrics.WithdrawalsTotal.WithLabelValues("transfer_failed").Inc()
	default:
		metrics.WithdrawalsTotal.WithLabelValues("rejected").Inc()
	}
	return w, err
}

func (s *Service) withdraw(ctx context.Context, caller common.Address) (*Withdrawal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireOwner(caller); err != nil {
		return nil, err
	}

	v, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	if phase := v.phase(); phase != model.PhaseClosed {
		return nil, fmt.Errorf("%w: auction is %s", ErrNotInClosedPhase, phase)
	}
	if err := s.finalize(ctx, &v); err != nil {
		return nil, err
	}

	amount := v.state.FundsBalance
	if !amount.IsPositive() {
		return nil, ErrNothingToWithdraw
	}
	to := v.state.PayoutAddress
	if to == (common.Address{}) {
		return nil, fmt.Errorf("%w: payout address not set", ErrInvalidParticipant)
	}

	prev := v.state
	next := v.state
	next.FundsBalance = decimal.Zero
	if err := s.store.Commit(ctx, store.Mutation{State: &next}); err != nil {
		return nil, fmt.Errorf("record withdrawal: %w", err)
	}

	if err := s.funds.Transfer(ctx, to, amount); err != nil {
		if rbErr := s.store.Commit(ctx, store.Mutation{State: &prev}); rbErr != nil {
			slog.Error("withdrawal rollback failed", "err", rbErr)
			return nil, errors.Join(fmt.Errorf("%w: %v", ErrTransferFailed, err), rbErr)
		}
		slog.Warn("funds transfer failed, withdrawal rolled back", "to", to.Hex(), "err", err)
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	ev := s.newEvent(model.EventProceedsWithdrawn, to, amount, v.state.FinalPrice, v.now)
	if err := s.store.Commit(ctx, store.Mutation{Events: []model.Event{ev}}); err != nil {
		slog.Error("record withdrawal event failed", "err", err)
	}

	slog.Info("proceeds withdrawn", "event_id", ev.ID, "to", to.Hex(), "amount", amount.String())
	s.publish(ev)

	return &Withdrawal{EventID: ev.ID, To: to, Amount: amount}, nil
}

// --- Read accessors ---

// Phase returns the lifecycle phase at the current instant.
func (s *Service) Phase(ctx context.Context) (model.Phase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.load(ctx)
	if err != nil {
		return "", err
	}
	return v.phase(), nil
}

// CurrentPrice returns the curve price now. Zero outside the window.
func (s *Service) CurrentPrice(ctx context.Context) (decimal.Decimal, error) {
	cfg, err := s.store.GetConfig(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return pricing.Price(s.clock.Now(), cfg), nil
}

// CurrentCap returns price × available supply now.
func (s *Service) CurrentCap(ctx context.Context) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.load(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return v.capacity(), nil
}

// TotalDeposited returns the aggregate accepted deposits.
func (s *Service) TotalDeposited(ctx context.Context) (decimal.Decimal, error) {
	st, err := s.store.GetState(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return st.TotalDeposited, nil
}

// LatestPrice returns the informational running price total / supply.
func (s *Service) LatestPrice(ctx context.Context) (decimal.Decimal, error) {
	st, err := s.store.GetState(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return st.LatestPrice, nil
}

// FinalPrice returns the settlement price, latching it on first call after
// close. Fails with ErrNotInClosedPhase before that.
func (s *Service) FinalPrice(ctx context.Context) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.load(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	if phase := v.phase(); phase != model.PhaseClosed {
		return decimal.Zero, fmt.Errorf("%w: auction is %s", ErrNotInClosedPhase, phase)
	}
	if err := s.finalize(ctx, &v); err != nil {
		return decimal.Zero, err
	}
	return v.state.FinalPrice, nil
}

// Snapshot returns a consistent view of the whole auction. It never
// latches the final price.
func (s *Service) Snapshot(ctx context.Context) (model.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.load(ctx)
	if err != nil {
		return model.Snapshot{}, err
	}
	phase1End, end := pricing.Schedule(v.cfg)
	return model.Snapshot{
		Phase:          v.phase(),
		Now:            v.now,
		Config:         v.cfg,
		Phase1End:      phase1End,
		EndTime:        end,
		CurrentPrice:   v.price(),
		CurrentCap:     v.capacity(),
		Supply:         v.supply,
		TotalDeposited: v.state.TotalDeposited,
		LatestPrice:    v.state.LatestPrice,
		FundsBalance:   v.state.FundsBalance,
		PayoutAddress:  v.state.PayoutAddress,
		Finalized:      v.state.Finalized,
		FinalPrice:     v.state.FinalPrice,
	}, nil
}

// Events returns the event log, optionally filtered to one participant.
func (s *Service) Events(ctx context.Context, who *common.Address) ([]model.Event, error) {
	if who != nil {
		return s.store.ListEventsByParticipant(ctx, *who)
	}
	return s.store.ListEvents(ctx)
}

// rejectionReason labels a deposit error for metrics.
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrNotInAccumulatingPhase):
		return "phase"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, admission.ErrAmountOutOfRange):
		return "amount"
	case errors.Is(err, admission.ErrNotWhitelisted):
		return "whitelist"
	case errors.Is(err, admission.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrCapExceeded):
		return "cap"
	default:
		return "error"
	}
}
