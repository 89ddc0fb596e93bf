package auction

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/atmx/dutch-auction/internal/identity"
	"github.com/atmx/dutch-auction/internal/model"
	"github.com/atmx/dutch-auction/internal/store"
)

// ValidateConfig checks every parameter constraint against now and reports
// all violations at once.
func ValidateConfig(c model.AuctionConfig, now time.Time) error {
	var violations []string

	if !c.StartTime.After(now) {
		violations = append(violations, "start_time must be in the future")
	}
	if c.P2.IsNegative() {
		violations = append(violations, "p2 must be >= 0")
	}
	if !c.P1.GreaterThan(c.P2) {
		violations = append(violations, "p1 must be greater than p2")
	}
	if c.T1 <= 0 {
		violations = append(violations, "t1 must be > 0")
	}
	if c.T2 <= 0 {
		violations = append(violations, "t2 must be > 0")
	}
	if c.T1 >= c.T2 {
		violations = append(violations, "t1 must be less than t2")
	}
	if !c.MaxDepositPerTx.IsPositive() {
		violations = append(violations, "max_deposit_per_tx must be > 0")
	}
	if c.MinDepositInterval < 0 {
		violations = append(violations, "min_deposit_interval must be >= 0")
	}
	if !c.P1.IsInteger() || !c.P2.IsInteger() || !c.MaxDepositPerTx.IsInteger() {
		violations = append(violations, "prices and limits must be whole base units")
	}

	if len(violations) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfiguration, strings.Join(violations, "; "))
	}
	return nil
}

// started reports whether configuration is locked. An unconfigured auction
// is never locked.
func started(v view) bool {
	return v.cfg.Configured() && !v.now.Before(v.cfg.StartTime)
}

// Configure validates and publishes the auction parameters, replacing any
// prior configuration that has not started yet.
func (s *Service) Configure(ctx context.Context, caller common.Address, params model.AuctionConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireOwner(caller); err != nil {
		return err
	}

	v, err := s.load(ctx)
	if err != nil {
		return err
	}
	if started(v) {
		return fmt.Errorf("%w: auction already started", ErrInvalidConfiguration)
	}
	if err := ValidateConfig(params, v.now); err != nil {
		return err
	}

	params.StartTime = params.StartTime.UTC()
	ev := s.newEvent(model.EventConfigured, caller, params.MaxDepositPerTx, params.P1, v.now)
	if err := s.store.Commit(ctx, store.Mutation{Config: &params, Events: []model.Event{ev}}); err != nil {
		return fmt.Errorf("save configuration: %w", err)
	}

	slog.Info("auction configured",
		"start_time", params.StartTime,
		"p1", params.P1.String(),
		"p2", params.P2.String(),
		"t1", params.T1,
		"t2", params.T2,
		"max_deposit_per_tx", params.MaxDepositPerTx.String(),
		"min_deposit_interval", params.MinDepositInterval,
	)
	s.publish(ev)
	return nil
}

// SetPayoutAddress replaces the proceeds destination. Owner only, before start.
func (s *Service) SetPayoutAddress(ctx context.Context, caller, addr common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireOwner(caller); err != nil {
		return err
	}
	if identity.IsZero(addr) {
		return fmt.Errorf("%w: payout address is the zero address", ErrInvalidParticipant)
	}

	v, err := s.load(ctx)
	if err != nil {
		return err
	}
	if started(v) {
		return fmt.Errorf("%w: auction already started", ErrInvalidConfiguration)
	}

	next := v.state
	next.PayoutAddress = addr
	ev := s.newEvent(model.EventPayoutAddressSet, addr, next.FundsBalance, next.LatestPrice, v.now)
	if err := s.store.Commit(ctx, store.Mutation{State: &next, Events: []model.Event{ev}}); err != nil {
		return fmt.Errorf("save payout address: %w", err)
	}

	slog.Info("payout address set", "address", addr.Hex())
	s.publish(ev)
	return nil
}

// Whitelist admits participants. Owner only, before start. Already
// whitelisted addresses are skipped; the call is all-or-nothing.
func (s *Service) Whitelist(ctx context.Context, caller common.Address, addrs ...common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireOwner(caller); err != nil {
		return err
	}
	if len(addrs) == 0 {
		return fmt.Errorf("%w: no addresses given", ErrInvalidParticipant)
	}
	for _, addr := range addrs {
		if identity.IsZero(addr) {
			return fmt.Errorf("%w: cannot whitelist the zero address", ErrInvalidParticipant)
		}
	}

	v, err := s.load(ctx)
	if err != nil {
		return err
	}
	if started(v) {
		return fmt.Errorf("%w: auction already started", ErrInvalidConfiguration)
	}

	var m store.Mutation
	seen := make(map[common.Address]bool, len(addrs))
	for _, addr := range addrs {
		if seen[addr] {
			continue
		}
		seen[addr] = true

		p, err := s.primary.GetParticipant(ctx, addr)
		if err != nil {
			return err
		}
		if p.Whitelisted {
			continue
		}
		p.Whitelisted = true
		m.Participants = append(m.Participants, p)
		m.Events = append(m.Events, s.newEvent(model.EventWhitelisted, addr, p.TotalDeposited, v.price(), v.now))
	}
	if len(m.Participants) == 0 {
		return nil
	}
	if err := s.store.Commit(ctx, m); err != nil {
		return fmt.Errorf("save whitelist: %w", err)
	}

	slog.Info("participants whitelisted", "count", len(m.Participants))
	s.publish(m.Events...)
	return nil
}

// --- Read accessors ---

// Config returns the current configuration; the zero config when unset.
func (s *Service) Config(ctx context.Context) (model.AuctionConfig, error) {
	return s.store.GetConfig(ctx)
}

// Participant returns a participant's record; the zero record when unknown.
func (s *Service) Participant(ctx context.Context, addr common.Address) (model.Participant, error) {
	return s.store.GetParticipant(ctx, addr)
}

// IsWhitelisted reports whitelist membership.
func (s *Service) IsWhitelisted(ctx context.Context, addr common.Address) (bool, error) {
	p, err := s.store.GetParticipant(ctx, addr)
	if err != nil {
		return false, err
	}
	return p.Whitelisted, nil
}

// PayoutAddress returns the proceeds destination; zero when unset.
func (s *Service) PayoutAddress(ctx context.Context) (common.Address, error) {
	st, err := s.store.GetState(ctx)
	if err != nil {
		return common.Address{}, err
	}
	return st.PayoutAddress, nil
}
