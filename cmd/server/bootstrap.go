package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/atmx/dutch-auction/internal/auction"
	"github.com/atmx/dutch-auction/internal/config"
	"github.com/atmx/dutch-auction/internal/identity"
)

// applyBootstrap configures the auction from a YAML file as the owner.
// It is a no-op once the auction is configured, so restarts are safe.
func applyBootstrap(ctx context.Context, svc *auction.Service, path string, now time.Time) error {
	cfg, err := svc.Config(ctx)
	if err != nil {
		return err
	}
	if cfg.Configured() {
		slog.Info("auction already configured, skipping bootstrap", "start_time", cfg.StartTime)
		return nil
	}

	b, err := config.LoadBootstrap(path)
	if err != nil {
		return err
	}

	owner := svc.Owner()
	if err := svc.Configure(ctx, owner, b.Params(now)); err != nil {
		return fmt.Errorf("configure: %w", err)
	}

	payout, _ := b.Payout()
	if !identity.IsZero(payout) {
		if err := svc.SetPayoutAddress(ctx, owner, payout); err != nil {
			return fmt.Errorf("set payout address: %w", err)
		}
	}

	addrs, _ := b.Addresses()
	if len(addrs) > 0 {
		if err := svc.Whitelist(ctx, owner, addrs...); err != nil {
			return fmt.Errorf("whitelist: %w", err)
		}
	}

	slog.Info("auction bootstrapped", "file", path, "whitelisted", len(addrs))
	return nil
}
