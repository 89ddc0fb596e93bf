// Package pricing implements the two-segment linear price decay of the
// reverse Dutch auction and the dynamic capacity cap derived from it.
//
// The curve is a pure function of wall-clock time and configuration:
//
//	elapsed < 0              → 0 (not started)
//	0 <= elapsed < t1        → p1 − elapsed × (p1 − p2) / t1
//	t1 <= elapsed <= t1 + t2 → p2 − (elapsed − t1) × p2 / t2
//	elapsed > t1 + t2        → 0 (window elapsed)
//
// Elapsed time is counted in whole seconds. All arithmetic is integer:
// multiply first, then truncating divide. Reordering the operations changes
// rounding, so callers must not "simplify" these expressions.
package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/dutch-auction/internal/model"
)

// Elapsed returns the whole seconds between the configured start and now.
// Negative when now is before the start.
func Elapsed(now time.Time, cfg model.AuctionConfig) int64 {
	if now.Before(cfg.StartTime) {
		// Round toward negative infinity so a sub-second gap still reads as "before".
		d := cfg.StartTime.Sub(now)
		return -int64((d + time.Second - 1) / time.Second)
	}
	return int64(now.Sub(cfg.StartTime) / time.Second)
}

// Price returns the clearing price at now. Zero when the auction is not
// configured, not started, or past its window.
func Price(now time.Time, cfg model.AuctionConfig) decimal.Decimal {
	if !cfg.Configured() || cfg.T1 <= 0 || cfg.T2 <= 0 {
		return decimal.Zero
	}

	elapsed := Elapsed(now, cfg)
	switch {
	case elapsed < 0:
		return decimal.Zero

	case elapsed < cfg.T1:
		// Phase 1: steep decay from p1 to p2.
		drop := decimal.NewFromInt(elapsed).Mul(cfg.P1.Sub(cfg.P2))
		return cfg.P1.Sub(quo(drop, decimal.NewFromInt(cfg.T1)))

	case elapsed <= cfg.T1+cfg.T2:
		// Phase 2: gentle tail from p2 to zero.
		drop := decimal.NewFromInt(elapsed - cfg.T1).Mul(cfg.P2)
		return cfg.P2.Sub(quo(drop, decimal.NewFromInt(cfg.T2)))

	default:
		return decimal.Zero
	}
}

// Cap returns the maximum aggregate contribution accepted at now:
// price × available supply.
func Cap(now time.Time, cfg model.AuctionConfig, supply decimal.Decimal) decimal.Decimal {
	return Price(now, cfg).Mul(supply)
}

// Window reports whether now falls inside [start, start + t1 + t2].
func Window(now time.Time, cfg model.AuctionConfig) bool {
	if !cfg.Configured() {
		return false
	}
	elapsed := Elapsed(now, cfg)
	return elapsed >= 0 && elapsed <= cfg.T1+cfg.T2
}

// Schedule returns the phase boundaries of a configured curve.
func Schedule(cfg model.AuctionConfig) (phase1End, end time.Time) {
	if !cfg.Configured() {
		return time.Time{}, time.Time{}
	}
	return cfg.StartTime.Add(time.Duration(cfg.T1) * time.Second), cfg.EndTime()
}

// Quo is truncating integer division of non-negative a by positive b.
// The caller must ensure b is non-zero.
func Quo(a, b decimal.Decimal) decimal.Decimal {
	return quo(a, b)
}

// CeilQuo is integer division rounding toward positive infinity.
func CeilQuo(a, b decimal.Decimal) decimal.Decimal {
	q, r := a.QuoRem(b, 0)
	if r.IsPositive() {
		q = q.Add(decimal.NewFromInt(1))
	}
	return q
}

func quo(a, b decimal.Decimal) decimal.Decimal {
	q, _ := a.QuoRem(b, 0)
	return q
}
