package auction

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/atmx/dutch-auction/internal/model"
)

// AssetHolder holds the distributed token supply.
type AssetHolder interface {
	// BalanceOf returns the token balance of holder.
	BalanceOf(ctx context.Context, holder common.Address) (decimal.Decimal, error)

	// Transfer moves qty tokens from the auction's holding identity to to.
	Transfer(ctx context.Context, to common.Address, qty decimal.Decimal) error
}

// FundsTransfer pays out the native currency collected by deposits.
type FundsTransfer interface {
	Transfer(ctx context.Context, to common.Address, amount decimal.Decimal) error
}

// Clock is the wall-clock source. Injected so tests can control time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real time in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Publisher receives every emitted event after it has been persisted.
type Publisher interface {
	Publish(e model.Event)
}
