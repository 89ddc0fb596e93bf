// Package config loads process settings from the environment and the
// optional auction bootstrap file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/atmx/dutch-auction/internal/identity"
	"github.com/atmx/dutch-auction/internal/model"
	"github.com/atmx/dutch-auction/internal/units"
)

// Settings are the process-level settings read from the environment.
type Settings struct {
	Port        string        `env:"PORT" envDefault:"8080"`
	DatabaseURL string        `env:"DATABASE_URL"`
	RedisURL    string        `env:"REDIS_URL"`
	RedisTTL    time.Duration `env:"REDIS_TTL" envDefault:"30s"`

	// OwnerAddress is the configuring identity.
	OwnerAddress string `env:"OWNER_ADDRESS,required"`

	// HolderAddress owns the auctioned supply; defaults to the owner.
	HolderAddress string `env:"AUCTION_HOLDER_ADDRESS"`

	// TokenSupply is minted to the holder by the in-memory vault at startup.
	TokenSupply units.Amount `env:"TOKEN_SUPPLY" envDefault:"1000000ether"`

	// AuctionFile is an optional YAML bootstrap applied while unconfigured.
	AuctionFile string `env:"AUCTION_FILE"`
}

// Load parses Settings from the environment.
func Load() (*Settings, error) {
	var s Settings
	if err := env.Parse(&s); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if _, err := s.Owner(); err != nil {
		return nil, err
	}
	if _, err := s.Holder(); err != nil {
		return nil, err
	}
	if s.TokenSupply.IsNegative() {
		return nil, errors.New("TOKEN_SUPPLY must be >= 0")
	}
	return &s, nil
}

// Owner returns the parsed owner address.
func (s *Settings) Owner() (common.Address, error) {
	addr, err := identity.ParseAddress(s.OwnerAddress)
	if err != nil {
		return common.Address{}, fmt.Errorf("OWNER_ADDRESS: %w", err)
	}
	return addr, nil
}

// Holder returns the parsed holder address, falling back to the owner.
func (s *Settings) Holder() (common.Address, error) {
	if s.HolderAddress == "" {
		return s.Owner()
	}
	addr, err := identity.ParseAddress(s.HolderAddress)
	if err != nil {
		return common.Address{}, fmt.Errorf("AUCTION_HOLDER_ADDRESS: %w", err)
	}
	return addr, nil
}

// Bootstrap describes an auction to configure at startup.
type Bootstrap struct {
	Auction struct {
		// StartTime is absolute; StartIn is relative to process start.
		// Exactly one must be set.
		StartTime          time.Time    `yaml:"start_time"`
		StartIn            string       `yaml:"start_in"`
		P1                 units.Amount `yaml:"p1"`
		P2                 units.Amount `yaml:"p2"`
		T1                 int64        `yaml:"t1"`
		T2                 int64        `yaml:"t2"`
		MaxDepositPerTx    units.Amount `yaml:"max_deposit_per_tx"`
		MinDepositInterval int64        `yaml:"min_deposit_interval"`
	} `yaml:"auction"`
	PayoutAddress string   `yaml:"payout_address"`
	Whitelist     []string `yaml:"whitelist"`
}

// LoadBootstrap reads and checks a bootstrap file.
func LoadBootstrap(path string) (*Bootstrap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var b Bootstrap
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	hasTime := !b.Auction.StartTime.IsZero()
	hasOffset := b.Auction.StartIn != ""
	if hasTime == hasOffset {
		return nil, errors.New("auction: exactly one of start_time and start_in is required")
	}
	if hasOffset {
		if _, err := time.ParseDuration(b.Auction.StartIn); err != nil {
			return nil, fmt.Errorf("auction.start_in: %w", err)
		}
	}
	if _, err := b.Addresses(); err != nil {
		return nil, err
	}
	if _, err := b.Payout(); err != nil {
		return nil, err
	}
	return &b, nil
}

// Params builds the auction configuration, resolving start_in against now.
func (b *Bootstrap) Params(now time.Time) model.AuctionConfig {
	start := b.Auction.StartTime
	if b.Auction.StartIn != "" {
		offset, _ := time.ParseDuration(b.Auction.StartIn)
		start = now.Add(offset).Truncate(time.Second)
	}
	return model.AuctionConfig{
		StartTime:          start.UTC(),
		P1:                 b.Auction.P1.Decimal,
		P2:                 b.Auction.P2.Decimal,
		T1:                 b.Auction.T1,
		T2:                 b.Auction.T2,
		MaxDepositPerTx:    b.Auction.MaxDepositPerTx.Decimal,
		MinDepositInterval: b.Auction.MinDepositInterval,
	}
}

// Addresses returns the parsed whitelist.
func (b *Bootstrap) Addresses() ([]common.Address, error) {
	out := make([]common.Address, 0, len(b.Whitelist))
	for i, s := range b.Whitelist {
		addr, err := identity.ParseAddress(s)
		if err != nil {
			return nil, fmt.Errorf("whitelist[%d]: %w", i, err)
		}
		out = append(out, addr)
	}
	return out, nil
}

// Payout returns the parsed payout address; zero when unset.
func (b *Bootstrap) Payout() (common.Address, error) {
	if b.PayoutAddress == "" {
		return common.Address{}, nil
	}
	addr, err := identity.ParseAddress(b.PayoutAddress)
	if err != nil {
		return common.Address{}, fmt.Errorf("payout_address: %w", err)
	}
	return addr, nil
}
