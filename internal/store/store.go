// Package store defines the persistence interface for the auction engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/atmx/dutch-auction/internal/model"
)

// Mutation is one atomic write. Nil or empty fields are left untouched.
type Mutation struct {
	Config       *model.AuctionConfig
	State        *model.AuctionState
	Participants []model.Participant
	Events       []model.Event
}

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Auction aggregate ---

	// GetConfig returns the stored configuration, or the zero config.
	GetConfig(ctx context.Context) (model.AuctionConfig, error)

	// GetState returns the aggregate state, or the zero state.
	GetState(ctx context.Context) (model.AuctionState, error)

	// --- Participants ---

	// GetParticipant returns the participant's record. Unknown addresses
	// yield a zero record carrying the address.
	GetParticipant(ctx context.Context, addr common.Address) (model.Participant, error)

	// ListParticipants returns every known participant.
	ListParticipants(ctx context.Context) ([]model.Participant, error)

	// --- Writes ---

	// Commit applies a mutation all-or-nothing.
	Commit(ctx context.Context, m Mutation) error

	// --- Immutable event log ---

	// ListEvents returns all events in emission order.
	ListEvents(ctx context.Context) ([]model.Event, error)

	// ListEventsByParticipant returns a participant's events in emission order.
	ListEventsByParticipant(ctx context.Context, addr common.Address) ([]model.Event, error)
}

// Primary returns the source of truth behind s: the wrapped store for a
// cache, s itself otherwise.
func Primary(s Store) Store {
	if c, ok := s.(interface{ Primary() Store }); ok {
		return Primary(c.Primary())
	}
	return s
}
