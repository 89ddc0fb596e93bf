package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/atmx/dutch-auction/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
// The auction config and state are singleton rows keyed by id = 1.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) GetConfig(ctx context.Context) (model.AuctionConfig, error) {
	var c model.AuctionConfig
	var startTime *time.Time
	var p1, p2, maxPerTx string

	err := s.pool.QueryRow(ctx,
		`SELECT start_time, p1::TEXT, p2::TEXT, t1, t2,
		        max_deposit_per_tx::TEXT, min_deposit_interval
		 FROM auction_config WHERE id = 1`).
		Scan(&startTime, &p1, &p2, &c.T1, &c.T2, &maxPerTx, &c.MinDepositInterval)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.AuctionConfig{}, nil
	}
	if err != nil {
		return model.AuctionConfig{}, fmt.Errorf("get auction config: %w", err)
	}

	if startTime != nil {
		c.StartTime = startTime.UTC()
	}
	c.P1, _ = decimal.NewFromString(p1)
	c.P2, _ = decimal.NewFromString(p2)
	c.MaxDepositPerTx, _ = decimal.NewFromString(maxPerTx)
	return c, nil
}

func (s *PostgresStore) GetState(ctx context.Context) (model.AuctionState, error) {
	var st model.AuctionState
	var total, funds, latest, final, payout string

	err := s.pool.QueryRow(ctx,
		`SELECT total_deposited::TEXT, funds_balance::TEXT, latest_price::TEXT,
		        payout_address, finalized, final_price::TEXT
		 FROM auction_state WHERE id = 1`).
		Scan(&total, &funds, &latest, &payout, &st.Finalized, &final)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.AuctionState{}, nil
	}
	if err != nil {
		return model.AuctionState{}, fmt.Errorf("get auction state: %w", err)
	}

	st.TotalDeposited, _ = decimal.NewFromString(total)
	st.FundsBalance, _ = decimal.NewFromString(funds)
	st.LatestPrice, _ = decimal.NewFromString(latest)
	st.FinalPrice, _ = decimal.NewFromString(final)
	st.PayoutAddress = common.HexToAddress(payout)
	return st, nil
}

func (s *PostgresStore) GetParticipant(ctx context.Context, addr common.Address) (model.Participant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT address, whitelisted, total_deposited::TEXT, last_deposit_at,
		        claimed, claimed_tokens::TEXT
		 FROM participants WHERE address = $1`, addr.Hex())
	if err != nil {
		return model.Participant{}, fmt.Errorf("get participant %s: %w", addr.Hex(), err)
	}
	defer rows.Close()

	ps, err := scanParticipants(rows)
	if err != nil {
		return model.Participant{}, err
	}
	if len(ps) == 0 {
		return model.Participant{Address: addr}, nil
	}
	return ps[0], nil
}

func (s *PostgresStore) ListParticipants(ctx context.Context) ([]model.Participant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT address, whitelisted, total_deposited::TEXT, last_deposit_at,
		        claimed, claimed_tokens::TEXT
		 FROM participants ORDER BY address`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanParticipants(rows)
}

// Commit writes every part of the mutation inside one transaction.
func (s *PostgresStore) Commit(ctx context.Context, m Mutation) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if m.Config != nil {
			if err := upsertConfig(ctx, tx, m.Config); err != nil {
				return fmt.Errorf("save auction config: %w", err)
			}
		}
		if m.State != nil {
			if err := upsertState(ctx, tx, m.State); err != nil {
				return fmt.Errorf("save auction state: %w", err)
			}
		}
		for i := range m.Participants {
			if err := upsertParticipant(ctx, tx, &m.Participants[i]); err != nil {
				return fmt.Errorf("save participant %s: %w", m.Participants[i].Address.Hex(), err)
			}
		}
		for i := range m.Events {
			if err := insertEvent(ctx, tx, &m.Events[i]); err != nil {
				return fmt.Errorf("insert event: %w", err)
			}
		}
		return nil
	})
}

func (s *PostgresStore) ListEvents(ctx context.Context) ([]model.Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, type, participant, amount::TEXT, price::TEXT, timestamp
		 FROM auction_events ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvents(rows)
}

func (s *PostgresStore) ListEventsByParticipant(ctx context.Context, addr common.Address) ([]model.Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, type, participant, amount::TEXT, price::TEXT, timestamp
		 FROM auction_events WHERE participant = $1 ORDER BY seq`, addr.Hex())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvents(rows)
}

// --- Transaction helpers ---

func upsertConfig(ctx context.Context, tx pgx.Tx, c *model.AuctionConfig) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO auction_config (id, start_time, p1, p2, t1, t2, max_deposit_per_tx, min_deposit_interval)
		 VALUES (1, $1, $2::NUMERIC, $3::NUMERIC, $4, $5, $6::NUMERIC, $7)
		 ON CONFLICT (id) DO UPDATE SET
		     start_time = EXCLUDED.start_time, p1 = EXCLUDED.p1, p2 = EXCLUDED.p2,
		     t1 = EXCLUDED.t1, t2 = EXCLUDED.t2,
		     max_deposit_per_tx = EXCLUDED.max_deposit_per_tx,
		     min_deposit_interval = EXCLUDED.min_deposit_interval`,
		nullTime(c.StartTime), c.P1.String(), c.P2.String(), c.T1, c.T2,
		c.MaxDepositPerTx.String(), c.MinDepositInterval,
	)
	return err
}

func upsertState(ctx context.Context, tx pgx.Tx, st *model.AuctionState) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO auction_state (id, total_deposited, funds_balance, latest_price, payout_address, finalized, final_price)
		 VALUES (1, $1::NUMERIC, $2::NUMERIC, $3::NUMERIC, $4, $5, $6::NUMERIC)
		 ON CONFLICT (id) DO UPDATE SET
		     total_deposited = EXCLUDED.total_deposited,
		     funds_balance = EXCLUDED.funds_balance,
		     latest_price = EXCLUDED.latest_price,
		     payout_address = EXCLUDED.payout_address,
		     finalized = EXCLUDED.finalized,
		     final_price = EXCLUDED.final_price`,
		st.TotalDeposited.String(), st.FundsBalance.String(), st.LatestPrice.String(),
		st.PayoutAddress.Hex(), st.Finalized, st.FinalPrice.String(),
	)
	return err
}

func upsertParticipant(ctx context.Context, tx pgx.Tx, p *model.Participant) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO participants (address, whitelisted, total_deposited, last_deposit_at, claimed, claimed_tokens)
		 VALUES ($1, $2, $3::NUMERIC, $4, $5, $6::NUMERIC)
		 ON CONFLICT (address) DO UPDATE SET
		     whitelisted = EXCLUDED.whitelisted,
		     total_deposited = EXCLUDED.total_deposited,
		     last_deposit_at = EXCLUDED.last_deposit_at,
		     claimed = EXCLUDED.claimed,
		     claimed_tokens = EXCLUDED.claimed_tokens`,
		p.Address.Hex(), p.Whitelisted, p.TotalDeposited.String(),
		nullTime(p.LastDepositAt), p.Claimed, p.ClaimedTokens.String(),
	)
	return err
}

func insertEvent(ctx context.Context, tx pgx.Tx, e *model.Event) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO auction_events (id, type, participant, amount, price, timestamp)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6)`,
		e.ID, string(e.Type), e.Participant.Hex(),
		e.Amount.String(), e.Price.String(), e.Timestamp,
	)
	return err
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// --- Row scanning ---

type pgxRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanParticipants(rows pgxRows) ([]model.Participant, error) {
	var out []model.Participant
	for rows.Next() {
		var p model.Participant
		var addr, total, claimed string
		var last *time.Time

		if err := rows.Scan(&addr, &p.Whitelisted, &total, &last, &p.Claimed, &claimed); err != nil {
			return nil, err
		}

		p.Address = common.HexToAddress(addr)
		p.TotalDeposited, _ = decimal.NewFromString(total)
		p.ClaimedTokens, _ = decimal.NewFromString(claimed)
		if last != nil {
			p.LastDepositAt = last.UTC()
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanEvents(rows pgxRows) ([]model.Event, error) {
	var out []model.Event
	for rows.Next() {
		var e model.Event
		var typ, participant, amount, price string

		if err := rows.Scan(&e.ID, &typ, &participant, &amount, &price, &e.Timestamp); err != nil {
			return nil, err
		}

		e.Type = model.EventType(typ)
		e.Participant = common.HexToAddress(participant)
		e.Amount, _ = decimal.NewFromString(amount)
		e.Price, _ = decimal.NewFromString(price)
		out = append(out, e)
	}
	return out, rows.Err()
}
