package store

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/dutch-auction/internal/model"
)

// fakeRows replays fixed rows through the pgxRows interface.
type fakeRows struct {
	rows [][]any
	pos  int
	err  error
}

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.rows) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...interface{}) error {
	row := r.rows[r.pos-1]
	if len(row) != len(dest) {
		return errors.New("column count mismatch")
	}
	for i, v := range row {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *bool:
			*d = v.(bool)
		case **time.Time:
			if v == nil {
				*d = nil
			} else {
				t := v.(time.Time)
				*d = &t
			}
		case *time.Time:
			*d = v.(time.Time)
		default:
			return errors.New("unsupported destination")
		}
	}
	return nil
}

func (r *fakeRows) Err() error { return r.err }

func TestScanParticipants(t *testing.T) {
	last := time.Date(2026, 3, 1, 12, 0, 50, 0, time.FixedZone("CET", 3600))
	rows := &fakeRows{rows: [][]any{
		{alice.Hex(), true, "40000", last, false, "0"},
		{bob.Hex(), true, "0", nil, false, "0"},
	}}

	got, err := scanParticipants(rows)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, alice, got[0].Address)
	assert.True(t, got[0].TotalDeposited.Equal(decimal.NewFromInt(40000)))
	assert.Equal(t, time.UTC, got[0].LastDepositAt.Location())
	assert.True(t, got[0].LastDepositAt.Equal(last))

	assert.Equal(t, bob, got[1].Address)
	assert.True(t, got[1].LastDepositAt.IsZero())
}

func TestScanEvents(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 1, 0, 0, time.UTC)
	rows := &fakeRows{rows: [][]any{
		{"9b2f6c1e-0000-4000-8000-000000000001", "deposit_accepted", alice.Hex(), "40000", "55", ts},
	}}

	got, err := scanEvents(rows)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.EventDepositAccepted, got[0].Type)
	assert.Equal(t, alice, got[0].Participant)
	assert.True(t, got[0].Price.Equal(decimal.NewFromInt(55)))
}

func TestScanRowsError(t *testing.T) {
	boom := errors.New("connection reset")
	_, err := scanEvents(&fakeRows{err: boom})
	assert.ErrorIs(t, err, boom)
}

func TestNullTime(t *testing.T) {
	assert.Nil(t, nullTime(time.Time{}))
	now := time.Now()
	require.NotNil(t, nullTime(now))
	assert.True(t, nullTime(now).Equal(now))
}
