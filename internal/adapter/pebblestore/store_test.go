package pebblestore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olyamironova/eos-exchange/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewMemStore()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func order(owner string, side domain.Side, qty, ref int64) *domain.Order {
	return &domain.Order{
		Owner:          owner,
		Side:           side,
		Quantity:       domain.Amount{Symbol: "TOKEN", Units: qty},
		ReferenceTotal: ref,
	}
}

func TestStoreInsertScanOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	for i := 0; i < 12; i++ {
		side := domain.Sell
		if i%3 == 0 {
			side = domain.Buy
		}
		id, err := tx.Insert(ctx, order("alice", side, int64(i+1), 10))
		require.NoError(t, err)
		assert.Equal(t, uint64(i+1), id)
	}
	require.NoError(t, tx.Commit(ctx))

	tx, err = s.BeginTx(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback(ctx) }()

	buys, err := tx.ScanBySide(ctx, domain.Buy)
	require.NoError(t, err)
	require.Len(t, buys, 4)
	sells, err := tx.ScanBySide(ctx, domain.Sell)
	require.NoError(t, err)
	require.Len(t, sells, 8)
	for i := 1; i < len(sells); i++ {
		assert.Less(t, sells[i-1].ID, sells[i].ID)
	}
	for _, b := range buys {
		assert.Equal(t, domain.Buy, b.Side)
	}
}

func TestStoreRollbackDiscards(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	_, err = tx.Insert(ctx, order("alice", domain.Buy, 5, 5))
	require.NoError(t, err)
	require.NoError(t, tx.Rollback(ctx))

	tx, err = s.BeginTx(ctx)
	require.NoError(t, err)
	_, err = tx.Find(ctx, 1)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	// the sequence did not advance either
	id, err := tx.Insert(ctx, order("bob", domain.Sell, 5, 5))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)
	require.NoError(t, tx.Commit(ctx))
	assert.NoError(t, tx.Rollback(ctx))
}

func TestStoreModifyRemove(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	id, err := tx.Insert(ctx, order("alice", domain.Sell, 100, 100))
	require.NoError(t, err)
	require.NoError(t, tx.Modify(ctx, id, func(o *domain.Order) error {
		o.Quantity.Units -= 70
		o.ReferenceTotal -= 70
		return nil
	}))
	o, err := tx.Find(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(30), o.Quantity.Units)
	assert.Equal(t, int64(30), o.ReferenceTotal)

	boom := errors.New("boom")
	assert.ErrorIs(t, tx.Modify(ctx, id, func(o *domain.Order) error { return boom }), boom)
	assert.ErrorIs(t, tx.Modify(ctx, 99, func(o *domain.Order) error { return nil }), domain.ErrNotFound)

	require.NoError(t, tx.Remove(ctx, id))
	assert.ErrorIs(t, tx.Remove(ctx, id), domain.ErrNotFound)
	sells, err := tx.ScanBySide(ctx, domain.Sell)
	require.NoError(t, err)
	assert.Empty(t, sells)
	require.NoError(t, tx.Commit(ctx))

	_, err = tx.Find(ctx, id)
	assert.ErrorIs(t, err, errTxDone)
}

func TestKeyUpperBound(t *testing.T) {
	assert.Equal(t, []byte("side:BUY;"), keyUpperBound([]byte("side:BUY:")))
	assert.Equal(t, []byte{0x01}, keyUpperBound([]byte{0x00, 0xff}))
	assert.Nil(t, keyUpperBound([]byte{0xff}))
}

func TestStoreFillsJournal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.AppendFill(ctx, domain.Fill{MakerID: 1, MakerOwner: "bob", TakerID: 12, TakerOwner: "alice", Quantity: 4, ExecutedAt: at}))
	require.NoError(t, tx.AppendFill(ctx, domain.Fill{MakerID: 1, MakerOwner: "bob", TakerOwner: "carol", Quantity: 6}))
	require.NoError(t, tx.AppendFill(ctx, domain.Fill{MakerID: 10, MakerOwner: "dave", Quantity: 1}))

	fills, err := tx.FillsFor(ctx, 1)
	require.NoError(t, err)
	require.Len(t, fills, 2, "visible inside the batch")
	require.NoError(t, tx.Commit(ctx))

	tx, err = s.BeginTx(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback(ctx) }()

	fills, err = tx.FillsFor(ctx, 1)
	require.NoError(t, err)
	require.Len(t, fills, 2)
	assert.Equal(t, "alice", fills[0].TakerOwner)
	assert.Equal(t, at, fills[0].ExecutedAt)
	assert.Equal(t, int64(6), fills[1].Quantity)

	// zero padding keeps order 1 clear of orders 10 and 12
	fills, err = tx.FillsFor(ctx, 12)
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.Equal(t, uint64(1), fills[0].MakerID)
}

func TestStoreFillsRollback(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.AppendFill(ctx, domain.Fill{MakerID: 3, Quantity: 1}))
	require.NoError(t, tx.Rollback(ctx))

	tx, err = s.BeginTx(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback(ctx) }()
	fills, err := tx.FillsFor(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, fills)
}
