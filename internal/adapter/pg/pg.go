package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/olyamironova/eos-exchange/internal/domain"
	"github.com/olyamironova/eos-exchange/internal/port"
)

var _ port.Repository = (*PgRepo)(nil)

type PgRepo struct {
	pool *pgxpool.Pool
}

// call Close when finish to work with database.
func NewPgRepo(ctx context.Context, dsn string) (*PgRepo, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pg: create pool: %w", err)
	}
	return &PgRepo{pool: pool}, nil
}

func (p *PgRepo) Pool() *pgxpool.Pool {
	return p.pool
}

func (p *PgRepo) Close(ctx context.Context) {
	if p.pool != nil {
		p.pool.Close()
	}
}

func (p *PgRepo) BeginTx(ctx context.Context) (port.Tx, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("pg: begin: %w", err)
	}
	return &pgTx{tx: tx}, nil
}

type pgTx struct {
	tx pgx.Tx
}

const orderColumns = `id, owner, symbol, quantity, reference_total, side, created_at`

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var o domain.Order
	var side string
	if err := row.Scan(&o.ID, &o.Owner, &o.Quantity.Symbol, &o.Quantity.Units, &o.ReferenceTotal, &side, &o.CreatedAt); err != nil {
		return nil, err
	}
	o.Side = domain.Side(side)
	return &o, nil
}

func (t *pgTx) Insert(ctx context.Context, o *domain.Order) (uint64, error) {
	if o == nil {
		return 0, errors.New("nil order")
	}
	var id uint64
	err := t.tx.QueryRow(ctx, `
INSERT INTO orders(owner, symbol, quantity, reference_total, side, created_at)
VALUES($1,$2,$3,$4,$5,$6)
RETURNING id
`, o.Owner, o.Quantity.Symbol, o.Quantity.Units, o.ReferenceTotal, string(o.Side), o.CreatedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("pg: insert order: %w", err)
	}
	return id, nil
}

func (t *pgTx) Find(ctx context.Context, id uint64) (*domain.Order, error) {
	o, err := scanOrder(t.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("pg: find order %d: %w", id, err)
	}
	return o, nil
}

func (t *pgTx) Remove(ctx context.Context, id uint64) error {
	res, err := t.tx.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("pg: remove order %d: %w", id, err)
	}
	if res.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", domain.ErrNotFound, id)
	}
	return nil
}

// Modify locks the row, applies fn and writes the result back.
func (t *pgTx) Modify(ctx context.Context, id uint64, fn func(o *domain.Order) error) error {
	o, err := scanOrder(t.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: id %d", domain.ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("pg: load order %d: %w", id, err)
	}
	if err := fn(o); err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `
UPDATE orders
SET owner = $1, symbol = $2, quantity = $3, reference_total = $4, side = $5
WHERE id = $6
`, o.Owner, o.Quantity.Symbol, o.Quantity.Units, o.ReferenceTotal, string(o.Side), id)
	if err != nil {
		return fmt.Errorf("pg: update order %d: %w", id, err)
	}
	return nil
}

// ScanBySide returns resting orders of side ordered by id, locking them for
// the rest of the transaction.
func (t *pgTx) ScanBySide(ctx context.Context, side domain.Side) ([]*domain.Order, error) {
	rows, err := t.tx.Query(ctx, `
SELECT `+orderColumns+`
FROM orders
WHERE side = $1
ORDER BY id ASC
FOR UPDATE
`, string(side))
	if err != nil {
		return nil, fmt.Errorf("pg: scan %s: %w", side, err)
	}
	defer rows.Close()

	var res []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

func (t *pgTx) AppendFill(ctx context.Context, f domain.Fill) error {
	_, err := t.tx.Exec(ctx, `
INSERT INTO fills(maker_id, maker_owner, maker_side, taker_id, taker_owner, quantity, reference, price, maker_done, executed_at)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`, f.MakerID, f.MakerOwner, string(f.MakerSide), f.TakerID, f.TakerOwner, f.Quantity, f.Reference, f.Price.String(), f.MakerDone, f.ExecutedAt)
	if err != nil {
		return fmt.Errorf("pg: save fill for order %d: %w", f.MakerID, err)
	}
	return nil
}

func (t *pgTx) FillsFor(ctx context.Context, id uint64) ([]domain.Fill, error) {
	rows, err := t.tx.Query(ctx, `
SELECT maker_id, maker_owner, maker_side, taker_id, taker_owner, quantity, reference, price::text, maker_done, executed_at
FROM fills
WHERE maker_id = $1 OR (taker_id = $1 AND taker_id <> 0)
ORDER BY id ASC
`, id)
	if err != nil {
		return nil, fmt.Errorf("pg: load fills for order %d: %w", id, err)
	}
	defer rows.Close()

	var res []domain.Fill
	for rows.Next() {
		var f domain.Fill
		var side, price string
		if err := rows.Scan(&f.MakerID, &f.MakerOwner, &side, &f.TakerID, &f.TakerOwner, &f.Quantity, &f.Reference, &price, &f.MakerDone, &f.ExecutedAt); err != nil {
			return nil, err
		}
		f.MakerSide = domain.Side(side)
		if f.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("pg: fill price %q: %w", price, err)
		}
		res = append(res, f)
	}
	return res, rows.Err()
}

func (t *pgTx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

// Rollback is a no-op after Commit.
func (t *pgTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}
