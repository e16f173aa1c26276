package pg

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/olyamironova/eos-exchange/internal/port"
)

var _ port.UnitOfWork = (*UnitOfWork)(nil)

// UnitOfWork runs the order book and the ledger in one pgx.Tx, so a submission
// either changes both or neither. Use it when orders and balances share a
// database.
type UnitOfWork struct {
	pool *pgxpool.Pool
}

func NewUnitOfWork(pool *pgxpool.Pool) *UnitOfWork {
	return &UnitOfWork{pool: pool}
}

func (u *UnitOfWork) Begin(ctx context.Context) (port.Tx, port.Settlement, error) {
	tx, err := u.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("pg: begin: %w", err)
	}
	return &pgTx{tx: tx}, &joinedSettlement{pgSettlement{tx: tx}}, nil
}

// joinedSettlement issues transfers on the store's transaction and leaves
// commit and rollback to it.
type joinedSettlement struct {
	pgSettlement
}

func (joinedSettlement) Commit(ctx context.Context) error   { return nil }
func (joinedSettlement) Rollback(ctx context.Context) error { return nil }
