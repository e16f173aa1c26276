package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/olyamironova/eos-exchange/internal/port"
)

// errStoreCommit marks a store commit that failed after the settlement had
// already committed. With a split unit the two can then disagree and need
// operator attention; a shared unit rolls both back.
var errStoreCommit = errors.New("store commit failed after settlement commit")

// splitUnit pairs a store with a separate settlement gateway. The two commit
// one after the other, settlement first.
type splitUnit struct {
	repo    port.Repository
	gateway port.Gateway
}

func (u splitUnit) Begin(ctx context.Context) (port.Tx, port.Settlement, error) {
	tx, err := u.repo.BeginTx(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin store tx: %w", err)
	}
	st, err := u.gateway.Begin(ctx)
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, nil, fmt.Errorf("begin settlement: %w", err)
	}
	return tx, st, nil
}

// withTx runs fn inside one store transaction and one settlement opened by
// unit. Any error from fn rolls back everything.
func withTx(ctx context.Context, unit port.UnitOfWork, fn func(port.Tx, port.Settlement) error) error {
	tx, st, err := unit.Begin(ctx)
	if err != nil {
		return err
	}
	settled, committed := false, false
	defer func() {
		if !settled {
			_ = st.Rollback(ctx)
		}
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()
	if err := fn(tx, st); err != nil {
		return err
	}
	if err := st.Commit(ctx); err != nil {
		return fmt.Errorf("commit settlement: %w", err)
	}
	settled = true
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: %v", errStoreCommit, err)
	}
	committed = true
	return nil
}

// withReadTx runs fn in a store transaction that is always rolled back.
func withReadTx(ctx context.Context, repo port.Repository, fn func(port.Tx) error) error {
	tx, err := repo.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin store tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	return fn(tx)
}
