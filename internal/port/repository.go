package port

import (
	"context"

	"github.com/olyamironova/eos-exchange/internal/domain"
)

// Repository is the order book store. Every read and write happens inside a
// Tx; callers serialize writers (see core.Engine).
type Repository interface {
	BeginTx(ctx context.Context) (Tx, error)
}

type Tx interface {
	// Insert assigns a fresh id to o, persists it and returns the id.
	Insert(ctx context.Context, o *domain.Order) (uint64, error)
	Find(ctx context.Context, id uint64) (*domain.Order, error)
	Remove(ctx context.Context, id uint64) error
	Modify(ctx context.Context, id uint64, fn func(o *domain.Order) error) error
	// ScanBySide returns the resting orders of side in ascending id order.
	ScanBySide(ctx context.Context, side domain.Side) ([]*domain.Order, error)
	// AppendFill journals f under its maker id and, when set, its taker id.
	AppendFill(ctx context.Context, f domain.Fill) error
	// FillsFor returns the journaled fills naming order id, oldest first.
	FillsFor(ctx context.Context, id uint64) ([]domain.Fill, error)

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
