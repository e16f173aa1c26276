package port

import (
	"context"

	"github.com/olyamironova/eos-exchange/internal/domain"
)

// Gateway moves funds between accounts. Transfers issued through one
// Settlement take effect only when it commits.
type Gateway interface {
	Begin(ctx context.Context) (Settlement, error)
}

type Settlement interface {
	Transfer(ctx context.Context, t domain.Transfer) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// UnitOfWork opens a store transaction and a settlement that commit or roll
// back together. When both live in one database the store Tx commits the
// transfers as well and the Settlement's Commit is a no-op.
type UnitOfWork interface {
	Begin(ctx context.Context) (Tx, Settlement, error)
}
