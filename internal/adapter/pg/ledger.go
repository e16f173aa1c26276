package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/olyamironova/eos-exchange/internal/domain"
	"github.com/olyamironova/eos-exchange/internal/port"
)

var _ port.Gateway = (*Ledger)(nil)

// Ledger settles transfers against the balances table. Every transfer is
// journaled in transfers.
type Ledger struct {
	pool *pgxpool.Pool
}

func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

// Deposit credits account directly. Used for funding in tests and
// development.
func (l *Ledger) Deposit(ctx context.Context, account string, amount domain.Amount) error {
	if account == "" || amount.Symbol == "" || amount.Units <= 0 {
		return fmt.Errorf("%w: bad deposit %s to %q", domain.ErrValidation, amount, account)
	}
	_, err := l.pool.Exec(ctx, creditSQL, account, amount.Symbol, amount.Units)
	if err != nil {
		return fmt.Errorf("pg: deposit: %w", err)
	}
	return nil
}

func (l *Ledger) Balance(ctx context.Context, account, symbol string) (int64, error) {
	var units int64
	err := l.pool.QueryRow(ctx, `SELECT units FROM balances WHERE account = $1 AND symbol = $2`, account, symbol).Scan(&units)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("pg: balance: %w", err)
	}
	return units, nil
}

func (l *Ledger) Balances(ctx context.Context, account string) (map[string]int64, error) {
	rows, err := l.pool.Query(ctx, `SELECT symbol, units FROM balances WHERE account = $1 AND units <> 0`, account)
	if err != nil {
		return nil, fmt.Errorf("pg: balances: %w", err)
	}
	defer rows.Close()
	res := make(map[string]int64)
	for rows.Next() {
		var symbol string
		var units int64
		if err := rows.Scan(&symbol, &units); err != nil {
			return nil, err
		}
		res[symbol] = units
	}
	return res, rows.Err()
}

func (l *Ledger) Begin(ctx context.Context) (port.Settlement, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("pg: begin settlement: %w", err)
	}
	return &pgSettlement{tx: tx}, nil
}

const creditSQL = `
INSERT INTO balances(account, symbol, units) VALUES($1,$2,$3)
ON CONFLICT (account, symbol) DO UPDATE SET units = balances.units + EXCLUDED.units
`

type pgSettlement struct {
	tx pgx.Tx
}

func (s *pgSettlement) Transfer(ctx context.Context, t domain.Transfer) error {
	if t.Amount.Units <= 0 {
		return fmt.Errorf("%w: transfer amount %s", domain.ErrValidation, t.Amount)
	}
	res, err := s.tx.Exec(ctx, `
UPDATE balances SET units = units - $3
WHERE account = $1 AND symbol = $2 AND units >= $3
`, t.From, t.Amount.Symbol, t.Amount.Units)
	if err != nil {
		return fmt.Errorf("pg: debit %s: %w", t.From, err)
	}
	if res.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s cannot pay %s", domain.ErrInsufficientFunds, t.From, t.Amount)
	}
	if _, err := s.tx.Exec(ctx, creditSQL, t.To, t.Amount.Symbol, t.Amount.Units); err != nil {
		return fmt.Errorf("pg: credit %s: %w", t.To, err)
	}
	_, err = s.tx.Exec(ctx, `
INSERT INTO transfers(id, from_acct, to_acct, symbol, units, memo)
VALUES($1,$2,$3,$4,$5,$6)
`, t.ID, t.From, t.To, t.Amount.Symbol, t.Amount.Units, t.Memo)
	if err != nil {
		return fmt.Errorf("pg: journal transfer: %w", err)
	}
	return nil
}

func (s *pgSettlement) Commit(ctx context.Context) error {
	return s.tx.Commit(ctx)
}

func (s *pgSettlement) Rollback(ctx context.Context) error {
	err := s.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}
