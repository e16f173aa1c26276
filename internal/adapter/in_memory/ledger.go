package in_memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/olyamironova/eos-exchange/internal/domain"
	"github.com/olyamironova/eos-exchange/internal/port"
)

var _ port.Gateway = (*Ledger)(nil)

type balanceKey struct {
	account string
	symbol  string
}

// Ledger is an in-process settlement gateway holding per-account balances.
type Ledger struct {
	mu       sync.Mutex
	balances map[balanceKey]int64
	journal  []domain.Transfer
}

func NewLedger() *Ledger {
	return &Ledger{balances: make(map[balanceKey]int64)}
}

// Deposit credits account out of thin air. Used for funding in tests and
// development.
func (l *Ledger) Deposit(ctx context.Context, account string, amount domain.Amount) error {
	if account == "" || amount.Symbol == "" || amount.Units <= 0 {
		return fmt.Errorf("%w: bad deposit %s to %q", domain.ErrValidation, amount, account)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[balanceKey{account, amount.Symbol}] += amount.Units
	return nil
}

func (l *Ledger) Balance(ctx context.Context, account, symbol string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[balanceKey{account, symbol}], nil
}

// Balances returns every non-zero balance of account keyed by symbol.
func (l *Ledger) Balances(ctx context.Context, account string) (map[string]int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	res := make(map[string]int64)
	for k, v := range l.balances {
		if k.account == account && v != 0 {
			res[k.symbol] = v
		}
	}
	return res, nil
}

// Total sums the balances of symbol over all accounts.
func (l *Ledger) Total(symbol string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	var sum int64
	for k, v := range l.balances {
		if k.symbol == symbol {
			sum += v
		}
	}
	return sum
}

// Journal returns the committed transfers in the order they were applied.
func (l *Ledger) Journal() []domain.Transfer {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.Transfer(nil), l.journal...)
}

func (l *Ledger) Begin(ctx context.Context) (port.Settlement, error) {
	return &ledgerSettlement{ledger: l, deltas: make(map[balanceKey]int64)}, nil
}

type ledgerSettlement struct {
	ledger *Ledger
	deltas map[balanceKey]int64
	staged []domain.Transfer
	done   bool
}

func (s *ledgerSettlement) Transfer(ctx context.Context, t domain.Transfer) error {
	if s.done {
		return errTxDone
	}
	if t.Amount.Units <= 0 {
		return fmt.Errorf("%w: transfer amount %s", domain.ErrValidation, t.Amount)
	}
	from := balanceKey{t.From, t.Amount.Symbol}
	s.ledger.mu.Lock()
	available := s.ledger.balances[from] + s.deltas[from]
	s.ledger.mu.Unlock()
	if available < t.Amount.Units {
		return fmt.Errorf("%w: %s has %d %s, needs %d", domain.ErrInsufficientFunds,
			t.From, available, t.Amount.Symbol, t.Amount.Units)
	}
	s.deltas[from] -= t.Amount.Units
	s.deltas[balanceKey{t.To, t.Amount.Symbol}] += t.Amount.Units
	s.staged = append(s.staged, t)
	return nil
}

func (s *ledgerSettlement) Commit(ctx context.Context) error {
	if s.done {
		return errTxDone
	}
	s.done = true
	s.ledger.mu.Lock()
	defer s.ledger.mu.Unlock()
	for k, d := range s.deltas {
		if s.ledger.balances[k]+d < 0 {
			return fmt.Errorf("%w: %s %s", domain.ErrInsufficientFunds, k.account, k.symbol)
		}
	}
	for k, d := range s.deltas {
		s.ledger.balances[k] += d
	}
	s.ledger.journal = append(s.ledger.journal, s.staged...)
	return nil
}

func (s *ledgerSettlement) Rollback(ctx context.Context) error {
	s.done = true
	return nil
}
