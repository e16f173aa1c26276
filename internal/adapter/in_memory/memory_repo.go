package in_memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/olyamironova/eos-exchange/internal/domain"
	"github.com/olyamironova/eos-exchange/internal/port"
)

var errTxDone = errors.New("in_memory: transaction already finished")

var _ port.Repository = (*MemoryRepo)(nil)

// MemoryRepo keeps the book in a map. A transaction works on a private copy
// that replaces the live book when it commits.
type MemoryRepo struct {
	mu     sync.Mutex
	orders map[uint64]*domain.Order
	fills  []domain.Fill
	lastID uint64
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{orders: make(map[uint64]*domain.Order)}
}

func (r *MemoryRepo) BeginTx(ctx context.Context) (port.Tx, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	orders := make(map[uint64]*domain.Order, len(r.orders))
	for id, o := range r.orders {
		orders[id] = o.Clone()
	}
	return &memoryTx{repo: r, orders: orders, fills: r.fills, lastID: r.lastID}, nil
}

// Len returns the number of resting orders.
func (r *MemoryRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.orders)
}

func (r *MemoryRepo) Close(ctx context.Context) {}

type memoryTx struct {
	repo   *MemoryRepo
	orders map[uint64]*domain.Order
	// fills aliases the committed journal until the first append copies it.
	fills  []domain.Fill
	copied bool
	lastID uint64
	done   bool
}

func (t *memoryTx) Insert(ctx context.Context, o *domain.Order) (uint64, error) {
	if t.done {
		return 0, errTxDone
	}
	t.lastID++
	cp := o.Clone()
	cp.ID = t.lastID
	t.orders[cp.ID] = cp
	return cp.ID, nil
}

func (t *memoryTx) Find(ctx context.Context, id uint64) (*domain.Order, error) {
	if t.done {
		return nil, errTxDone
	}
	o, ok := t.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", domain.ErrNotFound, id)
	}
	return o.Clone(), nil
}

func (t *memoryTx) Remove(ctx context.Context, id uint64) error {
	if t.done {
		return errTxDone
	}
	if _, ok := t.orders[id]; !ok {
		return fmt.Errorf("%w: id %d", domain.ErrNotFound, id)
	}
	delete(t.orders, id)
	return nil
}

func (t *memoryTx) Modify(ctx context.Context, id uint64, fn func(o *domain.Order) error) error {
	if t.done {
		return errTxDone
	}
	o, ok := t.orders[id]
	if !ok {
		return fmt.Errorf("%w: id %d", domain.ErrNotFound, id)
	}
	cp := o.Clone()
	if err := fn(cp); err != nil {
		return err
	}
	cp.ID = id
	t.orders[id] = cp
	return nil
}

func (t *memoryTx) ScanBySide(ctx context.Context, side domain.Side) ([]*domain.Order, error) {
	if t.done {
		return nil, errTxDone
	}
	var res []*domain.Order
	for _, o := range t.orders {
		if o.Side == side {
			res = append(res, o.Clone())
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (t *memoryTx) AppendFill(ctx context.Context, f domain.Fill) error {
	if t.done {
		return errTxDone
	}
	if !t.copied {
		t.fills = append([]domain.Fill(nil), t.fills...)
		t.copied = true
	}
	t.fills = append(t.fills, f)
	return nil
}

func (t *memoryTx) FillsFor(ctx context.Context, id uint64) ([]domain.Fill, error) {
	if t.done {
		return nil, errTxDone
	}
	var res []domain.Fill
	for _, f := range t.fills {
		if f.Involves(id) {
			res = append(res, f)
		}
	}
	return res, nil
}

func (t *memoryTx) Commit(ctx context.Context) error {
	if t.done {
		return errTxDone
	}
	t.done = true
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	t.repo.orders = t.orders
	t.repo.fills = t.fills
	t.repo.lastID = t.lastID
	return nil
}

func (t *memoryTx) Rollback(ctx context.Context) error {
	t.done = true
	return nil
}
