package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/olyamironova/eos-exchange/internal/domain"
	"github.com/olyamironova/eos-exchange/internal/port"
)

// Market is the single currency pair an Engine trades. Custody is the
// account that holds escrowed funds while orders rest.
type Market struct {
	Symbol    string
	Reference string
	Custody   string
}

// MatchResult describes the outcome of one submission.
type MatchResult struct {
	Fills     []domain.Fill
	Transfers []domain.Transfer
	// RestingID is the id of the remainder left on the book, zero when the
	// order was fully filled.
	RestingID uint64
	Resting   *domain.Order
	Refund    int64
}

func (r *MatchResult) Filled() bool {
	return r.Resting == nil
}

// CancelResult is the removed order and the escrow sent back to its owner.
type CancelResult struct {
	Order  *domain.Order
	Refund domain.Amount
}

// Engine implements the order lifecycle (submit, match, cancel) on top of a
// store and a settlement gateway. Writers are serialized by mu.
type Engine struct {
	repo   port.Repository
	unit   port.UnitOfWork
	cache  port.Cache
	pubs   []port.Publisher
	market Market
	log    *zap.Logger
	now    func() time.Time

	mu sync.Mutex
}

type Option func(*Engine)

func WithCache(c port.Cache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithPublisher adds a receiver of committed match events. It may be given
// more than once. Publish is called with the writer lock held, in commit
// order, and must not block.
func WithPublisher(p port.Publisher) Option {
	return func(e *Engine) { e.pubs = append(e.pubs, p) }
}

// WithUnitOfWork replaces the default pairing of the repository and gateway
// passed to NewEngine, for backends that commit orders and transfers in one
// transaction.
func WithUnitOfWork(u port.UnitOfWork) Option {
	return func(e *Engine) { e.unit = u }
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithClock overrides the time source used for CreatedAt and event
// timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(repo port.Repository, gateway port.Gateway, market Market, opts ...Option) *Engine {
	e := &Engine{
		repo:   repo,
		unit:   splitUnit{repo: repo, gateway: gateway},
		market: market,
		log:    zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Market() Market {
	return e.market
}

// Buy places a buy order for amount, escrowing escrow units of the reference
// currency.
func (e *Engine) Buy(ctx context.Context, owner string, amount domain.Amount, escrow int64) (*MatchResult, error) {
	return e.Submit(ctx, owner, amount, escrow, domain.Buy)
}

// Sell places a sell order for amount, asking refTotal units of the
// reference currency in total.
func (e *Engine) Sell(ctx context.Context, owner string, amount domain.Amount, refTotal int64) (*MatchResult, error) {
	return e.Submit(ctx, owner, amount, refTotal, domain.Sell)
}

// Submit deposits the order's escrow into custody, matches it against the
// opposite side and rests any remainder. Everything happens in one unit of
// work: on error no transfer is applied and the book is unchanged.
func (e *Engine) Submit(ctx context.Context, owner string, amount domain.Amount, refTotal int64, side domain.Side) (*MatchResult, error) {
	if err := e.validate(owner, amount, refTotal, side); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	in := &domain.Order{
		Owner:          owner,
		Quantity:       amount,
		ReferenceTotal: refTotal,
		Side:           side,
	}
	deposit := domain.Amount{Symbol: e.market.Reference, Units: refTotal}
	if side == domain.Sell {
		deposit = amount
	}

	var res *MatchResult
	err := withTx(ctx, e.unit, func(tx port.Tx, st port.Settlement) error {
		m := &matcher{engine: e, tx: tx, st: st, res: &MatchResult{}}
		if err := m.transfer(ctx, owner, e.market.Custody, deposit, domain.MemoDeposit); err != nil {
			return err
		}
		if err := m.match(ctx, in); err != nil {
			return err
		}
		res = m.res
		return nil
	})
	if err != nil {
		e.logFailure("submit_failed", err, zap.String("owner", owner), zap.String("side", string(side)))
		return nil, err
	}

	e.log.Info("order_submitted",
		zap.String("owner", owner),
		zap.String("side", string(side)),
		zap.Int64("quantity", amount.Units),
		zap.Int64("reference_total", refTotal),
		zap.Int("fills", len(res.Fills)),
		zap.Uint64("order_id", res.RestingID),
		zap.Int64("refund", res.Refund),
	)

	e.updateCache(ctx)
	e.publish(ctx, &domain.MatchEvent{
		Owner:     owner,
		Side:      side,
		Symbol:    amount.Symbol,
		RestingID: res.RestingID,
		Fills:     res.Fills,
		Refund:    res.Refund,
		Timestamp: e.now(),
	})
	return res, nil
}

// Cancel removes a resting order owned by owner and refunds what remains of
// its escrow.
func (e *Engine) Cancel(ctx context.Context, owner string, id uint64) (*CancelResult, error) {
	if owner == "" {
		return nil, fmt.Errorf("%w: missing owner", domain.ErrUnauthorized)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var res *CancelResult
	err := withTx(ctx, e.unit, func(tx port.Tx, st port.Settlement) error {
		o, err := tx.Find(ctx, id)
		if err != nil {
			return err
		}
		if o.Owner != owner {
			return fmt.Errorf("%w: order %d is not owned by %s", domain.ErrUnauthorized, id, owner)
		}
		if err := tx.Remove(ctx, id); err != nil {
			return err
		}
		refund := o.Quantity
		if o.Side == domain.Buy {
			refund = domain.Amount{Symbol: e.market.Reference, Units: o.ReferenceTotal}
		}
		m := &matcher{engine: e, tx: tx, st: st, res: &MatchResult{}}
		if err := m.transfer(ctx, e.market.Custody, owner, refund, domain.MemoCancel); err != nil {
			return err
		}
		res = &CancelResult{Order: o, Refund: refund}
		return nil
	})
	if err != nil {
		e.logFailure("cancel_failed", err, zap.String("owner", owner), zap.Uint64("order_id", id))
		return nil, err
	}

	e.log.Info("order_cancelled",
		zap.String("owner", owner),
		zap.Uint64("order_id", id),
		zap.String("refund", res.Refund.String()),
	)
	e.updateCache(ctx)
	return res, nil
}

func (e *Engine) GetOrder(ctx context.Context, id uint64) (*domain.Order, error) {
	var o *domain.Order
	err := withReadTx(ctx, e.repo, func(tx port.Tx) error {
		var err error
		o, err = tx.Find(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

// GetFills returns the journaled fills that order id took part in, as maker
// or as resting taker, oldest first. Orders that are no longer on the book
// keep their history.
func (e *Engine) GetFills(ctx context.Context, id uint64) ([]domain.Fill, error) {
	var fills []domain.Fill
	err := withReadTx(ctx, e.repo, func(tx port.Tx) error {
		var err error
		fills, err = tx.FillsFor(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return fills, nil
}

// GetOrderbook returns both sides of the book in match order, from the cache
// when it holds a snapshot.
func (e *Engine) GetOrderbook(ctx context.Context) (*domain.OrderbookSnapshot, error) {
	return e.getOrLoadSnapshot(ctx)
}

func (e *Engine) validate(owner string, amount domain.Amount, refTotal int64, side domain.Side) error {
	switch {
	case owner == "":
		return fmt.Errorf("%w: missing owner", domain.ErrValidation)
	case !side.Valid():
		return fmt.Errorf("%w: unknown side %q", domain.ErrValidation, string(side))
	case amount.Symbol == e.market.Reference:
		return fmt.Errorf("%w: must trade a non-%s currency", domain.ErrValidation, e.market.Reference)
	case amount.Symbol != e.market.Symbol:
		return fmt.Errorf("%w: unsupported symbol %q", domain.ErrValidation, amount.Symbol)
	case amount.Units <= 0:
		return fmt.Errorf("%w: quantity must be positive", domain.ErrValidation)
	case refTotal <= 0:
		return fmt.Errorf("%w: %s total must be positive", domain.ErrValidation, e.market.Reference)
	}
	return nil
}

func (e *Engine) publish(ctx context.Context, ev *domain.MatchEvent) {
	for _, pub := range e.pubs {
		if err := pub.Publish(ctx, ev); err != nil {
			e.log.Warn("publish_failed", zap.String("owner", ev.Owner), zap.Error(err))
		}
	}
}

func (e *Engine) logFailure(msg string, err error, fields ...zap.Field) {
	fields = append(fields, zap.Error(err))
	if errors.Is(err, errStoreCommit) {
		e.log.Error(msg, fields...)
		return
	}
	e.log.Info(msg, fields...)
}
