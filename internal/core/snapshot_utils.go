package core

import (
	"context"

	"go.uber.org/zap"

	"github.com/olyamironova/eos-exchange/internal/domain"
	"github.com/olyamironova/eos-exchange/internal/port"
)

func (e *Engine) invalidateCache(ctx context.Context) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Invalidate(ctx, e.market.Symbol); err != nil {
		e.log.Warn("cache_invalidate_failed", zap.String("symbol", e.market.Symbol), zap.Error(err))
	}
}

// updateCache replaces the cached snapshot with the committed book. On any
// failure the entry is dropped so readers fall back to the store.
func (e *Engine) updateCache(ctx context.Context) {
	if e.cache == nil {
		return
	}
	snap, err := e.loadSnapshot(ctx)
	if err != nil {
		e.log.Warn("snapshot_load_failed", zap.Error(err))
		e.invalidateCache(ctx)
		return
	}
	if err := e.cache.SetOrderbook(ctx, e.market.Symbol, snap); err != nil {
		e.log.Warn("cache_set_failed", zap.String("symbol", e.market.Symbol), zap.Error(err))
		e.invalidateCache(ctx)
	}
}

// getOrLoadSnapshot serves the cached book. On a miss it loads and caches the
// book under mu, so a writer cannot commit between the load and the set.
func (e *Engine) getOrLoadSnapshot(ctx context.Context) (*domain.OrderbookSnapshot, error) {
	if e.cache == nil {
		return e.loadSnapshot(ctx)
	}
	if ob, err := e.cache.GetOrderbook(ctx, e.market.Symbol); err == nil && ob != nil {
		return ob, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if ob, err := e.cache.GetOrderbook(ctx, e.market.Symbol); err == nil && ob != nil {
		return ob, nil
	}
	snap, err := e.loadSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	if err := e.cache.SetOrderbook(ctx, e.market.Symbol, snap.DeepCopy()); err != nil {
		e.log.Warn("cache_set_failed", zap.String("symbol", e.market.Symbol), zap.Error(err))
	}
	return snap, nil
}

func (e *Engine) loadSnapshot(ctx context.Context) (*domain.OrderbookSnapshot, error) {
	snap := &domain.OrderbookSnapshot{
		Symbol:    e.market.Symbol,
		Reference: e.market.Reference,
		Timestamp: e.now(),
	}
	err := withReadTx(ctx, e.repo, func(tx port.Tx) error {
		bids, err := tx.ScanBySide(ctx, domain.Buy)
		if err != nil {
			return err
		}
		asks, err := tx.ScanBySide(ctx, domain.Sell)
		if err != nil {
			return err
		}
		snap.Bids = derefOrders(bids)
		snap.Asks = derefOrders(asks)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func derefOrders(orders []*domain.Order) []domain.Order {
	res := make([]domain.Order, len(orders))
	for i, o := range orders {
		res[i] = *o
	}
	return res
}
