package core

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/olyamironova/eos-exchange/internal/domain"
	"github.com/olyamironova/eos-exchange/internal/port"
)

// matcher carries one submission's store tx, settlement and accumulated
// result through the scan.
type matcher struct {
	engine *Engine
	tx     port.Tx
	st     port.Settlement
	res    *MatchResult
}

// match fills in against the opposite side of the book in ascending id
// order, skipping makers whose price is incompatible, then either rests the
// remainder or refunds leftover buy escrow.
func (m *matcher) match(ctx context.Context, in *domain.Order) error {
	opposite, err := in.Side.Opposite()
	if err != nil {
		return err
	}
	book, err := m.tx.ScanBySide(ctx, opposite)
	if err != nil {
		return fmt.Errorf("scan %s: %w", opposite, err)
	}

	for _, maker := range book {
		if in.Quantity.Units == 0 {
			break
		}
		if maker.Side != opposite {
			if !maker.Side.Valid() {
				return fmt.Errorf("%w: order %d has side %q", domain.ErrInvalidState, maker.ID, string(maker.Side))
			}
			break
		}
		if maker.Quantity.Symbol != in.Quantity.Symbol {
			return fmt.Errorf("%w: order %d trades %s", domain.ErrInvalidState, maker.ID, maker.Quantity.Symbol)
		}

		sell, buy := maker, in
		if in.Side == domain.Sell {
			sell, buy = in, maker
		}
		if !domain.PriceCompatible(sell.ReferenceTotal, sell.Quantity.Units, buy.ReferenceTotal, buy.Quantity.Units) {
			continue
		}
		if err := m.fill(ctx, in, maker); err != nil {
			return err
		}
	}

	if in.Quantity.Units == 0 {
		if in.Side == domain.Buy && in.ReferenceTotal > 0 {
			refund := domain.Amount{Symbol: m.engine.market.Reference, Units: in.ReferenceTotal}
			if err := m.transfer(ctx, m.engine.market.Custody, in.Owner, refund, domain.MemoRefund); err != nil {
				return err
			}
			m.res.Refund = in.ReferenceTotal
		}
		return m.journal(ctx)
	}

	in.CreatedAt = m.engine.now().UTC()
	id, err := m.tx.Insert(ctx, in)
	if err != nil {
		return fmt.Errorf("rest order: %w", err)
	}
	in.ID = id
	m.res.RestingID = id
	m.res.Resting = in.Clone()
	for i := range m.res.Fills {
		m.res.Fills[i].TakerID = id
	}
	return m.journal(ctx)
}

// journal records the submission's fills in the store tx.
func (m *matcher) journal(ctx context.Context) error {
	for _, f := range m.res.Fills {
		if err := m.tx.AppendFill(ctx, f); err != nil {
			return fmt.Errorf("journal fill with maker %d: %w", f.MakerID, err)
		}
	}
	return nil
}

// fill trades in against one compatible maker at the maker's price.
func (m *matcher) fill(ctx context.Context, in, maker *domain.Order) error {
	var q, r int64
	makerDone := false
	if delta := maker.Quantity.Units - in.Quantity.Units; delta >= 0 {
		q = in.Quantity.Units
		r = domain.ProRata(q, maker.ReferenceTotal, maker.Quantity.Units)
		makerDone = delta == 0
	} else {
		q = maker.Quantity.Units
		r = maker.ReferenceTotal
		makerDone = true
	}

	inRef := r
	if in.Side == domain.Sell {
		inRef = domain.ProRata(q, in.ReferenceTotal, in.Quantity.Units)
	}

	seller, buyer := maker.Owner, in.Owner
	if in.Side == domain.Sell {
		seller, buyer = in.Owner, maker.Owner
	}
	custody := m.engine.market.Custody
	ref := domain.Amount{Symbol: m.engine.market.Reference, Units: r}
	if err := m.transfer(ctx, custody, seller, ref, domain.MemoSell); err != nil {
		return err
	}
	cur := domain.Amount{Symbol: in.Quantity.Symbol, Units: q}
	if err := m.transfer(ctx, custody, buyer, cur, domain.MemoBuy); err != nil {
		return err
	}

	m.res.Fills = append(m.res.Fills, domain.Fill{
		MakerID:    maker.ID,
		MakerOwner: maker.Owner,
		MakerSide:  maker.Side,
		TakerOwner: in.Owner,
		Quantity:   q,
		Reference:  r,
		Price:      maker.UnitPrice(),
		MakerDone:  makerDone,
		ExecutedAt: m.engine.now().UTC(),
	})

	if makerDone {
		if err := m.tx.Remove(ctx, maker.ID); err != nil {
			return fmt.Errorf("remove maker %d: %w", maker.ID, err)
		}
	} else {
		err := m.tx.Modify(ctx, maker.ID, func(o *domain.Order) error {
			o.Quantity.Units -= q
			o.ReferenceTotal -= r
			return nil
		})
		if err != nil {
			return fmt.Errorf("modify maker %d: %w", maker.ID, err)
		}
	}

	in.Quantity.Units -= q
	in.ReferenceTotal -= inRef
	return nil
}

// transfer issues one settlement leg and records it. Zero legs are dropped.
func (m *matcher) transfer(ctx context.Context, from, to string, amount domain.Amount, memo string) error {
	if amount.Units == 0 {
		return nil
	}
	t := domain.Transfer{
		ID:     uuid.NewString(),
		From:   from,
		To:     to,
		Amount: amount,
		Memo:   memo,
	}
	if err := m.st.Transfer(ctx, t); err != nil {
		return fmt.Errorf("transfer %s %s -> %s (%s): %w", amount, from, to, memo, err)
	}
	m.res.Transfers = append(m.res.Transfers, t)
	return nil
}
