package domain

import "github.com/shopspring/decimal"

// PriceCompatible reports whether a seller asking sellRef for sellQty units
// and a buyer offering buyRef for buyQty units can trade, i.e.
// sellRef/sellQty <= buyRef/buyQty. The ratio is compared by
// cross-multiplication so the decision is exact.
func PriceCompatible(sellRef, sellQty, buyRef, buyQty int64) bool {
	lhs := decimal.NewFromInt(sellRef).Mul(decimal.NewFromInt(buyQty))
	rhs := decimal.NewFromInt(buyRef).Mul(decimal.NewFromInt(sellQty))
	return lhs.Cmp(rhs) <= 0
}

// ProRata returns floor(qty * total / of). It is the reference amount that
// qty units are worth at the rate total/of. qty must not exceed of.
func ProRata(qty, total, of int64) int64 {
	if of <= 0 || qty <= 0 || total <= 0 {
		return 0
	}
	if qty == of {
		return total
	}
	quo, _ := decimal.NewFromInt(qty).Mul(decimal.NewFromInt(total)).QuoRem(decimal.NewFromInt(of), 0)
	return quo.IntPart()
}

// UnitPrice is the display rate ReferenceTotal/Quantity rounded to 8 places.
// It is never used for matching decisions.
func (o *Order) UnitPrice() decimal.Decimal {
	if o.Quantity.Units == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(o.ReferenceTotal).DivRound(decimal.NewFromInt(o.Quantity.Units), 8)
}
