package domain

import (
	"fmt"
	"time"
)

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Valid reports whether s is one of the two resting sides.
func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

// Opposite returns the side an order of side s is matched against.
func (s Side) Opposite() (Side, error) {
	switch s {
	case Buy:
		return Sell, nil
	case Sell:
		return Buy, nil
	default:
		return "", fmt.Errorf("%w: side %q", ErrInvalidState, string(s))
	}
}

func ParseSide(s string) (Side, error) {
	side := Side(s)
	if !side.Valid() {
		return "", fmt.Errorf("%w: unknown side %q", ErrValidation, s)
	}
	return side, nil
}

// Amount is a quantity of base units tagged with its currency symbol.
type Amount struct {
	Symbol string `json:"symbol"`
	Units  int64  `json:"units"`
}

func (a Amount) String() string {
	return fmt.Sprintf("%d %s", a.Units, a.Symbol)
}

// Order is a resting (or incoming) order. Quantity is the remaining amount of
// the traded currency, ReferenceTotal the remaining reference amount held
// against it (escrow for BUY, asked proceeds for SELL).
type Order struct {
	ID             uint64    `json:"id"`
	Owner          string    `json:"owner"`
	Quantity       Amount    `json:"quantity"`
	ReferenceTotal int64     `json:"reference_total"`
	Side           Side      `json:"side"`
	CreatedAt      time.Time `json:"created_at"`
}

func (o *Order) Filled() bool {
	return o.Quantity.Units == 0
}

// Clone returns a copy safe to mutate independently of o.
func (o *Order) Clone() *Order {
	cp := *o
	return &cp
}
