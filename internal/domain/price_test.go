package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestPriceCompatible(t *testing.T) {
	assert.True(t, PriceCompatible(100, 100, 100, 100))
	assert.True(t, PriceCompatible(10, 10, 20, 10))
	assert.False(t, PriceCompatible(30, 10, 20, 10))
	// 1/3 <= 1/3 with different scales
	assert.True(t, PriceCompatible(1, 3, 2, 6))
	// no int64 overflow on large products
	assert.True(t, PriceCompatible(math.MaxInt64-1, math.MaxInt64, math.MaxInt64, math.MaxInt64))
	assert.False(t, PriceCompatible(math.MaxInt64, math.MaxInt64-1, math.MaxInt64-1, math.MaxInt64))
}

func TestProRata(t *testing.T) {
	assert.Equal(t, int64(50), ProRata(50, 80, 80))
	assert.Equal(t, int64(3), ProRata(1, 10, 3))
	assert.Equal(t, int64(7), ProRata(7, 7, 7))
	assert.Equal(t, int64(0), ProRata(1, 2, 3))
	assert.Equal(t, int64(0), ProRata(0, 10, 10))
	assert.Equal(t, int64(0), ProRata(5, 10, 0))
	assert.Equal(t, int64(math.MaxInt64/2), ProRata(math.MaxInt64/2, math.MaxInt64, math.MaxInt64))
}

func TestProRataProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		of := rapid.Int64Range(1, 1_000_000).Draw(t, "of")
		qty := rapid.Int64Range(1, of).Draw(t, "qty")
		total := rapid.Int64Range(1, 1_000_000).Draw(t, "total")

		got := ProRata(qty, total, of)
		if got < 0 || got > total {
			t.Fatalf("ProRata(%d, %d, %d) = %d out of range", qty, total, of, got)
		}
		if want := qty * total / of; got != want {
			t.Fatalf("ProRata(%d, %d, %d) = %d, want %d", qty, total, of, got, want)
		}
		if qty < of && got == total {
			t.Fatalf("partial ProRata(%d, %d, %d) consumed the whole total", qty, total, of)
		}
	})
}

func TestUnitPrice(t *testing.T) {
	o := &Order{Quantity: Amount{Symbol: "TOKEN", Units: 3}, ReferenceTotal: 1}
	assert.Equal(t, "0.33333333", o.UnitPrice().String())
	assert.True(t, (&Order{}).UnitPrice().IsZero())
}

func TestSide(t *testing.T) {
	opp, err := Buy.Opposite()
	assert.NoError(t, err)
	assert.Equal(t, Sell, opp)
	opp, err = Sell.Opposite()
	assert.NoError(t, err)
	assert.Equal(t, Buy, opp)
	_, err = Side("FILLED").Opposite()
	assert.ErrorIs(t, err, ErrInvalidState)

	s, err := ParseSide("SELL")
	assert.NoError(t, err)
	assert.Equal(t, Sell, s)
	_, err = ParseSide("sell")
	assert.ErrorIs(t, err, ErrValidation)
}
