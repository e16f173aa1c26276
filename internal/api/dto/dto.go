package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string

type Amount struct {
	Symbol string `json:"symbol"`
	Units  int64  `json:"units"`
}

type SubmitOrderRequest struct {
	Symbol         string `json:"symbol" binding:"required"`
	Quantity       int64  `json:"quantity" binding:"required"`
	ReferenceTotal int64  `json:"reference_total" binding:"required"`
}

type SubmitOrderResponse struct {
	// OrderID is the resting remainder, zero when the order filled.
	OrderID   uint64     `json:"order_id,omitempty"`
	Filled    bool       `json:"filled"`
	Fills     []Fill     `json:"fills"`
	Transfers []Transfer `json:"transfers"`
	Remaining *Order     `json:"remaining,omitempty"`
	Refund    int64      `json:"refund,omitempty"`
}

type CancelOrderRequest struct {
	OrderID uint64 `json:"order_id" binding:"required"`
}

type CancelOrderResponse struct {
	OrderID   uint64 `json:"order_id"`
	Cancelled bool   `json:"cancelled"`
	Refund    Amount `json:"refund"`
}

type GetOrderResponse struct {
	Order Order `json:"order"`
}

type GetOrderbookResponse struct {
	Symbol    string    `json:"symbol"`
	Reference string    `json:"reference"`
	Bids      []Order   `json:"bids"`
	Asks      []Order   `json:"asks"`
	Timestamp time.Time `json:"timestamp"`
}

type BalancesResponse struct {
	Account  string           `json:"account"`
	Balances map[string]int64 `json:"balances"`
}

type DepositRequest struct {
	Symbol string `json:"symbol" binding:"required"`
	Units  int64  `json:"units" binding:"required"`
}

type Order struct {
	ID             uint64          `json:"id"`
	Owner          string          `json:"owner"`
	Symbol         string          `json:"symbol"`
	Side           Side            `json:"side"`
	Quantity       int64           `json:"quantity"`
	ReferenceTotal int64           `json:"reference_total"`
	Price          decimal.Decimal `json:"price"`
	CreatedAt      time.Time       `json:"created_at"`
}

type Fill struct {
	MakerID    uint64          `json:"maker_id"`
	MakerOwner string          `json:"maker_owner"`
	TakerID    uint64          `json:"taker_id,omitempty"`
	TakerOwner string          `json:"taker_owner"`
	Quantity   int64           `json:"quantity"`
	Reference  int64           `json:"reference"`
	Price      decimal.Decimal `json:"price"`
	MakerDone  bool            `json:"maker_done"`
	ExecutedAt time.Time       `json:"executed_at"`
}

type GetFillsResponse struct {
	OrderID uint64 `json:"order_id"`
	Fills   []Fill `json:"fills"`
}

type Transfer struct {
	ID     string `json:"id"`
	From   string `json:"from"`
	To     string `json:"to"`
	Amount Amount `json:"amount"`
	Memo   string `json:"memo"`
}
