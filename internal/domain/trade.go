package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transfer memos.
const (
	MemoDeposit = "transfer"
	MemoSell    = "sell"
	MemoBuy     = "buy"
	MemoRefund  = "back"
	MemoCancel  = "cancel"
)

// Transfer moves Amount from one account to another through the settlement
// gateway.
type Transfer struct {
	ID     string `json:"id"`
	From   string `json:"from"`
	To     string `json:"to"`
	Amount Amount `json:"amount"`
	Memo   string `json:"memo"`
}

// Fill is one match of an incoming order against a resting maker order.
// TakerID is set only when the incoming order rested a remainder.
type Fill struct {
	MakerID    uint64          `json:"maker_id"`
	MakerOwner string          `json:"maker_owner"`
	MakerSide  Side            `json:"maker_side"`
	TakerID    uint64          `json:"taker_id,omitempty"`
	TakerOwner string          `json:"taker_owner"`
	Quantity   int64           `json:"quantity"`
	Reference  int64           `json:"reference"`
	Price      decimal.Decimal `json:"price"`
	MakerDone  bool            `json:"maker_done"`
	ExecutedAt time.Time       `json:"executed_at"`
}

// Involves reports whether the fill names order id on either side.
func (f *Fill) Involves(id uint64) bool {
	return id != 0 && (f.MakerID == id || f.TakerID == id)
}

// MatchEvent is published after a submission commits.
type MatchEvent struct {
	Owner     string    `json:"owner"`
	Side      Side      `json:"side"`
	Symbol    string    `json:"symbol"`
	RestingID uint64    `json:"resting_id,omitempty"`
	Fills     []Fill    `json:"fills"`
	Refund    int64     `json:"refund,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
