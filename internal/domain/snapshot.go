package domain

import "time"

type OrderbookSnapshot struct {
	Symbol    string    `json:"symbol"`
	Reference string    `json:"reference"`
	Bids      []Order   `json:"bids"`
	Asks      []Order   `json:"asks"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *OrderbookSnapshot) DeepCopy() *OrderbookSnapshot {
	cp := *s
	cp.Bids = append([]Order(nil), s.Bids...)
	cp.Asks = append([]Order(nil), s.Asks...)
	return &cp
}
