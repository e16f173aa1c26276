package in_memory

import (
	"context"
	"sync"

	"github.com/olyamironova/eos-exchange/internal/domain"
	"github.com/olyamironova/eos-exchange/internal/port"
)

var _ port.Publisher = (*Publisher)(nil)

// Publisher records every event it receives.
type Publisher struct {
	mu     sync.Mutex
	events []domain.MatchEvent
}

func NewPublisher() *Publisher {
	return &Publisher{}
}

func (p *Publisher) Publish(ctx context.Context, ev *domain.MatchEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, *ev)
	return nil
}

func (p *Publisher) Events() []domain.MatchEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.MatchEvent(nil), p.events...)
}
