package port

import (
	"context"

	"github.com/olyamironova/eos-exchange/internal/domain"
)

// Publisher receives committed match events.
type Publisher interface {
	Publish(ctx context.Context, ev *domain.MatchEvent) error
}
