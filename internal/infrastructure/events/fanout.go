package events

import (
	"context"
	"errors"

	"github.com/samber/lo"

	"govsync/internal/ports"
)

// Fanout delivers every event to each publisher and joins their errors.
type Fanout struct {
	publishers []ports.EventPublisher
}

var _ ports.EventPublisher = (*Fanout)(nil)

func NewFanout(publishers ...ports.EventPublisher) *Fanout {
	return &Fanout{
		publishers: lo.Filter(publishers, func(p ports.EventPublisher, _ int) bool {
			return p != nil
		}),
	}
}

func (f *Fanout) Publish(ctx context.Context, event ports.GovernanceEvent) error {
	var joined error
	for _, p := range f.publishers {
		if err := p.Publish(ctx, event); err != nil {
			joined = errors.Join(joined, err)
		}
	}
	return joined
}

func (f *Fanout) Len() int { return len(f.publishers) }
