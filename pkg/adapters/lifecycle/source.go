// Package lifecycle exposes arbor event streams as lifecycle sources, so a
// supervisor can react to tree changes the same way it reacts to signals.
package lifecycle

import (
	"context"

	"github.com/aretw0/lifecycle"

	"github.com/aretw0/arbor/pkg/core"
)

// Option narrows what a source forwards.
type Option func(*eventSource)

// WithTypes forwards only events of the given types.
func WithTypes(types ...core.EventType) Option {
	return func(s *eventSource) {
		s.types = make(map[core.EventType]bool, len(types))
		for _, t := range types {
			s.types[t] = true
		}
	}
}

// WithOwner forwards only events of one owner.
func WithOwner(owner string) Option {
	return func(s *eventSource) { s.owner = owner }
}

type eventSource struct {
	events <-chan core.Event
	out    chan lifecycle.Event
	types  map[core.EventType]bool
	owner  string
}

// NewSource bridges a channel of tree events, such as a manager's Events or a
// repository's Watch stream, to a lifecycle.Source. The output closes when the
// input closes or the context passed to Start ends.
func NewSource(events <-chan core.Event, opts ...Option) lifecycle.Source {
	s := &eventSource{
		events: events,
		out:    make(chan lifecycle.Event),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *eventSource) Events() <-chan lifecycle.Event {
	return s.out
}

func (s *eventSource) Start(ctx context.Context) error {
	lifecycle.Go(ctx, func(ctx context.Context) error {
		defer close(s.out)
		for {
			select {
			case <-ctx.Done():
				return nil
			case e, ok := <-s.events:
				if !ok {
					return nil
				}
				if !s.accept(e) {
					continue
				}
				select {
				case s.out <- e:
				case <-ctx.Done():
					return nil
				}
			}
		}
	})
	return nil
}

func (s *eventSource) accept(e core.Event) bool {
	if s.types != nil && !s.types[e.Type] {
		return false
	}
	return s.owner == "" || e.Owner == s.owner
}
