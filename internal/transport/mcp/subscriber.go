package mcp

import (
	"context"

	"github.com/google/uuid"

	"github.com/rhema-dev/rhema/internal/realtime"
)

// Subscriber implements realtime.EventSubscriber so an MCP adapter can
// register interest in context changes and forward them to its client as
// a resources/list_changed notification, without this package needing to
// know anything about the adapter's actual wire format — per spec.md's
// Non-goal, that framing is the adapter's job, not this package's.
type Subscriber struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	events chan realtime.Event
}

// NewSubscriber builds a Subscriber an adapter can hand to
// Deps.Bus.Subscribe and drain via Events.
func NewSubscriber() *Subscriber {
	ctx, cancel := context.WithCancel(context.Background())
	return &Subscriber{
		id:     uuid.New().String(),
		ctx:    ctx,
		cancel: cancel,
		events: make(chan realtime.Event, 32),
	}
}

func (sub *Subscriber) ID() string               { return sub.id }
func (sub *Subscriber) Context() context.Context { return sub.ctx }

// Send enqueues event for the adapter to drain via Events. A full buffer
// drops the event rather than blocking the bus's broadcast goroutine.
func (sub *Subscriber) Send(event realtime.Event) error {
	select {
	case sub.events <- event:
		return nil
	default:
		return nil
	}
}

func (sub *Subscriber) Close() error {
	sub.cancel()
	return nil
}

// Events exposes the channel an adapter reads notifications off.
func (sub *Subscriber) Events() <-chan realtime.Event {
	return sub.events
}
