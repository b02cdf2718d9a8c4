package event

import (
	"context"

	"github.com/viant/kernsim/internal/clock"
	"github.com/viant/kernsim/service/messaging"
)

// queueStats is implemented by queues that report their backlog.
type queueStats interface {
	Size() int
	DLQSize() int
}

type Publisher[T any] struct {
	queue messaging.Queue[Event[T]]
}

func NewPublisher[T any](queue messaging.Queue[Event[T]]) *Publisher[T] {
	return &Publisher[T]{
		queue: queue,
	}
}

// Publish stamps the event and enqueues it.  A nil publisher drops events.
func (p *Publisher[T]) Publish(ctx context.Context, event *Event[T]) error {
	if p == nil {
		return nil
	}
	event.CreatedAt = clock.Now()
	return p.queue.Publish(ctx, event)
}

// Consume returns the next event, acknowledging it.
func (p *Publisher[T]) Consume(ctx context.Context) (*Event[T], error) {
	msg, err := p.queue.Consume(ctx)
	if err != nil || msg == nil {
		return nil, err
	}
	if err = msg.Ack(); err != nil {
		return nil, err
	}
	return msg.T(), nil
}

// deliver hands the next event to handler, acking on success and nacking on
// failure.
func (p *Publisher[T]) deliver(ctx context.Context, handler Handler[T]) error {
	msg, err := p.queue.Consume(ctx)
	if err != nil {
		return err
	}
	if hErr := handler(msg.T()); hErr != nil {
		return msg.Nack(hErr)
	}
	return msg.Ack()
}

// Pending returns the number of queued events.
func (p *Publisher[T]) Pending() int {
	if p == nil {
		return 0
	}
	if stats, ok := p.queue.(queueStats); ok {
		return stats.Size()
	}
	return 0
}

// DeadLettered returns the number of events whose handler kept failing.
func (p *Publisher[T]) DeadLettered() int {
	if p == nil {
		return 0
	}
	if stats, ok := p.queue.(queueStats); ok {
		return stats.DLQSize()
	}
	return 0
}
