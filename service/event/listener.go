package event

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
)

// Handler processes one event.  A returned error nacks the event, so it is
// redelivered until the queue's retries are exhausted.
type Handler[T any] func(*Event[T]) error

// Listener drains a publisher on its own goroutine until stopped.
type Listener[T any] struct {
	publisher *Publisher[T]
	handler   Handler[T]
	logger    *logrus.Entry
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewListener[T any](publisher *Publisher[T], handler Handler[T], logger *logrus.Entry) *Listener[T] {
	ctx, cancel := context.WithCancel(context.Background())
	return &Listener[T]{
		publisher: publisher,
		handler:   handler,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// Stop cancels the listener and waits for its goroutine to return.  Events
// queued before Stop are still handed to the handler.
func (l *Listener[T]) Stop() {
	l.cancel()
	<-l.done
}

func (l *Listener[T]) Start() {
	go func() {
		defer close(l.done)
		for {
			err := l.publisher.deliver(l.ctx, l.handle)
			if err == nil {
				continue
			}
			if errors.Is(err, context.Canceled) {
				return
			}
			l.logger.WithError(err).Warn("failed to consume event")
		}
	}()
}

func (l *Listener[T]) handle(event *Event[T]) error {
	err := l.handler(event)
	if err != nil {
		l.logger.WithError(err).WithField("eventType", event.Context.EventType).Warn("event handler failed")
	}
	return err
}
