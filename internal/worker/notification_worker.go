// Package worker runs the background loops of coparent-worker and
// recurring-worker.
package worker

import (
	"context"
	"errors"
	"time"

	"coparent/internal/amqp"
	"coparent/internal/log"
)

// Consumer delivers broker envelopes to a handler until ctx ends or the
// connection drops. *amqp.Client satisfies it.
type Consumer interface {
	Consume(ctx context.Context, handler func(context.Context, *amqp.Envelope) error) error
}

// EventHandler is what the worker does with each envelope.
// *notify.Dispatcher satisfies it.
type EventHandler interface {
	HandleEvent(ctx context.Context, env *amqp.Envelope) error
}

// NotificationWorker feeds broker events to the notification dispatcher and
// resubscribes after the connection drops.
type NotificationWorker struct {
	consumer   Consumer
	handler    EventHandler
	logger     *log.Logger
	minBackoff time.Duration
	maxBackoff time.Duration
}

func NewNotificationWorker(consumer Consumer, handler EventHandler, logger *log.Logger) *NotificationWorker {
	if logger == nil {
		logger = log.Discard()
	}
	return &NotificationWorker{
		consumer:   consumer,
		handler:    handler,
		logger:     logger.WithComponent(log.ComponentWorker),
		minBackoff: time.Second,
		maxBackoff: 30 * time.Second,
	}
}

// Run blocks until ctx ends.
func (w *NotificationWorker) Run(ctx context.Context) {
	backoff := w.minBackoff
	for {
		started := time.Now()
		err := w.consumer.Consume(ctx, w.handler.HandleEvent)
		if ctx.Err() != nil {
			w.logger.InfoContext(ctx, "Notification worker stopped")
			return
		}
		if err == nil {
			err = errors.New("consumer returned")
		}
		// A subscription that lived a while resets the backoff.
		if time.Since(started) > w.maxBackoff {
			backoff = w.minBackoff
		}
		w.logger.WarnContext(ctx, "Event consumption interrupted, resubscribing",
			log.FieldError, err, "retry_in", backoff)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, w.maxBackoff)
	}
}
