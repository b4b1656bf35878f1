package client

import (
	"context"
	"time"

	"github.com/configstream/configstream-go/pkg/config"
	"github.com/configstream/configstream-go/pkg/logging"
	"github.com/configstream/configstream-go/pkg/observability"
	"github.com/configstream/configstream-go/pkg/streamerrors"
)

// Handler receives each successfully decoded configuration update. Handlers
// run on the dispatcher goroutine, one at a time, in stream arrival order; a
// slow handler exerts backpressure on the reader through the bounded queue.
type Handler func(ctx context.Context, payload config.Payload) error

// update is one queue entry between the reader and the dispatcher
type update struct {
	payload   config.Payload
	eventType string
	eventID   string
}

// dispatcher drains the update queue and invokes the caller's handler.
// Handler panics and errors are isolated: they are logged and counted but
// never stop the stream.
type dispatcher struct {
	handler Handler
	logger  logging.Logger
	metrics observability.MetricsProvider

	// onDelivered fires after each delivery so the listener can reset its
	// consecutive-failure count.
	onDelivered func()
}

// run consumes updates until the queue is closed or ctx is cancelled
func (d *dispatcher) run(ctx context.Context, queue <-chan update) error {
	for {
		select {
		case u, ok := <-queue:
			if !ok {
				return nil
			}
			d.deliver(ctx, u)
		case <-ctx.Done():
			return nil
		}
	}
}

func (d *dispatcher) deliver(ctx context.Context, u update) {
	start := time.Now()
	err := d.invoke(ctx, u)
	if d.onDelivered != nil {
		d.onDelivered()
	}

	if err != nil {
		d.logger.WithError(err).Error("Update handler failed",
			logging.String("event_type", u.eventType),
			logging.String("event_id", u.eventID))
		d.metrics.RecordHandlerFailure(ctx)
		return
	}

	d.logger.Debug("Delivered configuration update",
		logging.String("event_type", u.eventType),
		logging.String("event_id", u.eventID),
		logging.Duration("handler_duration", time.Since(start)))
	d.metrics.RecordEvent(ctx, u.eventType, time.Since(start))
}

// invoke calls the handler with panic recovery
func (d *dispatcher) invoke(ctx context.Context, u update) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = streamerrors.HandlerFailure(r)
		}
	}()
	return d.handler(ctx, u.payload)
}
