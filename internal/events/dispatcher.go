// Package events delivers committed pool events from the store outbox to
// external sinks. Delivery is at-least-once and in commit order; sinks
// dedupe by event ID.
package events

import (
	"context"
	"time"

	"shieldpool/internal/metrics"
	"shieldpool/internal/pool"

	"github.com/sirupsen/logrus"
)

// Outbox is the store side of the event log.
type Outbox interface {
	PendingEvents(ctx context.Context, limit int) ([]pool.Event, error)
	MarkPublished(ctx context.Context, ids []string) error
	CountPending(ctx context.Context) (int64, error)
}

// Publisher is an event sink.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, ev pool.Event) error
}

// Dispatcher drains the outbox into its publishers.
type Dispatcher struct {
	outbox     Outbox
	publishers []Publisher
	logger     logrus.FieldLogger
	batchSize  int
	interval   time.Duration
	wake       chan struct{}
}

// NewDispatcher creates a Dispatcher. interval bounds how long a committed
// event waits when no Notify arrives.
func NewDispatcher(outbox Outbox, logger logrus.FieldLogger, batchSize int, interval time.Duration, publishers ...Publisher) *Dispatcher {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Dispatcher{
		outbox:     outbox,
		publishers: publishers,
		logger:     logger.WithField("component", "dispatcher"),
		batchSize:  batchSize,
		interval:   interval,
		wake:       make(chan struct{}, 1),
	}
}

// Notify wakes Run without blocking.
func (d *Dispatcher) Notify() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Run dispatches until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		for {
			n, err := d.DispatchOnce(ctx)
			if err != nil {
				d.logger.WithError(err).Warn("Event dispatch failed, will retry")
				break
			}
			if n < d.batchSize {
				break
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-d.wake:
		case <-ticker.C:
		}
	}
}

// DispatchOnce publishes one batch and returns how many events were
// delivered to every publisher. It stops at the first failure so later
// events are never delivered ahead of an earlier one.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (int, error) {
	batch, err := d.outbox.PendingEvents(ctx, d.batchSize)
	if err != nil {
		return 0, err
	}

	delivered := make([]string, 0, len(batch))
	var publishErr error
	for _, ev := range batch {
		if publishErr = d.publish(ctx, ev); publishErr != nil {
			break
		}
		delivered = append(delivered, ev.ID)
	}

	if len(delivered) > 0 {
		if err := d.outbox.MarkPublished(ctx, delivered); err != nil {
			return 0, err
		}
	}
	if backlog, err := d.outbox.CountPending(ctx); err == nil {
		metrics.OutboxBacklog.Set(float64(backlog))
	}
	return len(delivered), publishErr
}

func (d *Dispatcher) publish(ctx context.Context, ev pool.Event) error {
	for _, p := range d.publishers {
		if err := p.Publish(ctx, ev); err != nil {
			metrics.EventPublishFailures.WithLabelValues(p.Name()).Inc()
			d.logger.WithError(err).WithFields(logrus.Fields{
				"sink":     p.Name(),
				"event_id": ev.ID,
				"seq":      ev.Seq,
				"kind":     ev.Kind,
			}).Warn("Publish failed")
			return err
		}
		metrics.EventsPublished.WithLabelValues(p.Name(), string(ev.Kind)).Inc()
	}
	return nil
}
