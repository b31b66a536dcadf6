// Package consumer runs the intake loop: payloads from the settlement
// system's feed are handed to the kravgrunnlag mottak one at a time. A bad
// payload never stops the loop; an append race is retried a few times before
// the payload is given up for this delivery.
package consumer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/groblegark/sakd/internal/events"
	"github.com/groblegark/sakd/internal/kravgrunnlag"
	"github.com/groblegark/sakd/internal/store"
)

const appendRetries = 3

// Consumer drains the intake subject into the mottak service.
type Consumer struct {
	subscriber events.Subscriber
	mottak     *kravgrunnlag.Mottak
	log        *slog.Logger
}

// New creates an intake consumer.
func New(subscriber events.Subscriber, mottak *kravgrunnlag.Mottak, log *slog.Logger) *Consumer {
	if log == nil {
		log = slog.Default()
	}
	return &Consumer{subscriber: subscriber, mottak: mottak, log: log}
}

// Run subscribes to the intake subject and processes payloads until ctx is
// cancelled or the subscription channel closes.
func (c *Consumer) Run(ctx context.Context) error {
	ch, cancel, err := c.subscriber.Subscribe(events.TopicKravgrunnlagIntake)
	if err != nil {
		return err
	}
	defer cancel()

	c.log.Info("kravgrunnlag intake started", "subject", events.TopicKravgrunnlagIntake)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-ch:
			if !ok {
				return nil
			}
			c.handle(ctx, string(payload))
		}
	}
}

func (c *Consumer) handle(ctx context.Context, payload string) {
	var err error
	for attempt := 1; attempt <= appendRetries; attempt++ {
		err = c.mottak.Motta(ctx, payload)
		if !errors.Is(err, store.ErrVersjonskonflikt) {
			break
		}
		c.log.Warn("append race on intake, retrying", "attempt", attempt)
		if !backoff(ctx, time.Duration(attempt)*50*time.Millisecond) {
			return
		}
	}
	if err != nil {
		// Infrastructure failure. The payload is already retained raw when the
		// store was reachable; log and move on.
		c.log.Error("intake payload failed", "error", err)
	}
}

// backoff waits for d, or returns false immediately when ctx is cancelled so
// shutdown is not held up by a retry pause.
func backoff(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
