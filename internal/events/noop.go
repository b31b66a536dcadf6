package events

import "context"

// NoopPublisher swallows notifications. It stands in for NATS when
// SAKD_NATS_URL is unset; the hendelse log itself is the source of truth, the
// notifications are only a convenience for listeners.
type NoopPublisher struct{}

func (n *NoopPublisher) Publish(ctx context.Context, topic string, event any) error {
	return nil
}

func (n *NoopPublisher) Close() error {
	return nil
}
