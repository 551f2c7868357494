package bus

import (
	"context"
	"log/slog"
	"reflect"
	"sync"

	"github.com/cskr/pubsub"
)

const DefaultCapacity = 128

type Subscription chan any

// MessageBus fans out connector and controller events by topic.
type MessageBus interface {
	Publish(topic string, msg any)
	Subscribe(topics ...string) Subscription
	Unsubscribe(ch Subscription, topics ...string)
	Close()
}

type PubSubBus struct {
	ps        *pubsub.PubSub
	logger    *slog.Logger
	closeOnce sync.Once
}

func New(logger *slog.Logger, capacity int) *PubSubBus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PubSubBus{
		ps:     pubsub.New(capacity),
		logger: logger,
	}
}

func (b *PubSubBus) Publish(topic string, msg any) {
	b.logger.Debug("publish", "topic", topic, "payload_type", payloadType(msg))
	b.ps.Pub(msg, topic)
}

func (b *PubSubBus) Subscribe(topics ...string) Subscription {
	ch := b.ps.Sub(topics...)
	b.logger.Debug("subscribe", "topics", topics)

	return ch
}

func (b *PubSubBus) Unsubscribe(ch Subscription, topics ...string) {
	if len(topics) == 0 {
		b.ps.Unsub(ch)
		b.logger.Debug("unsubscribe", "mode", "all")
		return
	}
	b.ps.Unsub(ch, topics...)
	b.logger.Debug("unsubscribe", "topics", topics)
}

func (b *PubSubBus) Close() {
	b.closeOnce.Do(b.ps.Shutdown)
}

// Listen delivers every payload of type T published on topic to fn until
// ctx is done or the bus closes. Payloads of other types are skipped.
func Listen[T any](ctx context.Context, b MessageBus, topic string, fn func(T)) {
	sub := b.Subscribe(topic)
	go func() {
		for {
			select {
			case <-ctx.Done():
				// pubsub closes the channel once unsubscribed; keep draining
				// until then so its dispatcher never blocks on us.
				go b.Unsubscribe(sub, topic)
				for range sub {
				}
				return
			case raw, ok := <-sub:
				if !ok {
					return
				}
				if msg, ok := raw.(T); ok {
					fn(msg)
				}
			}
		}
	}()
}

func payloadType(v any) string {
	if v == nil {
		return "<nil>"
	}

	return reflect.TypeOf(v).String()
}
