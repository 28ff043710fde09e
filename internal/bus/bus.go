// Package bus carries engine notifications to registered observers.
package bus

import (
	"log/slog"
	"reflect"

	"github.com/cskr/pubsub"
)

// Topics published by the engine.
const (
	TopicNetworkChanged = "network_changed"
	TopicQueueDrained   = "queue_drained"
	TopicQualitySampled = "quality_sampled"
)

type Subscription chan interface{}

// Bus is a small wrapper over pubsub with debug logging. Subscriber
// channels are closed on unsubscribe, so consumers can range over them.
type Bus struct {
	ps     *pubsub.PubSub
	logger *slog.Logger
}

// New creates a bus with a buffered subscriber capacity.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		ps:     pubsub.New(128),
		logger: logger,
	}
}

func (b *Bus) Publish(topic string, msg interface{}) {
	b.logger.Debug("publish", "topic", topic, "payload_type", payloadType(msg))
	b.ps.Pub(msg, topic)
}

func (b *Bus) Subscribe(topic string) Subscription {
	ch := b.ps.Sub(topic)
	b.logger.Debug("subscribe", "topic", topic)
	return ch
}

func (b *Bus) Unsubscribe(ch Subscription, topics ...string) {
	if len(topics) == 0 {
		b.ps.Unsub(ch)
		b.logger.Debug("unsubscribe", "mode", "all")
		return
	}
	b.ps.Unsub(ch, topics...)
	b.logger.Debug("unsubscribe", "topics", topics)
}

func (b *Bus) Close() {
	b.ps.Shutdown()
}

func payloadType(v interface{}) string {
	if v == nil {
		return "<nil>"
	}
	return reflect.TypeOf(v).String()
}
