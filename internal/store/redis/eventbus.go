package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/oddsline/settled/internal/domain"
)

// streamMaxLen is the approximate maximum length for the event stream,
// enforced via XADD MAXLEN ~.
const streamMaxLen int64 = 10000

// eventStream is the durable, ordered stream indexers catch up from.
const eventStream = "events"

// EventBus publishes engine events over Redis Pub/Sub for live consumers and
// appends them to a capped Redis Stream for consumers that poll.
type EventBus struct {
	rdb *redis.Client
}

// NewEventBus creates an EventBus backed by the given Client.
func NewEventBus(c *Client) *EventBus {
	return &EventBus{rdb: c.Underlying()}
}

// Publish serializes the event and fans it out to the topic channel and the
// event stream. Delivery is best-effort; the engine treats failures as
// non-fatal.
func (b *EventBus) Publish(ctx context.Context, ev domain.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("redis: marshal event %s: %w", ev.Topic, err)
	}

	pipe := b.rdb.Pipeline()
	pipe.Publish(ctx, ev.Channel(), payload)
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: eventStream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"topic":   string(ev.Topic),
			"payload": payload,
		},
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: publish event %s: %w", ev.Topic, err)
	}
	return nil
}

// Subscribe creates a Pub/Sub subscription for a topic ("*" subscribes to
// every topic) and returns a channel of raw event payloads. The subscription
// closes with the context.
func (b *EventBus) Subscribe(ctx context.Context, topic domain.EventTopic) (<-chan []byte, error) {
	channel := "events:" + string(topic)

	var pubsub *redis.PubSub
	if hasPattern(channel) {
		pubsub = b.rdb.PSubscribe(ctx, channel)
	} else {
		pubsub = b.rdb.Subscribe(ctx, channel)
	}

	// Verify the subscription is established by receiving the confirmation.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	out := make(chan []byte, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// hasPattern returns true when the channel includes glob-style wildcards, in
// which case PSubscribe must be used instead of Subscribe.
func hasPattern(channel string) bool {
	return strings.ContainsAny(channel, "*?[")
}

// Compile-time interface checks.
var (
	_ domain.EventPublisher  = (*EventBus)(nil)
	_ domain.EventSubscriber = (*EventBus)(nil)
)
