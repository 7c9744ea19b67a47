package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/oddsline/settled/internal/domain"
)

// Bus is an in-memory event bus. Publish fans each event out to every
// subscriber of its topic plus wildcard subscribers; slow subscribers drop
// messages rather than block the publisher.
type Bus struct {
	mu   sync.RWMutex
	subs map[domain.EventTopic][]chan []byte
}

// NewBus creates an empty in-memory event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[domain.EventTopic][]chan []byte)}
}

// Publish marshals the event and delivers it to subscribers of its topic.
func (b *Bus) Publish(ctx context.Context, ev domain.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("memory bus: marshal event: %w", err)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs[ev.Topic] {
		select {
		case ch <- data:
		default:
		}
	}
	for _, ch := range b.subs[domain.EventTopicAll] {
		select {
		case ch <- data:
		default:
		}
	}
	return nil
}

// Subscribe registers a channel for the topic. The channel closes when the
// context is cancelled.
func (b *Bus) Subscribe(ctx context.Context, topic domain.EventTopic) (<-chan []byte, error) {
	ch := make(chan []byte, 64)

	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], ch)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		chans := b.subs[topic]
		for i, c := range chans {
			if c == ch {
				b.subs[topic] = append(chans[:i], chans[i+1:]...)
				close(ch)
				break
			}
		}
	}()

	return ch, nil
}

var (
	_ domain.EventPublisher  = (*Bus)(nil)
	_ domain.EventSubscriber = (*Bus)(nil)
)
