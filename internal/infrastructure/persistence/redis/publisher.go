package redis

import (
	"context"
	"time"

	"github.com/youlearn/youlearn-progress/internal/domain/shared"
)

// Publisher fans domain events out on Redis pub/sub, one channel per event type.
type Publisher struct {
	cache   *Cache
	timeout time.Duration
}

// NewPublisher creates a Publisher.
func NewPublisher(cache *Cache) *Publisher {
	return &Publisher{cache: cache, timeout: 2 * time.Second}
}

// Publish implements shared.EventPublisher.
func (p *Publisher) Publish(event shared.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	return p.cache.Publish(ctx, PubSubChannel(string(event.EventType())), shared.Envelope(event))
}
