package events

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher publishes each event on the Redis channel named after its
// type, so gateway subscribers can forward it over SSE.
type RedisPublisher struct {
	rdb redis.UniversalClient
}

func NewRedisPublisher(rdb redis.UniversalClient) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

func (p *RedisPublisher) Publish(ctx context.Context, evt Event) error {
	if err := p.rdb.Publish(ctx, evt.Type, evt.Encode()).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", evt.Type, err)
	}
	return nil
}
