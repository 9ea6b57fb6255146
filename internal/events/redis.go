package events

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisChannel is the pub/sub channel shared by all service instances
const RedisChannel = "checklist-engine:events"

// RedisBroker publishes events over Redis pub/sub so every instance behind
// a load balancer sees every change
type RedisBroker struct {
	client *redis.Client
	pubsub *redis.PubSub
	local  *LocalBroker
	done   chan struct{}
}

// NewRedisBroker subscribes to RedisChannel and starts forwarding messages
// to local subscribers
func NewRedisBroker(ctx context.Context, client *redis.Client) (*RedisBroker, error) {
	pubsub := client.Subscribe(ctx, RedisChannel)

	// Wait for the subscription to be confirmed
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", RedisChannel, err)
	}

	b := &RedisBroker{
		client: client,
		pubsub: pubsub,
		local:  NewLocalBroker(),
		done:   make(chan struct{}),
	}

	go b.forward()

	return b, nil
}

func (b *RedisBroker) forward() {
	defer close(b.done)

	for msg := range b.pubsub.Channel() {
		ev, err := decodeEvent([]byte(msg.Payload))
		if err != nil {
			slog.Warn("dropping malformed event", "channel", msg.Channel, "error", err)
			continue
		}
		if err := b.local.Publish(context.Background(), ev); err != nil {
			return
		}
	}
}

// Publish sends ev to every instance, including this one
func (b *RedisBroker) Publish(ctx context.Context, ev ChecklistEvent) error {
	data, err := encodeEvent(ev)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, RedisChannel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Subscribe streams events for one checklist until ctx is done
func (b *RedisBroker) Subscribe(ctx context.Context, checklistID string) (<-chan ChecklistEvent, error) {
	return b.local.Subscribe(ctx, checklistID)
}

// Ping checks Redis connectivity
func (b *RedisBroker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close stops forwarding and closes local subscriptions. The Redis client
// is owned by the caller.
func (b *RedisBroker) Close() error {
	err := b.pubsub.Close()
	<-b.done
	b.local.Close()
	return err
}
