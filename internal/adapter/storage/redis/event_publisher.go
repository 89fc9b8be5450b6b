package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"metacoin-ledger/internal/core/domain"

	goredis "github.com/redis/go-redis/v9"
)

// EventPublisher implements ports.EventPublisher over Redis pub/sub. Each
// committed receipt is published as JSON on one channel.
type EventPublisher struct {
	client  *goredis.Client
	channel string
}

// NewEventPublisher creates a publisher writing to channel.
func NewEventPublisher(client *goredis.Client, channel string) *EventPublisher {
	return &EventPublisher{client: client, channel: channel}
}

// Channel returns the pub/sub channel name.
func (p *EventPublisher) Channel() string {
	return p.channel
}

// Publish sends the receipt to current subscribers.
func (p *EventPublisher) Publish(ctx context.Context, receipt *domain.Receipt) error {
	payload, err := json.Marshal(receipt)
	if err != nil {
		return fmt.Errorf("marshal receipt: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}
