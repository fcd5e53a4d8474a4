package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/akagifreeez/gemini-key-pool/internal/models"
)

// Publisher broadcasts failure entries on a Redis pub/sub channel so other
// processes can follow the proxy's failures. Nothing is stored.
type Publisher struct {
	client  *redis.Client
	channel string
}

// NewPublisher connects to Redis and verifies the connection
func NewPublisher(redisURL, channel string) (*Publisher, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewPublisherWithClient(client, channel), nil
}

// NewPublisherWithClient wraps an existing client
func NewPublisherWithClient(client *redis.Client, channel string) *Publisher {
	return &Publisher{
		client:  client,
		channel: channel,
	}
}

// Channel returns the pub/sub channel entries are published on
func (p *Publisher) Channel() string {
	return p.channel
}

// NotifyFailure publishes entry as JSON. The secret is masked before it leaves the process.
func (p *Publisher) NotifyFailure(ctx context.Context, entry models.ErrorLogEntry) {
	if entry.KeyID != models.NoKeySentinel {
		entry.KeyID = models.MaskKey(entry.KeyID)
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode failure event")
		return
	}

	receivers, err := p.client.Publish(ctx, p.channel, payload).Result()
	if err != nil {
		log.Warn().Err(err).Str("channel", p.channel).Msg("Failed to publish failure event")
		return
	}
	log.Debug().Int64("receivers", receivers).Str("channel", p.channel).Msg("Failure event published")
}

// Close closes the Redis client
func (p *Publisher) Close() error {
	return p.client.Close()
}
