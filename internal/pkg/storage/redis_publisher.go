package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Vodeneev/livewatch/internal/pkg/config"
	"github.com/Vodeneev/livewatch/internal/pkg/models"
)

// Envelope is the payload published on Redis channels.
type Envelope struct {
	Type   string              `json:"type"`
	Batch  *models.Batch       `json:"batch,omitempty"`
	Status *models.StatusEvent `json:"status,omitempty"`
	Text   string              `json:"text,omitempty"`
}

// RedisPublisher mirrors the latest snapshot into a key and publishes every batch and status.
type RedisPublisher struct {
	client        *redis.Client
	channel       string
	statusChannel string
	snapshotKey   string
	snapshotTTL   time.Duration
}

// NewRedisPublisher connects and pings Redis.
func NewRedisPublisher(ctx context.Context, cfg *config.RedisConfig) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Check connection
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisPublisher{
		client:        client,
		channel:       cfg.Channel,
		statusChannel: cfg.StatusChannel,
		snapshotKey:   cfg.SnapshotKey,
		snapshotTTL:   cfg.SnapshotTTL,
	}, nil
}

func (r *RedisPublisher) Name() string { return "redis" }

// PublishBatch stores the batch under the snapshot key and publishes it.
func (r *RedisPublisher) PublishBatch(ctx context.Context, b models.Batch) error {
	data, err := encodeBatch(b)
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.snapshotKey, data, r.snapshotTTL)
	pipe.Publish(ctx, r.channel, data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish batch: %w", err)
	}
	return nil
}

// PublishStatus publishes the event on the status channel.
func (r *RedisPublisher) PublishStatus(ctx context.Context, e models.StatusEvent) error {
	data, err := encodeStatus(e)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.statusChannel, data).Err()
}

// LatestSnapshot reads back the snapshot key. ok is false when the key is missing or expired.
func (r *RedisPublisher) LatestSnapshot(ctx context.Context) (models.Batch, bool, error) {
	data, err := r.client.Get(ctx, r.snapshotKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Batch{}, false, nil
	}
	if err != nil {
		return models.Batch{}, false, fmt.Errorf("failed to get snapshot: %w", err)
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return models.Batch{}, false, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if env.Batch == nil {
		return models.Batch{}, false, nil
	}
	return *env.Batch, true, nil
}

// Close closes connection with Redis
func (r *RedisPublisher) Close() error {
	return r.client.Close()
}

func encodeBatch(b models.Batch) ([]byte, error) {
	data, err := json.Marshal(Envelope{Type: "batch", Batch: &b})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal batch: %w", err)
	}
	return data, nil
}

func encodeStatus(e models.StatusEvent) ([]byte, error) {
	data, err := json.Marshal(Envelope{Type: "status", Status: &e, Text: e.Text()})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal status: %w", err)
	}
	return data, nil
}
