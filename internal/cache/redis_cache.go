package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"
)

type RedisCancelMarker struct {
	client *redis.Client
}

func NewRedisCancelMarker(addr string, password string, db int) *RedisCancelMarker {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisCancelMarker{client: client}
}

func (c *RedisCancelMarker) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCancelMarker) Close() error {
	return c.client.Close()
}

func (c *RedisCancelMarker) Get(ctx context.Context, saleID string) (*CancelRecord, bool, error) {
	val, err := c.client.Get(ctx, cancelKey(saleID)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var record CancelRecord
	if err := json.Unmarshal([]byte(val), &record); err != nil {
		return nil, false, err
	}
	return &record, true, nil
}

// Mark keeps the first recorded cancellation; later marks for the same sale
// are ignored.
func (c *RedisCancelMarker) Mark(ctx context.Context, record CancelRecord, ttl time.Duration) error {
	if record.SaleID == "" {
		return nil
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return c.client.SetNX(ctx, cancelKey(record.SaleID), payload, ttl).Err()
}
