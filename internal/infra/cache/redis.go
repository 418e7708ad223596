package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"certledger/internal/domain"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "certledger:verify:"

type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) (*Redis, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	return &Redis{client: client}, nil
}

func (c *Redis) Get(ctx context.Context, key string) (*domain.VerificationResult, bool, error) {
	raw, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var result domain.VerificationResult
	if err := json.Unmarshal(raw, &result); err != nil {
		// A corrupt entry is treated as a miss; it will be overwritten.
		return nil, false, nil
	}
	return &result, true, nil
}

func (c *Redis) Put(ctx context.Context, key string, result domain.VerificationResult, ttl time.Duration) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, keyPrefix+key, raw, ttl).Err()
}

var _ domain.VerificationCache = (*Redis)(nil)
