package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"statarb-spread/internal/model"
)

// RedisCache K 线以 JSON 存入 Redis，过期由 SET EX 控制
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// NewRedisClient 建立连接并 Ping 一次
func NewRedisClient(ctx context.Context, addr string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]model.Candle, bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}

	var candles []model.Candle
	if err := json.Unmarshal(data, &candles); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal cached klines %s: %w", key, err)
	}
	return candles, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, candles []model.Candle, ttl time.Duration) error {
	if ttl <= 0 {
		return c.client.Del(ctx, key).Err()
	}
	data, err := json.Marshal(candles)
	if err != nil {
		return fmt.Errorf("failed to marshal klines: %w", err)
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}
