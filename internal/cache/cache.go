package cache

import (
	"context"
	"fmt"
	"time"

	"statarb-spread/internal/model"
)

// KlineCache 历史 K 线缓存。未命中返回 (nil, false, nil)。
type KlineCache interface {
	Get(ctx context.Context, key string) ([]model.Candle, bool, error)
	Set(ctx context.Context, key string, candles []model.Candle, ttl time.Duration) error
}

// Key klines:<category>:<interval>:<symbol>
func Key(category, interval, symbol string) string {
	return fmt.Sprintf("klines:%s:%s:%s", category, interval, symbol)
}
