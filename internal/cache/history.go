package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"statarb-spread/internal/model"
	"statarb-spread/internal/service"
)

// HistorySource 被包装的历史 K 线来源
type HistorySource interface {
	Klines(ctx context.Context, symbol, interval string) ([]model.Candle, error)
}

// CachedHistory 优先读缓存的历史来源。缓存读写失败只记录日志，按未命中处理。
type CachedHistory struct {
	source   HistorySource
	cache    KlineCache
	category string
	ttl      time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

func NewCachedHistory(source HistorySource, cache KlineCache, category string, ttl time.Duration, logger *zap.Logger) *CachedHistory {
	if logger == nil {
		logger = service.Logger
	}
	return &CachedHistory{
		source:   source,
		cache:    cache,
		category: category,
		ttl:      ttl,
		now:      time.Now,
		logger:   logger.With(zap.String("component", "kline_cache")),
	}
}

func (h *CachedHistory) Klines(ctx context.Context, symbol, interval string) ([]model.Candle, error) {
	key := Key(h.category, interval, symbol)

	candles, ok, err := h.cache.Get(ctx, key)
	switch {
	case err != nil:
		h.logger.Warn("Kline cache read failed", zap.String("key", key), zap.Error(err))
	case ok:
		h.logger.Debug("Kline cache hit", zap.String("key", key), zap.Int("count", len(candles)))
		return candles, nil
	}

	candles, err = h.source.Klines(ctx, symbol, interval)
	if err != nil {
		return nil, err
	}

	if ttl := h.ttlFor(interval); ttl > 0 {
		if err := h.cache.Set(ctx, key, candles, ttl); err != nil {
			h.logger.Warn("Kline cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return candles, nil
}

// ttlFor 缓存到当前 K 线结束为止，且不超过配置的 TTL。周、月周期直接用配置值。
func (h *CachedHistory) ttlFor(interval string) time.Duration {
	d, err := service.ParseIntervalDuration(interval)
	if err != nil || d > 24*time.Hour {
		return h.ttl
	}
	now := h.now()
	return min(h.ttl, now.Truncate(d).Add(d).Sub(now))
}
