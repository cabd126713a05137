package spread

import (
	"context"

	"statarb-spread/internal/model"
)

// HistorySource 历史 K 线来源（REST 或带缓存的包装）
type HistorySource interface {
	Klines(ctx context.Context, symbol, interval string) ([]model.Candle, error)
}

// LiveFeed 实时 K 线推送。取消未订阅的频道应返回 model.ErrNotSubscribed。
type LiveFeed interface {
	Subscribe(ctx context.Context, category string, topics []string) error
	Unsubscribe(ctx context.Context, category string, topics []string) error
	AddListener(fn func(model.KlineMessage)) (remove func())
}
