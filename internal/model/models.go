package model

import "time"

// Candle 单根 K 线，时间戳为开盘时间（毫秒）
type Candle struct {
	Symbol    string  `json:"symbol"`
	Interval  string  `json:"interval"` // 交易所周期标识，例如 "1", "15", "60", "D"
	StartTime int64   `json:"start"`    // 开盘时间（毫秒）
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	Confirm   bool    `json:"confirm"` // K 线已收盘（实时推送中才有意义）
}

// StartSeconds 开盘时间（整秒），用于图表时间轴
func (c Candle) StartSeconds() int64 {
	return c.StartTime / 1000
}

// Start 开盘时间
func (c Candle) Start() time.Time {
	return time.UnixMilli(c.StartTime)
}

// KlineMessage 实时推送中的一批 K 线更新，按来源频道 topic 标记
type KlineMessage struct {
	Topic     string // kline.<interval>.<symbol>
	Candles   []Candle
	Timestamp int64 // 推送时间（毫秒）
}

// ChartPoint 图表上的一个残差点
type ChartPoint struct {
	Time  int64   `json:"time"` // unix 秒
	Value float64 `json:"value"`
}
