package api

import (
	"encoding/json"
	"fmt"

	"statarb-spread/internal/model"
	"statarb-spread/internal/service"
)

// wsRequest Bybit v5 WS 请求：subscribe / unsubscribe / ping
type wsRequest struct {
	ReqID string   `json:"req_id,omitempty"`
	Op    string   `json:"op"`
	Args  []string `json:"args,omitempty"`
}

// wsResponse 操作应答与数据推送共用的外层结构
type wsResponse struct {
	Topic   string          `json:"topic"`
	Type    string          `json:"type"`
	Ts      int64           `json:"ts"`
	Data    json.RawMessage `json:"data"` // 按 topic 延迟解析
	Op      string          `json:"op"`
	Success *bool           `json:"success"`
	RetMsg  string          `json:"ret_msg"`
	ReqID   string          `json:"req_id"`
}

// wsKline kline.<interval>.<symbol> 推送中的单根 K 线，价格为字符串
type wsKline struct {
	Start     int64  `json:"start"`
	End       int64  `json:"end"`
	Interval  string `json:"interval"`
	Open      string `json:"open"`
	Close     string `json:"close"`
	High      string `json:"high"`
	Low       string `json:"low"`
	Volume    string `json:"volume"`
	Turnover  string `json:"turnover"`
	Confirm   bool   `json:"confirm"`
	Timestamp int64  `json:"timestamp"`
}

// decodeWSKlines 解析 kline 推送的 data 数组
func decodeWSKlines(topic string, data json.RawMessage) ([]model.Candle, error) {
	interval, symbol, ok := model.ParseKlineTopic(topic)
	if !ok {
		return nil, fmt.Errorf("not a kline topic: %q", topic)
	}

	var raw []wsKline
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("kline data: %w", err)
	}

	candles := make([]model.Candle, 0, len(raw))
	for _, k := range raw {
		c := model.Candle{
			Symbol:    symbol,
			Interval:  interval,
			StartTime: k.Start,
			Confirm:   k.Confirm,
		}
		var err error
		if c.Open, err = service.StringToFloat(k.Open); err != nil {
			return nil, fmt.Errorf("kline %s@%d open: %w", symbol, k.Start, err)
		}
		if c.High, err = service.StringToFloat(k.High); err != nil {
			return nil, fmt.Errorf("kline %s@%d high: %w", symbol, k.Start, err)
		}
		if c.Low, err = service.StringToFloat(k.Low); err != nil {
			return nil, fmt.Errorf("kline %s@%d low: %w", symbol, k.Start, err)
		}
		if c.Close, err = service.StringToFloat(k.Close); err != nil {
			return nil, fmt.Errorf("kline %s@%d close: %w", symbol, k.Start, err)
		}
		if c.Volume, err = service.StringToFloat(k.Volume); err != nil {
			return nil, fmt.Errorf("kline %s@%d volume: %w", symbol, k.Start, err)
		}
		candles = append(candles, c)
	}
	return candles, nil
}

// restResponse Bybit v5 REST 通用响应
type restResponse[T any] struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  T      `json:"result"`
	Time    int64  `json:"time"`
}

// klineResult /v5/market/kline 的 result，list 按时间倒序
type klineResult struct {
	Category string     `json:"category"`
	Symbol   string     `json:"symbol"`
	List     [][]string `json:"list"` // [startTime, open, high, low, close, volume, turnover]
}

// instrumentsResult /v5/market/instruments-info 的 result
type instrumentsResult struct {
	Category       string `json:"category"`
	NextPageCursor string `json:"nextPageCursor"`
	List           []struct {
		Symbol string `json:"symbol"`
		Status string `json:"status"`
	} `json:"list"`
}

// decodeRESTKline 解析 REST K 线元组
func decodeRESTKline(symbol, interval string, row []string) (model.Candle, error) {
	if len(row) < 6 {
		return model.Candle{}, fmt.Errorf("kline row has %d fields, want >= 6", len(row))
	}
	start, err := service.StringToInt64(row[0])
	if err != nil {
		return model.Candle{}, fmt.Errorf("kline start %q: %w", row[0], err)
	}

	var prices [5]float64
	for i := range prices {
		if prices[i], err = service.StringToFloat(row[i+1]); err != nil {
			return model.Candle{}, fmt.Errorf("kline %s@%d field %d: %w", symbol, start, i+1, err)
		}
	}
	return model.Candle{
		Symbol:    symbol,
		Interval:  interval,
		StartTime: start,
		Open:      prices[0],
		High:      prices[1],
		Low:       prices[2],
		Close:     prices[3],
		Volume:    prices[4],
	}, nil
}
