package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"statarb-spread/internal/model"
	"statarb-spread/internal/service"
)

// RESTClient Bybit v5 公共行情 REST 接口
type RESTClient struct {
	baseURL  string
	category string
	limit    int
	client   *http.Client
	logger   *zap.Logger
}

// NewRESTClient limit 为每次拉取的 K 线条数（Bybit 上限 1000）
func NewRESTClient(baseURL, category string, limit int, timeout time.Duration, logger *zap.Logger) *RESTClient {
	if logger == nil {
		logger = service.Logger
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RESTClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		category: category,
		limit:    limit,
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With(zap.String("component", "bybit_rest"), zap.String("category", category)),
	}
}

// Category 行情类别
func (c *RESTClient) Category() string { return c.category }

// Klines 拉取最近 limit 根 K 线。返回顺序与交易所一致（新的在前），调用方自行排序。
func (c *RESTClient) Klines(ctx context.Context, symbol, interval string) ([]model.Candle, error) {
	if _, err := service.ParseIntervalDuration(interval); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("category", c.category)
	q.Set("symbol", symbol)
	q.Set("interval", interval)
	q.Set("limit", strconv.Itoa(c.limit))

	start := time.Now()
	result, err := getJSON[klineResult](ctx, c, "/v5/market/kline", q)
	if err != nil {
		return nil, err
	}

	candles := make([]model.Candle, 0, len(result.List))
	for _, row := range result.List {
		candle, err := decodeRESTKline(symbol, interval, row)
		if err != nil {
			return nil, err
		}
		candles = append(candles, candle)
	}

	c.logger.Debug("Fetched klines",
		zap.String("symbol", symbol),
		zap.String("interval", interval),
		zap.Int("count", len(candles)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return candles, nil
}

// Symbols 当前交易中的合约列表，自动翻页
func (c *RESTClient) Symbols(ctx context.Context) ([]string, error) {
	var (
		symbols []string
		cursor  string
	)
	for {
		q := url.Values{}
		q.Set("category", c.category)
		q.Set("limit", "1000")
		if cursor != "" {
			q.Set("cursor", cursor)
		}

		result, err := getJSON[instrumentsResult](ctx, c, "/v5/market/instruments-info", q)
		if err != nil {
			return nil, err
		}
		for _, inst := range result.List {
			if inst.Status == "" || inst.Status == "Trading" {
				symbols = append(symbols, inst.Symbol)
			}
		}
		if result.NextPageCursor == "" || result.NextPageCursor == cursor {
			return symbols, nil
		}
		cursor = result.NextPageCursor
	}
}

func getJSON[T any](ctx context.Context, c *RESTClient, path string, q url.Values) (T, error) {
	var zero T

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return zero, fmt.Errorf("build request %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return zero, fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return zero, fmt.Errorf("GET %s: http %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out restResponse[T]
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return zero, fmt.Errorf("decode %s: %w", path, err)
	}
	if out.RetCode != 0 {
		return zero, &APIError{Path: path, Code: out.RetCode, Message: out.RetMsg}
	}
	return out.Result, nil
}
