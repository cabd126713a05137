package api

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"statarb-spread/internal/model"
	"statarb-spread/internal/service"
)

// ConnectorConfig Bybit 公共 WS 连接参数
type ConnectorConfig struct {
	Category          string        // linear / inverse / spot，决定 WS 端点
	ReconnectDelay    time.Duration // 首次重连等待
	MaxReconnectDelay time.Duration // 指数退避上限
	PingInterval      time.Duration // Bybit 要求 20s 心跳
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
}

// DefaultConnectorConfig linear 合约的默认参数
func DefaultConnectorConfig() ConnectorConfig {
	return ConnectorConfig{
		Category:          "linear",
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      20 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// Connector Bybit v5 公共行情 WS 连接，推送 kline 更新给注册的监听者。
// 断线后按指数退避重连并重新订阅所有频道。
type Connector struct {
	wsURL  string
	cfg    ConnectorConfig
	logger *zap.Logger
	dialer websocket.Dialer

	conn   *websocket.Conn
	connMu sync.Mutex

	topics   map[string]struct{} // 已订阅频道，重连后重新订阅
	topicsMu sync.Mutex

	listeners   map[uint64]func(model.KlineMessage)
	nextID      uint64
	listenersMu sync.RWMutex

	requestID atomic.Uint64
	closed    atomic.Bool
	ctx       context.Context // Close 时取消
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewConnector 创建连接器，Start 之前的订阅会在连接建立后发送
func NewConnector(wsURL string, cfg ConnectorConfig, logger *zap.Logger) *Connector {
	def := DefaultConnectorConfig()
	if cfg.Category == "" {
		cfg.Category = def.Category
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = def.ReconnectDelay
	}
	if cfg.MaxReconnectDelay < cfg.ReconnectDelay {
		cfg.MaxReconnectDelay = max(def.MaxReconnectDelay, cfg.ReconnectDelay)
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if logger == nil {
		logger = service.Logger
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Connector{
		wsURL:     wsURL,
		cfg:       cfg,
		logger:    logger.With(zap.String("component", "bybit_ws"), zap.String("category", cfg.Category)),
		dialer:    websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		topics:    make(map[string]struct{}),
		listeners: make(map[uint64]func(model.KlineMessage)),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start 建立连接并启动读循环与心跳
func (c *Connector) Start(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	c.logger.Info("Starting Bybit WS connection", zap.String("url", c.wsURL))
	if err := c.connect(ctx); err != nil {
		return err
	}

	c.wg.Add(2)
	go c.readLoop()
	go c.pingLoop()
	return nil
}

// Close 关闭连接并等待后台 goroutine 退出，可重复调用
func (c *Connector) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.cancel()

	c.connMu.Lock()
	if c.conn != nil {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	c.wg.Wait()
	c.logger.Info("Bybit WS connection closed")
	return nil
}

// Subscribe 订阅频道。未连接时只记录，连接建立后统一发送。
func (c *Connector) Subscribe(ctx context.Context, category string, topics []string) error {
	if err := c.check(ctx, category); err != nil {
		return err
	}

	c.topicsMu.Lock()
	fresh := make([]string, 0, len(topics))
	for _, t := range topics {
		if _, ok := c.topics[t]; ok {
			continue
		}
		c.topics[t] = struct{}{}
		fresh = append(fresh, t)
	}
	c.topicsMu.Unlock()

	if len(fresh) == 0 {
		return nil
	}
	if err := c.send("subscribe", fresh); err != nil {
		return err
	}
	c.logger.Info("Subscribed to kline topics", zap.Strings("topics", fresh))
	return nil
}

// Unsubscribe 取消订阅。已订阅的频道照常取消；其中有未订阅的频道时返回 ErrNotSubscribed。
func (c *Connector) Unsubscribe(ctx context.Context, category string, topics []string) error {
	if err := c.check(ctx, category); err != nil {
		return err
	}

	c.topicsMu.Lock()
	var present, missing []string
	for _, t := range topics {
		if _, ok := c.topics[t]; ok {
			delete(c.topics, t)
			present = append(present, t)
		} else {
			missing = append(missing, t)
		}
	}
	c.topicsMu.Unlock()

	if len(present) > 0 {
		if err := c.send("unsubscribe", present); err != nil {
			return err
		}
		c.logger.Info("Unsubscribed from kline topics", zap.Strings("topics", present))
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrNotSubscribed, strings.Join(missing, ","))
	}
	return nil
}

// Topics 当前订阅的频道（排序后）
func (c *Connector) Topics() []string {
	c.topicsMu.Lock()
	defer c.topicsMu.Unlock()
	out := make([]string, 0, len(c.topics))
	for t := range c.topics {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// AddListener 注册 kline 监听者。回调在读 goroutine 中按到达顺序同步执行。
func (c *Connector) AddListener(fn func(model.KlineMessage)) (remove func()) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	return func() {
		c.listenersMu.Lock()
		defer c.listenersMu.Unlock()
		delete(c.listeners, id)
	}
}

func (c *Connector) check(ctx context.Context, category string) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if category != c.cfg.Category {
		return fmt.Errorf("%w: connector serves %q, got %q", ErrCategoryMismatch, c.cfg.Category, category)
	}
	return ctx.Err()
}

// connect 拨号并重新订阅已记录的频道
func (c *Connector) connect(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.connMu.Lock()
	if c.closed.Load() {
		c.connMu.Unlock()
		conn.Close()
		return ErrClosed
	}
	c.conn = conn
	c.connMu.Unlock()
	c.logger.Info("Connected to Bybit WS")

	if topics := c.Topics(); len(topics) > 0 {
		if err := c.send("subscribe", topics); err != nil {
			c.logger.Error("Failed to resubscribe kline topics", zap.Strings("topics", topics), zap.Error(err))
		}
	}
	return nil
}

// send 写一条请求；未连接时不发送，由下一次 connect 统一订阅
func (c *Connector) send(op string, args []string) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return nil
	}

	req := wsRequest{
		ReqID: strconv.FormatUint(c.requestID.Add(1), 10),
		Op:    op,
		Args:  args,
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := c.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("write %s: %w", op, err)
	}
	return nil
}

func (c *Connector) currentConn() *websocket.Conn {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.conn
}

func (c *Connector) dropConn(conn *websocket.Conn) {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == conn {
		c.conn.Close()
		c.conn = nil
	}
}

// readLoop 持续读取 WS 消息，出错后重连
func (c *Connector) readLoop() {
	defer c.wg.Done()

	delay := c.cfg.ReconnectDelay
	for !c.closed.Load() {
		conn := c.currentConn()
		if conn == nil {
			if !c.reconnect(&delay) {
				return
			}
			continue
		}

		_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}
			c.logger.Warn("Error reading WS message, reconnecting", zap.Error(err))
			c.dropConn(conn)
			continue
		}

		delay = c.cfg.ReconnectDelay
		c.handleMessage(message)
	}
}

// reconnect 等待 delay 后重连，失败时 delay 翻倍（不超过上限）。返回 false 表示已关闭。
func (c *Connector) reconnect(delay *time.Duration) bool {
	select {
	case <-c.ctx.Done():
		return false
	case <-time.After(*delay):
	}

	ctx, cancel := context.WithTimeout(c.ctx, 30*time.Second)
	defer cancel()
	if err := c.connect(ctx); err != nil {
		if c.closed.Load() {
			return false
		}
		*delay = min(*delay*2, c.cfg.MaxReconnectDelay)
		c.logger.Warn("Reconnect failed", zap.Duration("next_delay", *delay), zap.Error(err))
	}
	return true
}

func (c *Connector) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if err := c.send("ping", nil); err != nil {
				c.logger.Warn("Failed to send WS ping", zap.Error(err))
			}
		}
	}
}

// handleMessage 解析一条消息并分发 kline 推送；无法解析的消息记录后丢弃
func (c *Connector) handleMessage(message []byte) {
	var resp wsResponse
	if err := json.Unmarshal(message, &resp); err != nil {
		c.logger.Warn("Dropping malformed WS message", zap.Error(err), zap.ByteString("payload", truncate(message, 256)))
		return
	}

	if resp.Op != "" {
		if resp.Success != nil && !*resp.Success {
			c.logger.Warn("Bybit WS request rejected", zap.String("op", resp.Op), zap.String("ret_msg", resp.RetMsg))
		}
		return
	}
	if _, _, ok := model.ParseKlineTopic(resp.Topic); !ok {
		return
	}

	candles, err := decodeWSKlines(resp.Topic, resp.Data)
	if err != nil {
		c.logger.Warn("Dropping malformed kline push", zap.String("topic", resp.Topic), zap.Error(err))
		return
	}
	c.dispatch(model.KlineMessage{Topic: resp.Topic, Candles: candles, Timestamp: resp.Ts})
}

// dispatch 先复制监听者再回调，监听者内部可以安全地注册/注销
func (c *Connector) dispatch(msg model.KlineMessage) {
	c.listenersMu.RLock()
	ids := make([]uint64, 0, len(c.listeners))
	for id := range c.listeners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(model.KlineMessage), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, c.listeners[id])
	}
	c.listenersMu.RUnlock()

	for _, fn := range fns {
		fn(msg)
	}
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
