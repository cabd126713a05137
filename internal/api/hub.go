package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"statarb-spread/internal/service"
	"statarb-spread/internal/spread"
)

// SpreadEngine Hub 需要的引擎能力
type SpreadEngine interface {
	Reset(ctx context.Context, interval, symbol1, symbol2 string) error
	State() spread.State
	Pair() (spread.Pair, bool)
	Statistics() (spread.Statistics, bool)
	HedgeRatio() (float64, bool)
	ZScore() (float64, bool)
	LatestPriceOfSymbol1() (float64, bool)
	LatestPriceOfSymbol2() (float64, bool)
}

// SymbolSource 可交易合约列表，用于校验切换请求
type SymbolSource interface {
	Symbols(ctx context.Context) ([]string, error)
}

// HubConfig 下游推送参数
type HubConfig struct {
	SendBuffer   int           // 每个客户端的待发送消息数，写满即断开
	WriteTimeout time.Duration
	PingInterval time.Duration
	ResetTimeout time.Duration // POST /api/pair 等待 Reset 完成的上限
}

func DefaultHubConfig() HubConfig {
	return HubConfig{
		SendBuffer:   256,
		WriteTimeout: 10 * time.Second,
		PingInterval: 30 * time.Second,
		ResetTimeout: 30 * time.Second,
	}
}

// envelope 推送给看板的消息
type envelope struct {
	Type string `json:"type"` // init | update
	Data any    `json:"data"`
}

type hubClient struct {
	conn   *websocket.Conn
	remote string
	send   chan []byte
}

// Hub 引擎监听者：把 init/update 事件转发给所有 WS 客户端，
// 并提供统计查询与交易对切换的 HTTP 接口。
type Hub struct {
	engine   SpreadEngine
	symbols  SymbolSource
	cfg      HubConfig
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu       sync.Mutex
	clients  map[*hubClient]struct{}
	lastInit []byte // 新客户端连接后立即补发
	closed   bool
}

// NewHub symbols 可为 nil（不校验合约是否存在）
func NewHub(engine SpreadEngine, symbols SymbolSource, cfg HubConfig, logger *zap.Logger) *Hub {
	def := DefaultHubConfig()
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = def.SendBuffer
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = def.ResetTimeout
	}
	if logger == nil {
		logger = service.Logger
	}
	return &Hub{
		engine:  engine,
		symbols: symbols,
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "hub")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*hubClient]struct{}),
	}
}

// OnInit 实现 spread.Listener
func (h *Hub) OnInit(ev spread.InitEvent) {
	msg, err := json.Marshal(envelope{Type: "init", Data: ev})
	if err != nil {
		h.logger.Error("Failed to encode init event", zap.Error(err))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastInit = msg
	h.broadcastLocked(msg)
}

// OnUpdate 实现 spread.Listener
func (h *Hub) OnUpdate(ev spread.UpdateEvent) {
	msg, err := json.Marshal(envelope{Type: "update", Data: ev})
	if err != nil {
		h.logger.Error("Failed to encode update event", zap.Error(err))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcastLocked(msg)
}

// broadcastLocked 非阻塞投递，发送队列已满的客户端直接断开
func (h *Hub) broadcastLocked(msg []byte) {
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("Dropping slow WS client", zap.String("remote", c.remote))
			h.removeLocked(c)
		}
	}
}

func (h *Hub) removeLocked(c *hubClient) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

// Clients 当前连接数
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Handler 路由：GET /ws, GET /api/statistics, POST /api/pair
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", h.ServeWS)
	mux.HandleFunc("GET /api/statistics", h.handleStatistics)
	mux.HandleFunc("POST /api/pair", h.handlePair)
	return mux
}

// ServeWS 升级为 WebSocket 并注册客户端
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WS upgrade failed", zap.Error(err))
		return
	}

	c := &hubClient{conn: conn, remote: conn.RemoteAddr().String(), send: make(chan []byte, h.cfg.SendBuffer)}
	// 只有引擎处于 active 时 lastInit 才对应当前交易对
	active := h.engine.State() == spread.StateActive
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	if active && h.lastInit != nil {
		c.send <- h.lastInit
	}
	h.mu.Unlock()
	h.logger.Info("WS client connected", zap.String("remote", c.remote))

	go h.writePump(c)
	h.readPump(c)
}

// readPump 丢弃客户端消息，直到连接断开
func (h *Hub) readPump(c *hubClient) {
	defer func() {
		h.mu.Lock()
		h.removeLocked(c)
		h.mu.Unlock()
		h.logger.Info("WS client disconnected", zap.String("remote", c.remote))
	}()

	c.conn.SetReadLimit(4096)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *hubClient) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close 断开所有客户端
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
}

type statisticsResponse struct {
	State              string            `json:"state"`
	Pair               spread.Pair       `json:"pair"`
	IntervalLabel      string            `json:"intervalLabel"`
	Statistics         spread.Statistics `json:"statistics"`
	CurrentHedgeRatio  float64           `json:"currentHedgeRatio"`
	ZScore             *float64          `json:"zScore"`
	Symbol1LatestPrice float64           `json:"symbol1LatestPrice"`
	Symbol2LatestPrice float64           `json:"symbol2LatestPrice"`
}

func (h *Hub) handleStatistics(w http.ResponseWriter, _ *http.Request) {
	st, ok := h.engine.Statistics()
	if !ok {
		writeError(w, http.StatusNotFound, "statistics not available, engine is "+h.engine.State().String())
		return
	}
	pair, _ := h.engine.Pair()
	resp := statisticsResponse{
		State:         h.engine.State().String(),
		Pair:          pair,
		IntervalLabel: service.FormatInterval(pair.Interval),
		Statistics:    st,
	}
	resp.CurrentHedgeRatio, _ = h.engine.HedgeRatio()
	if z, ok := h.engine.ZScore(); ok {
		resp.ZScore = &z
	}
	resp.Symbol1LatestPrice, _ = h.engine.LatestPriceOfSymbol1()
	resp.Symbol2LatestPrice, _ = h.engine.LatestPriceOfSymbol2()
	writeJSON(w, http.StatusOK, resp)
}

type pairRequest struct {
	Interval string `json:"interval"`
	Symbol1  string `json:"symbol1"`
	Symbol2  string `json:"symbol2"`
}

func (r *pairRequest) normalize() error {
	r.Interval = strings.TrimSpace(r.Interval)
	r.Symbol1 = strings.ToUpper(strings.TrimSpace(r.Symbol1))
	r.Symbol2 = strings.ToUpper(strings.TrimSpace(r.Symbol2))
	switch {
	case r.Symbol1 == "" || r.Symbol2 == "":
		return errors.New("symbol1 and symbol2 are mandatory")
	case r.Symbol1 == r.Symbol2:
		return errors.New("symbols must be different")
	}
	if _, err := service.ParseIntervalDuration(r.Interval); err != nil {
		return err
	}
	return nil
}

// handlePair 切换交易对，等待 Reset 完成后返回新统计量
func (h *Hub) handlePair(w http.ResponseWriter, r *http.Request) {
	var req pairRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if err := req.normalize(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.ResetTimeout)
	defer cancel()

	if h.symbols != nil {
		if status, err := h.checkSymbols(ctx, req.Symbol1, req.Symbol2); err != nil {
			writeError(w, status, err.Error())
			return
		}
	}

	log := h.logger.With(zap.String("interval", req.Interval), zap.String("symbol1", req.Symbol1), zap.String("symbol2", req.Symbol2))
	log.Info("Pair change requested")

	err := h.engine.Reset(ctx, req.Interval, req.Symbol1, req.Symbol2)
	switch {
	case err == nil:
	case errors.Is(err, spread.ErrSuperseded):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, spread.ErrShutdown):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	default:
		log.Error("Pair reset failed", zap.Error(err))
		h.mu.Lock()
		h.lastInit = nil
		h.mu.Unlock()
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	h.handleStatistics(w, r)
}

func (h *Hub) checkSymbols(ctx context.Context, symbols ...string) (int, error) {
	known, err := h.symbols.Symbols(ctx)
	if err != nil {
		h.logger.Error("Failed to load instrument list", zap.Error(err))
		return http.StatusBadGateway, err
	}
	set := make(map[string]struct{}, len(known))
	for _, s := range known {
		set[s] = struct{}{}
	}
	for _, s := range symbols {
		if _, ok := set[s]; !ok {
			return http.StatusBadRequest, errors.New("unknown symbol " + s)
		}
	}
	return http.StatusOK, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
