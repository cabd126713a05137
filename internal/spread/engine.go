package spread

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"statarb-spread/internal/model"
	"statarb-spread/pkg/stats"
)

// Options 引擎参数
type Options struct {
	Category string      // 行情类别，例如 linear
	Model    stats.Model // ADF 确定性项
	MaxLag   int         // stats.AutoLag 表示按 Schwert 规则
}

// DefaultOptions linear 合约、带常数项、自动滞后
func DefaultOptions() Options {
	return Options{
		Category: "linear",
		Model:    stats.ConstantNoTrend,
		MaxLag:   stats.AutoLag,
	}
}

// snapshot 当前交易对的窗口与统计量，只在 mu 下修改
type snapshot struct {
	pair       Pair
	window     *model.PairWindow
	residuals  []float64 // 每次 tick 整体替换，不原地修改
	hedgeRatio float64   // 最近一次回归的系数
	stats      Statistics
}

// view 发布给访问器的只读快照
type view struct {
	state      State
	pair       Pair
	ready      bool
	stats      Statistics
	hedgeRatio float64
	price1     float64
	price2     float64
	residuals  []float64
}

// Engine 配对价差引擎：拉取历史、计算对冲比率与平稳性诊断、
// 跟随实时 K 线滑动窗口并向订阅者推送 init/update 事件。
//
// Reset 完成、tick 处理与 Shutdown 由 mu 串行化；访问器读取原子发布的 view，
// 不会看到半更新的窗口。
type Engine struct {
	history HistorySource
	feed    LiveFeed
	opts    Options
	logger  *zap.Logger

	mu          sync.Mutex
	state       State
	pair        Pair
	generation  uint64
	cancelFetch context.CancelFunc
	subscribed  *Pair
	removeFeed  func()
	snap        *snapshot

	lmu       sync.RWMutex
	listeners map[uint64]Listener
	nextID    uint64

	view atomic.Pointer[view]
}

// NewEngine 创建空闲状态的引擎
func NewEngine(history HistorySource, feed LiveFeed, opts Options, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Category == "" {
		opts.Category = "linear"
	}
	if opts.Model == "" {
		opts.Model = stats.ConstantNoTrend
	}
	e := &Engine{
		history:   history,
		feed:      feed,
		opts:      opts,
		logger:    logger.With(zap.String("component", "spread_engine")),
		listeners: make(map[uint64]Listener),
	}
	e.view.Store(&view{state: StateIdle})
	return e
}

// AddListener 注册事件订阅者，返回取消函数
func (e *Engine) AddListener(l Listener) (remove func()) {
	e.lmu.Lock()
	defer e.lmu.Unlock()
	if e.listeners == nil {
		return func() {}
	}
	id := e.nextID
	e.nextID++
	e.listeners[id] = l
	return func() {
		e.lmu.Lock()
		defer e.lmu.Unlock()
		delete(e.listeners, id)
	}
}

// Reset 切换到新的交易对：取消旧订阅，拉取两个品种的历史 K 线，
// 计算统计量并发出 init 事件，然后订阅实时推送。
//
// 拉取期间若有更新的 Reset 开始，本次返回 ErrSuperseded；
// 拉取期间 Shutdown 返回 ErrShutdown。历史拉取失败原样向上返回。
func (e *Engine) Reset(ctx context.Context, interval, symbol1, symbol2 string) error {
	pair := Pair{Interval: interval, Symbol1: symbol1, Symbol2: symbol2}
	if interval == "" || symbol1 == "" || symbol2 == "" {
		return fmt.Errorf("reset: incomplete pair %+v", pair)
	}
	log := e.logger.With(
		zap.String("interval", interval),
		zap.String("symbol1", symbol1),
		zap.String("symbol2", symbol2),
	)

	e.mu.Lock()
	if e.state == StateShutdown {
		e.mu.Unlock()
		return ErrShutdown
	}
	e.generation++
	gen := e.generation
	if e.cancelFetch != nil {
		e.cancelFetch()
	}
	fetchCtx, cancel := context.WithCancel(ctx)
	e.cancelFetch = cancel
	e.unsubscribeLocked(ctx)
	e.snap = nil
	e.setStateLocked(StateLoading, pair)
	e.mu.Unlock()

	log.Info("Loading spread history")
	candles1, candles2, fetchErr := e.fetch(fetchCtx, pair)
	cancel()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateShutdown {
		log.Info("Discarding history fetched after shutdown")
		return ErrShutdown
	}
	if gen != e.generation {
		log.Info("Discarding superseded history")
		return ErrSuperseded
	}
	e.cancelFetch = nil

	if fetchErr != nil {
		e.setStateLocked(StateIdle, Pair{})
		return fmt.Errorf("fetch history: %w", fetchErr)
	}

	snap, err := e.analyze(pair, candles1, candles2)
	if err != nil {
		e.setStateLocked(StateIdle, Pair{})
		return err
	}
	e.snap = snap
	e.setStateLocked(StateActive, pair)

	log.Info("Spread initialized",
		zap.Int("window", snap.window.Len()),
		zap.Float64("hedge_ratio", snap.stats.HedgeRatio),
		zap.Float64("tstat", snap.stats.TStat),
		zap.Int("used_lag", snap.stats.UsedLag),
		zap.Float64("half_life", snap.stats.HalfLife),
	)
	e.emitInit(snap.initEvent())

	return e.subscribeLocked(ctx, pair)
}

// Shutdown 释放订阅和订阅者，之后的 tick 与 Reset 都被忽略/拒绝。可重复调用。
func (e *Engine) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateShutdown {
		return
	}

	e.generation++
	if e.cancelFetch != nil {
		e.cancelFetch()
		e.cancelFetch = nil
	}
	e.unsubscribeLocked(context.Background())
	e.snap = nil
	e.setStateLocked(StateShutdown, Pair{})

	e.lmu.Lock()
	e.listeners = nil
	e.lmu.Unlock()

	e.logger.Info("Spread engine shut down")
}

// State 当前状态
func (e *Engine) State() State {
	return e.view.Load().state
}

// Pair 正在加载或已激活的交易对
func (e *Engine) Pair() (Pair, bool) {
	v := e.view.Load()
	return v.pair, v.state == StateLoading || v.state == StateActive
}

// LatestPriceOfSymbol1 品种 1 最新价格，初始化前 ok 为 false
func (e *Engine) LatestPriceOfSymbol1() (float64, bool) {
	v := e.view.Load()
	return v.price1, v.ready
}

// LatestPriceOfSymbol2 品种 2 最新价格，初始化前 ok 为 false
func (e *Engine) LatestPriceOfSymbol2() (float64, bool) {
	v := e.view.Load()
	return v.price2, v.ready
}

// Statistics Reset 时计算的诊断统计量
func (e *Engine) Statistics() (Statistics, bool) {
	v := e.view.Load()
	return v.stats, v.ready
}

// HedgeRatio 最近一次 tick 重新回归得到的对冲比率
func (e *Engine) HedgeRatio() (float64, bool) {
	v := e.view.Load()
	return v.hedgeRatio, v.ready
}

// Residuals 当前残差序列副本
func (e *Engine) Residuals() []float64 {
	return slices.Clone(e.view.Load().residuals)
}

// ZScore 当前残差窗口末值的 Z-Score
func (e *Engine) ZScore() (float64, bool) {
	v := e.view.Load()
	if !v.ready {
		return math.NaN(), false
	}
	z := stats.ZScore(v.residuals)
	return z, !math.IsNaN(z) && !math.IsInf(z, 0)
}

// RollingZScore 当前残差序列的滚动 Z-Score
func (e *Engine) RollingZScore(window int) ([]float64, error) {
	v := e.view.Load()
	if !v.ready {
		return nil, ErrNoData
	}
	return stats.RollingZScore(v.residuals, window)
}

func (e *Engine) fetch(ctx context.Context, pair Pair) (candles1, candles2 []model.Candle, err error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if candles1, err = e.history.Klines(gctx, pair.Symbol1, pair.Interval); err != nil {
			return fmt.Errorf("%s: %w", pair.Symbol1, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if candles2, err = e.history.Klines(gctx, pair.Symbol2, pair.Interval); err != nil {
			return fmt.Errorf("%s: %w", pair.Symbol2, err)
		}
		return nil
	})
	err = g.Wait()
	return candles1, candles2, err
}

func (e *Engine) analyze(pair Pair, candles1, candles2 []model.Candle) (*snapshot, error) {
	timestamps, prices1, prices2 := alignCloses(candles1, candles2)
	if len(timestamps) == 0 {
		return nil, fmt.Errorf("%w: %s/%s at %s", ErrNoData, pair.Symbol1, pair.Symbol2, pair.Interval)
	}

	reg, err := stats.OLS(prices1, stats.Vector(prices2), false)
	if err != nil {
		return nil, fmt.Errorf("hedge regression: %w", err)
	}
	hedgeRatio := reg.Coefficients[0]

	st, err := e.diagnose(reg.Residuals)
	if err != nil {
		return nil, err
	}
	st.HedgeRatio = hedgeRatio

	window, err := model.NewPairWindow(timestamps, prices1, prices2)
	if err != nil {
		return nil, err
	}
	return &snapshot{
		pair:       pair,
		window:     window,
		residuals:  reg.Residuals,
		hedgeRatio: hedgeRatio,
		stats:      st,
	}, nil
}

// diagnose 对残差做 ADF 检验与半衰期估计。
// 残差退化（完全拟合）时回归奇异，对应统计量置为 NaN；其他数值错误向上返回。
func (e *Engine) diagnose(residuals []float64) (Statistics, error) {
	st := Statistics{TStat: math.NaN(), UsedLag: -1, HalfLife: math.NaN()}

	adf, err := stats.ADF(residuals, e.opts.MaxLag, e.opts.Model)
	switch {
	case err == nil:
		st.TStat = adf.TStat
		st.UsedLag = adf.LagUsed
	case errors.Is(err, stats.ErrSingularMatrix):
		e.logger.Warn("Degenerate residuals, stationarity test undefined", zap.Error(err))
	default:
		return st, fmt.Errorf("stationarity test: %w", err)
	}

	halfLife, err := stats.HalfLife(residuals)
	switch {
	case err == nil:
		st.HalfLife = halfLife
	case errors.Is(err, stats.ErrSingularMatrix):
		e.logger.Warn("Degenerate residuals, half-life undefined", zap.Error(err))
	default:
		return st, fmt.Errorf("half-life: %w", err)
	}
	return st, nil
}

// onKline 实时推送回调
func (e *Engine) onKline(msg model.KlineMessage) {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := e.snap
	if e.state != StateActive || snap == nil || len(msg.Candles) == 0 {
		return
	}
	leg, ok := snap.pair.leg(msg.Topic)
	if !ok {
		return
	}

	candles := slices.Clone(msg.Candles)
	slices.SortStableFunc(candles, func(a, b model.Candle) int {
		return cmp.Compare(a.StartTime, b.StartTime)
	})
	for _, c := range candles {
		newest, _ := snap.window.NewestTime()
		if ts := c.StartSeconds(); ts > newest {
			snap.window.Slide(ts, leg, c.Close)
		} else {
			snap.window.Revise(leg, c.Close)
		}
	}

	reg, err := stats.OLS(snap.window.Prices(model.Leg1), stats.Vector(snap.window.Prices(model.Leg2)), false)
	if err != nil {
		e.publishLocked()
		e.logger.Error("Hedge regression failed on tick", zap.String("topic", msg.Topic), zap.Error(err))
		return
	}
	snap.residuals = reg.Residuals
	snap.hedgeRatio = reg.Coefficients[0]
	e.publishLocked()

	newest, _ := snap.window.NewestTime()
	price1, _ := snap.window.LatestPrice(model.Leg1)
	price2, _ := snap.window.LatestPrice(model.Leg2)
	e.emitUpdate(UpdateEvent{
		Pair:               snap.pair,
		Time:               newest,
		Value:              snap.residuals[len(snap.residuals)-1],
		Symbol1LatestPrice: price1,
		Symbol2LatestPrice: price2,
		Statistics:         snap.stats,
	})
}

func (e *Engine) subscribeLocked(ctx context.Context, pair Pair) error {
	e.removeFeed = e.feed.AddListener(e.onKline)
	e.subscribed = &pair
	if err := e.feed.Subscribe(ctx, e.opts.Category, pair.Topics()); err != nil {
		return fmt.Errorf("subscribe %v: %w", pair.Topics(), err)
	}
	return nil
}

func (e *Engine) unsubscribeLocked(ctx context.Context) {
	if e.removeFeed != nil {
		e.removeFeed()
		e.removeFeed = nil
	}
	if e.subscribed == nil {
		return
	}
	topics := e.subscribed.Topics()
	e.subscribed = nil

	err := e.feed.Unsubscribe(ctx, e.opts.Category, topics)
	switch {
	case err == nil:
	case errors.Is(err, model.ErrNotSubscribed):
		e.logger.Info("Kline topics were not subscribed", zap.Strings("topics", topics))
	default:
		e.logger.Warn("Failed to unsubscribe kline topics", zap.Strings("topics", topics), zap.Error(err))
	}
}

func (e *Engine) setStateLocked(s State, pair Pair) {
	e.state = s
	e.pair = pair
	e.publishLocked()
}

func (e *Engine) publishLocked() {
	v := &view{state: e.state, pair: e.pair}
	if s := e.snap; s != nil {
		v.ready = true
		v.stats = s.stats
		v.hedgeRatio = s.hedgeRatio
		v.residuals = s.residuals
		v.price1, _ = s.window.LatestPrice(model.Leg1)
		v.price2, _ = s.window.LatestPrice(model.Leg2)
	}
	e.view.Store(v)
}

func (e *Engine) currentListeners() []Listener {
	e.lmu.RLock()
	defer e.lmu.RUnlock()
	ids := make([]uint64, 0, len(e.listeners))
	for id := range e.listeners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]Listener, 0, len(ids))
	for _, id := range ids {
		out = append(out, e.listeners[id])
	}
	return out
}

func (e *Engine) emitInit(ev InitEvent) {
	for _, l := range e.currentListeners() {
		cp := ev
		cp.ChartData = slices.Clone(ev.ChartData)
		l.OnInit(cp)
	}
}

func (e *Engine) emitUpdate(ev UpdateEvent) {
	for _, l := range e.currentListeners() {
		l.OnUpdate(ev)
	}
}

func (s *snapshot) initEvent() InitEvent {
	timestamps := s.window.Timestamps()
	points := make([]model.ChartPoint, len(timestamps))
	for i, ts := range timestamps {
		points[i] = model.ChartPoint{Time: ts, Value: s.residuals[i]}
	}
	return InitEvent{Pair: s.pair, ChartData: points, Statistics: s.stats}
}

// alignCloses 按开盘时间（秒）内连接两个品种的收盘价，结果按时间升序。
// 同一开盘时间出现多根时取最后一根。
func alignCloses(candles1, candles2 []model.Candle) (timestamps []int64, prices1, prices2 []float64) {
	sorted1 := sortedByStart(candles1)
	closes2 := make(map[int64]float64, len(candles2))
	for _, c := range sortedByStart(candles2) {
		closes2[c.StartSeconds()] = c.Close
	}

	for i, c := range sorted1 {
		ts := c.StartSeconds()
		if i+1 < len(sorted1) && sorted1[i+1].StartSeconds() == ts {
			continue
		}
		p2, ok := closes2[ts]
		if !ok {
			continue
		}
		timestamps = append(timestamps, ts)
		prices1 = append(prices1, c.Close)
		prices2 = append(prices2, p2)
	}
	return timestamps, prices1, prices2
}

func sortedByStart(candles []model.Candle) []model.Candle {
	out := slices.Clone(candles)
	slices.SortStableFunc(out, func(a, b model.Candle) int {
		return cmp.Compare(a.StartTime, b.StartTime)
	})
	return out
}
