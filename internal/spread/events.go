package spread

import (
	"encoding/json"
	"math"

	"statarb-spread/internal/model"
)

// Statistics 价差诊断统计，在 Reset 时计算一次，tick 期间保持不变
type Statistics struct {
	TStat      float64 // ADF 最优回归中滞后水平项的 t 统计量
	UsedLag    int     // ADF 未能计算时为 -1
	HalfLife   float64 // 非有限值表示不均值回归
	HedgeRatio float64
}

// MarshalJSON 非有限值（NaN/Inf）与未定义的滞后阶数输出为 null
func (s Statistics) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		TStat      *float64 `json:"tstat"`
		UsedLag    *int     `json:"usedLag"`
		HalfLife   *float64 `json:"halfLife"`
		HedgeRatio *float64 `json:"hedgeRatio"`
	}{
		TStat:      finite(s.TStat),
		UsedLag:    lag(s.UsedLag),
		HalfLife:   finite(s.HalfLife),
		HedgeRatio: finite(s.HedgeRatio),
	})
}

func lag(v int) *int {
	if v < 0 {
		return nil
	}
	return &v
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Pair 目标交易对
type Pair struct {
	Interval string `json:"interval"`
	Symbol1  string `json:"symbol1"`
	Symbol2  string `json:"symbol2"`
}

// Topics 两个品种的 kline 频道
func (p Pair) Topics() []string {
	return []string{
		model.KlineTopic(p.Interval, p.Symbol1),
		model.KlineTopic(p.Interval, p.Symbol2),
	}
}

// leg 根据频道判断属于哪条腿
func (p Pair) leg(topic string) (model.Leg, bool) {
	interval, symbol, ok := model.ParseKlineTopic(topic)
	if !ok || interval != p.Interval {
		return 0, false
	}
	switch symbol {
	case p.Symbol1:
		return model.Leg1, true
	case p.Symbol2:
		return model.Leg2, true
	}
	return 0, false
}

// InitEvent Reset 完成后发出：完整残差序列与统计量
type InitEvent struct {
	Pair       Pair               `json:"pair"`
	ChartData  []model.ChartPoint `json:"chartData"`
	Statistics Statistics         `json:"statistics"`
}

// UpdateEvent 每次 tick 后发出
type UpdateEvent struct {
	Pair               Pair       `json:"pair"`
	Time               int64      `json:"time"` // unix 秒
	Value              float64    `json:"value"`
	Symbol1LatestPrice float64    `json:"symbol1LatestPrice"`
	Symbol2LatestPrice float64    `json:"symbol2LatestPrice"`
	Statistics         Statistics `json:"statistics"`
}

// Listener 引擎事件订阅者。回调在引擎串行化区域内同步执行，
// 可以调用只读访问器，不能调用 Reset/Shutdown。
type Listener interface {
	OnInit(InitEvent)
	OnUpdate(UpdateEvent)
}

// ListenerFuncs 函数适配器，未设置的回调忽略
type ListenerFuncs struct {
	Init   func(InitEvent)
	Update func(UpdateEvent)
}

func (f ListenerFuncs) OnInit(e InitEvent) {
	if f.Init != nil {
		f.Init(e)
	}
}

func (f ListenerFuncs) OnUpdate(e UpdateEvent) {
	if f.Update != nil {
		f.Update(e)
	}
}
