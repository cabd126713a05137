package model

import "fmt"

// Ring 固定容量的环形缓冲区，写满后新元素挤出最旧元素
type Ring[T any] struct {
	buf   []T
	start int
	size  int
}

// NewRingFrom 以 values 填满一个容量为 len(values) 的缓冲区
func NewRingFrom[T any](values []T) *Ring[T] {
	r := &Ring[T]{buf: make([]T, len(values)), size: len(values)}
	copy(r.buf, values)
	return r
}

func (r *Ring[T]) Len() int { return r.size }
func (r *Ring[T]) Cap() int { return len(r.buf) }

// Push 追加 v；缓冲区已满时同时丢弃最旧元素（原子完成）
func (r *Ring[T]) Push(v T) {
	if len(r.buf) == 0 {
		return
	}
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = v
		r.size++
		return
	}
	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
}

// At 第 i 个元素（0 为最旧）
func (r *Ring[T]) At(i int) T {
	if i < 0 || i >= r.size {
		panic(fmt.Sprintf("ring: index %d out of range [0,%d)", i, r.size))
	}
	return r.buf[(r.start+i)%len(r.buf)]
}

// Last 最新元素；缓冲区为空时 ok 为 false
func (r *Ring[T]) Last() (v T, ok bool) {
	if r.size == 0 {
		return v, false
	}
	return r.At(r.size - 1), true
}

// SetLast 原地覆盖最新元素
func (r *Ring[T]) SetLast(v T) bool {
	if r.size == 0 {
		return false
	}
	r.buf[(r.start+r.size-1)%len(r.buf)] = v
	return true
}

// Values 按时间顺序返回副本
func (r *Ring[T]) Values() []T {
	out := make([]T, r.size)
	for i := range out {
		out[i] = r.At(i)
	}
	return out
}

// Leg 价差对中的一条腿
type Leg int

const (
	Leg1 Leg = iota
	Leg2
)

// Other 另一条腿
func (l Leg) Other() Leg {
	if l == Leg1 {
		return Leg2
	}
	return Leg1
}

// PairWindow 两个品种按下标对齐的价格序列与共享时间戳序列。
// 两条价格序列长度始终相等，容量在创建时确定，之后不再增长。
type PairWindow struct {
	timestamps *Ring[int64] // unix 秒
	prices     [2]*Ring[float64]
}

// NewPairWindow 用已对齐的历史数据创建窗口，容量 = len(timestamps)
func NewPairWindow(timestamps []int64, prices1, prices2 []float64) (*PairWindow, error) {
	if len(prices1) != len(timestamps) || len(prices2) != len(timestamps) {
		return nil, fmt.Errorf("pair window: misaligned series (ts=%d, p1=%d, p2=%d)",
			len(timestamps), len(prices1), len(prices2))
	}
	return &PairWindow{
		timestamps: NewRingFrom(timestamps),
		prices:     [2]*Ring[float64]{NewRingFrom(prices1), NewRingFrom(prices2)},
	}, nil
}

func (w *PairWindow) Len() int { return w.timestamps.Len() }
func (w *PairWindow) Cap() int { return w.timestamps.Cap() }

// NewestTime 最新时间戳（秒）
func (w *PairWindow) NewestTime() (int64, bool) {
	return w.timestamps.Last()
}

// LatestPrice 某条腿的最新价格
func (w *PairWindow) LatestPrice(leg Leg) (float64, bool) {
	return w.prices[leg].Last()
}

// Slide 窗口前移一格：追加新时间戳和 leg 的新价格，另一条腿沿用其最后价格，
// 两条序列同时丢弃最旧样本
func (w *PairWindow) Slide(ts int64, leg Leg, price float64) {
	other := w.prices[leg.Other()]
	carried, _ := other.Last()

	w.timestamps.Push(ts)
	w.prices[leg].Push(price)
	other.Push(carried)
}

// Revise 原地修订 leg 最新价格（仍在进行中的 K 线），不改变长度
func (w *PairWindow) Revise(leg Leg, price float64) {
	w.prices[leg].SetLast(price)
}

// Timestamps 时间戳副本
func (w *PairWindow) Timestamps() []int64 { return w.timestamps.Values() }

// Prices 某条腿的价格副本
func (w *PairWindow) Prices(leg Leg) []float64 { return w.prices[leg].Values() }
