package stats

import (
	"fmt"
	"math"

	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"
)

// HalfLife 在 AR(1) 近似下估计均值回归半衰期：
// 以 x[1:] 对 x[:-1] 带截距回归得到斜率 φ，返回 ln(0.5)/ln(|φ|)。
// |φ| >= 1 时序列不回归，返回 +Inf；φ == 0 时返回 NaN。
// 调用方应把非有限值视为"不均值回归"，而不是一个可用的时长。
func HalfLife(x []float64) (float64, error) {
	if len(x) < 2 {
		return math.NaN(), fmt.Errorf("%w: half-life needs at least 2 points, got %d", ErrInsufficientData, len(x))
	}

	res, err := OLS(x[1:], Vector(x[:len(x)-1]), true)
	if err != nil {
		return math.NaN(), fmt.Errorf("half-life regression: %w", err)
	}

	phi := math.Abs(res.Slope())
	switch {
	case phi == 0 || math.IsNaN(phi):
		return math.NaN(), nil
	case phi >= 1:
		return math.Inf(1), nil
	}
	return math.Log(0.5) / math.Log(phi), nil
}

// ZScore (x[last] - mean(x)) / std(x)，std 为样本标准差
func ZScore(x []float64) float64 {
	if len(x) < 2 {
		return math.NaN()
	}
	mean, std := stat.MeanStdDev(x, nil)
	return (x[len(x)-1] - mean) / std
}

// RollingZScore 对每个位置 i 计算窗口 x[i-window+1..i] 内末值的 Z-Score。
// 结果与输入等长，前 window-1 个位置为 0。与 ZScore 一致使用样本标准差。
func RollingZScore(x []float64, window int) ([]float64, error) {
	if window < 2 {
		return nil, fmt.Errorf("rolling z-score window must be >= 2, got %d", window)
	}
	if len(x) < window {
		return nil, fmt.Errorf("%w: %d points for window %d", ErrInsufficientData, len(x), window)
	}

	sma := talib.Sma(x, window)
	// talib 给出总体标准差，换算为样本标准差
	std := talib.StdDev(x, window, math.Sqrt(float64(window)/float64(window-1)))

	out := make([]float64, len(x))
	for i := window - 1; i < len(x); i++ {
		if std[i] == 0 {
			continue
		}
		out[i] = (x[i] - sma[i]) / std[i]
	}
	return out, nil
}
