package stats

import (
	"fmt"
	"math"
)

// Model ADF 检验的确定性项设定
type Model string

const (
	NoConstantNoTrend Model = "no_constant_no_trend"
	ConstantNoTrend   Model = "constant_no_trend"
	ConstantTrend     Model = "constant_trend"
)

// AutoLag 让 ADF 按 Schwert 规则自动确定最大滞后阶数
const AutoLag = -1

// ParseModel 解析配置中的模型名称，空字符串取默认 ConstantNoTrend
func ParseModel(s string) (Model, error) {
	switch Model(s) {
	case "":
		return ConstantNoTrend, nil
	case NoConstantNoTrend, ConstantNoTrend, ConstantTrend:
		return Model(s), nil
	}
	return "", fmt.Errorf("unknown adf model: %q", s)
}

func (m Model) hasConstant() bool { return m == ConstantNoTrend || m == ConstantTrend }
func (m Model) hasTrend() bool    { return m == ConstantTrend }

// levelColumn 设计矩阵中滞后水平项 y[i] 所在列
func (m Model) levelColumn() int {
	if m.hasConstant() {
		return 1
	}
	return 0
}

// StationarityResult ADF 检验结果
type StationarityResult struct {
	LagUsed        int
	TStat          float64 // 滞后水平项 y[i] 系数的 t 统计量
	NObs           int
	Model          Model
	CriticalValues CriticalValues
	Result         *RegressionResult // AIC 最小的候选回归
	AICByLag       []float64
}

// StationaryAt t 统计量低于给定显著性水平的临界值时拒绝单位根假设
func (r *StationarityResult) StationaryAt(level Significance) bool {
	cv, ok := r.CriticalValues[level]
	if !ok {
		return false
	}
	return r.TStat < cv
}

// SchwertMaxLag round(12 * (n/100)^0.25)
func SchwertMaxLag(n int) int {
	return int(math.Round(12 * math.Pow(float64(n)/100, 0.25)))
}

// MinObservations ADF 在给定 maxLag 下所有候选滞后都能估计所需的最少样本数
func MinObservations(maxLag int, model Model) int {
	params := 1 // 滞后水平项
	if model.hasConstant() {
		params++
	}
	if model.hasTrend() {
		params++
	}
	for n := 3; ; n++ {
		lag := maxLag
		if lag < 0 {
			lag = SchwertMaxLag(n - 1)
		}
		lag = min(n-2, lag)
		// 最大滞后的回归：n-1-lag 行，params+lag 个参数
		if n-1-lag > params+lag {
			return n
		}
	}
}

// ADF 增广 Dickey-Fuller 检验。对 0..maxLag 的每个滞后阶数做一次回归，
// 选择 AIC 最小者作为检验结果。maxLag 传 AutoLag 时使用 Schwert 规则。
func ADF(y []float64, maxLag int, model Model) (*StationarityResult, error) {
	if model == "" {
		model = ConstantNoTrend
	}
	if _, ok := dickeyFullerTable[model]; !ok {
		return nil, fmt.Errorf("unknown adf model: %q", model)
	}

	dy := make([]float64, 0, max(len(y)-1, 0))
	for i := 1; i < len(y); i++ {
		dy = append(dy, y[i]-y[i-1])
	}

	if maxLag < 0 {
		maxLag = SchwertMaxLag(len(dy))
	}
	maxLag = min(len(dy)-1, maxLag)
	if maxLag < 0 {
		return nil, fmt.Errorf("%w: %d observations, too few datapoints for testing", ErrInsufficientData, len(y))
	}

	var (
		best    *RegressionResult
		bestLag int
		aics    = make([]float64, 0, maxLag+1)
	)
	for lag := 0; lag <= maxLag; lag++ {
		design := make(Matrix, 0, len(dy)-lag)
		for i := lag; i < len(dy); i++ {
			row := make([]float64, 0, 3+lag)
			if model.hasConstant() {
				row = append(row, 1)
			}
			row = append(row, y[i])
			if model.hasTrend() {
				row = append(row, float64(i))
			}
			row = append(row, dy[i-lag:i]...)
			design = append(design, row)
		}

		res, err := OLS(dy[lag:], design, false)
		if err != nil {
			return nil, fmt.Errorf("adf lag %d: %w", lag, err)
		}
		aics = append(aics, res.AIC)

		if best == nil || res.AIC < best.AIC {
			best = res
			bestLag = lag
		}
	}

	return &StationarityResult{
		LagUsed:        bestLag,
		TStat:          best.TStats[model.levelColumn()],
		NObs:           len(y),
		Model:          model,
		CriticalValues: GetCriticalValues(len(y), model),
		Result:         best,
		AICByLag:       aics,
	}, nil
}
