// Package stats 提供价差分析所需的回归与平稳性检验工具：
// 普通最小二乘、增广 Dickey-Fuller 检验、均值回归半衰期与 Z-Score。
package stats

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Design 是 OLS 的自变量输入：Vector 表示单一自变量，Matrix 表示 n×p 矩阵
type Design interface {
	rows() int
	cols() int
	row(i int, dst []float64)
	validate() error
}

// Vector 单自变量设计（长度 n）
type Vector []float64

func (v Vector) rows() int                { return len(v) }
func (v Vector) cols() int                { return 1 }
func (v Vector) row(i int, dst []float64) { dst[0] = v[i] }
func (v Vector) validate() error          { return nil }

// Matrix 多自变量设计（n 行 p 列，按列顺序排列）
type Matrix [][]float64

func (m Matrix) rows() int { return len(m) }

func (m Matrix) cols() int {
	if len(m) == 0 {
		return 0
	}
	return len(m[0])
}

func (m Matrix) row(i int, dst []float64) { copy(dst, m[i]) }

func (m Matrix) validate() error {
	p := m.cols()
	for i, r := range m {
		if len(r) != p {
			return fmt.Errorf("%w: row %d has %d columns, want %d", ErrDimensionMismatch, i, len(r), p)
		}
	}
	return nil
}

// RegressionResult 一次 OLS 回归的结果，返回后不再修改
type RegressionResult struct {
	Coefficients []float64 // 按设计矩阵列顺序（含截距列）
	Residuals    []float64 // y - Xb，与输入同序
	StdErrors    []float64
	TStats       []float64
	TStat        float64 // 第一个真实自变量的 t 统计量
	AIC          float64
	RSS          float64
	N            int  // 观测数
	K            int  // 参数个数
	Constant     bool // 是否由 OLS 补充了截距列
}

// Slope 返回第一个真实自变量的系数
func (r *RegressionResult) Slope() float64 {
	if r.Constant {
		return r.Coefficients[1]
	}
	return r.Coefficients[0]
}

// OLS 通过正规方程 b = (XᵗX)⁻¹Xᵗy 求解最小二乘，XᵗX 使用 Cholesky 分解。
// addConstant 为 true 时在设计矩阵最前面补一列 1。
// 前置条件：观测数 n 必须大于参数个数 k，否则返回 ErrInsufficientData。
func OLS(y []float64, x Design, addConstant bool) (*RegressionResult, error) {
	if err := x.validate(); err != nil {
		return nil, err
	}

	n := len(y)
	if x.rows() != n {
		return nil, fmt.Errorf("%w: len(y)=%d, rows(x)=%d", ErrDimensionMismatch, n, x.rows())
	}
	p := x.cols()
	if p == 0 {
		return nil, fmt.Errorf("%w: design has no columns", ErrDimensionMismatch)
	}

	k := p
	offset := 0
	if addConstant {
		k++
		offset = 1
	}
	if n <= k {
		return nil, fmt.Errorf("%w: %d observations for %d parameters", ErrInsufficientData, n, k)
	}

	X := mat.NewDense(n, k, nil)
	row := make([]float64, p)
	for i := 0; i < n; i++ {
		x.row(i, row)
		if addConstant {
			X.Set(i, 0, 1)
		}
		for j, v := range row {
			X.Set(i, offset+j, v)
		}
	}
	Y := mat.NewVecDense(n, append([]float64(nil), y...))

	var xtx mat.SymDense
	xtx.SymOuterK(1, X.T())

	var chol mat.Cholesky
	if ok := chol.Factorize(&xtx); !ok {
		return nil, ErrSingularMatrix
	}

	var xty mat.VecDense
	xty.MulVec(X.T(), Y)

	var b mat.VecDense
	if err := chol.SolveVecTo(&b, &xty); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingularMatrix, err)
	}

	var xtxInv mat.SymDense
	if err := chol.InverseTo(&xtxInv); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingularMatrix, err)
	}

	var fitted mat.VecDense
	fitted.MulVec(X, &b)

	residuals := make([]float64, n)
	rss := 0.0
	for i := 0; i < n; i++ {
		residuals[i] = y[i] - fitted.AtVec(i)
		rss += residuals[i] * residuals[i]
	}

	sigma2 := rss / float64(n-k)
	coefficients := make([]float64, k)
	stdErrors := make([]float64, k)
	tstats := make([]float64, k)
	for i := 0; i < k; i++ {
		coefficients[i] = b.AtVec(i)
		stdErrors[i] = math.Sqrt(sigma2 * xtxInv.At(i, i))
		tstats[i] = coefficients[i] / stdErrors[i]
	}

	return &RegressionResult{
		Coefficients: coefficients,
		Residuals:    residuals,
		StdErrors:    stdErrors,
		TStats:       tstats,
		TStat:        tstats[offset],
		AIC:          AIC(rss, n, k),
		RSS:          rss,
		N:            n,
		K:            k,
		Constant:     addConstant,
	}, nil
}

// AIC = ln(RSS/n) + 2(k+1)/n
func AIC(rss float64, n, k int) float64 {
	return math.Log(rss/float64(n)) + 2*float64(k+1)/float64(n)
}
