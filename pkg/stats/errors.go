package stats

import "errors"

var (
	// ErrSingularMatrix XᵗX 不可分解（观测数不足或自变量完全共线）
	ErrSingularMatrix = errors.New("stats: singular design matrix")

	// ErrInsufficientData 观测数不足以估计所需参数
	ErrInsufficientData = errors.New("stats: insufficient data")

	// ErrDimensionMismatch y 与设计矩阵的行数不一致
	ErrDimensionMismatch = errors.New("stats: dimension mismatch")
)
