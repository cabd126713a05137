package spread

import "errors"

var (
	// ErrShutdown 引擎已关闭
	ErrShutdown = errors.New("spread engine shut down")
	// ErrSuperseded 更新的 Reset 已开始，本次拉取结果作废
	ErrSuperseded = errors.New("reset superseded by a newer request")
	// ErrNoData 两个品种的历史 K 线没有重叠的开盘时间
	ErrNoData = errors.New("no overlapping candles")
)
