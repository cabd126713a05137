package api

import (
	"errors"
	"fmt"

	"statarb-spread/internal/model"
)

var (
	// ErrNotSubscribed 取消订阅的频道不在已订阅集合中
	ErrNotSubscribed = model.ErrNotSubscribed
	// ErrClosed 连接器已关闭
	ErrClosed = errors.New("connector closed")
	// ErrCategoryMismatch 请求的行情类别与连接器不一致
	ErrCategoryMismatch = errors.New("category mismatch")
)

// APIError Bybit REST 返回非零 retCode
type APIError struct {
	Path    string
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bybit %s: retCode=%d retMsg=%q", e.Path, e.Code, e.Message)
}
