package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotSubscribed 取消订阅时频道并未订阅（可能已失效）
var ErrNotSubscribed = errors.New("topic not subscribed")

const klineTopicPrefix = "kline."

// KlineTopic 频道标识 kline.<interval>.<symbol>
func KlineTopic(interval, symbol string) string {
	return fmt.Sprintf("%s%s.%s", klineTopicPrefix, interval, symbol)
}

// ParseKlineTopic 解析 kline.<interval>.<symbol>
func ParseKlineTopic(topic string) (interval, symbol string, ok bool) {
	rest, found := strings.CutPrefix(topic, klineTopicPrefix)
	if !found {
		return "", "", false
	}
	interval, symbol, ok = strings.Cut(rest, ".")
	if !ok || interval == "" || symbol == "" {
		return "", "", false
	}
	return interval, symbol, true
}
