package service

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// StringToFloat 解析交易所返回的字符串价格/数量
func StringToFloat(s string) (float64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	f, _ := d.Float64()
	return f, nil
}

func StringToInt64(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

// ParseIntervalDuration 将 Bybit K 线周期解析为 time.Duration
// 分钟周期为纯数字（"1","3","5","15","30","60","120","240","360","720"），
// 日/周/月分别为 "D","W","M"（月按 30 天计）
func ParseIntervalDuration(s string) (time.Duration, error) {
	switch s {
	case "D":
		return 24 * time.Hour, nil
	case "W":
		return 7 * 24 * time.Hour, nil
	case "M":
		return 30 * 24 * time.Hour, nil
	case "1", "3", "5", "15", "30", "60", "120", "240", "360", "720":
		minutes, _ := strconv.Atoi(s)
		return time.Duration(minutes) * time.Minute, nil
	}
	return 0, fmt.Errorf("unsupported interval: %q", s)
}

// FormatInterval 将 Bybit 周期格式化为便于阅读的字符串，如 "15" -> "15m", "60" -> "1h"
func FormatInterval(s string) string {
	d, err := ParseIntervalDuration(s)
	if err != nil {
		return s
	}
	switch {
	case s == "W" || s == "M":
		return "1" + s
	case d >= 24*time.Hour && d%(24*time.Hour) == 0:
		return fmt.Sprintf("%dd", d/(24*time.Hour))
	case d >= time.Hour && d%time.Hour == 0:
		return fmt.Sprintf("%dh", d/time.Hour)
	default:
		return fmt.Sprintf("%dm", d/time.Minute)
	}
}
