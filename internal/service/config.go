// internal/service/config.go
package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"statarb-spread/pkg/stats"
)

type Config struct {
	Exchange   ExchangeConfig   `mapstructure:"Exchange"`
	Pair       PairConfig       `mapstructure:"Pair"`
	Statistics StatisticsConfig `mapstructure:"Statistics"`
	Cache      CacheConfig      `mapstructure:"Cache"`
	Server     ServerConfig     `mapstructure:"Server"`
	NATS       NATSConfig       `mapstructure:"NATS"`
	Log        LogConfig        `mapstructure:"Log"`
}

// ExchangeConfig 定义了交易所的连接信息（Bybit v5 公共行情）
type ExchangeConfig struct {
	Name              string
	Category          string // linear / inverse / spot
	WSURL             string
	RESTURL           string
	KlineLimit        int // 历史 K 线条数，同时决定滑动窗口容量
	RequestTimeout    time.Duration
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	PingInterval      time.Duration
}

// PairConfig 启动时跟踪的交易对
type PairConfig struct {
	Interval string
	Symbol1  string
	Symbol2  string
}

// StatisticsConfig ADF 检验与 Z-Score 参数
type StatisticsConfig struct {
	Model        string // no_constant_no_trend / constant_no_trend / constant_trend
	MaxLag       int    // 负数表示按 Schwert 规则自动确定
	ZScoreWindow int
}

// CacheConfig 历史 K 线缓存
type CacheConfig struct {
	Backend   string // memory / redis / none
	RedisAddr string
	RedisDB   int
	TTL       time.Duration
}

type ServerConfig struct {
	Addr string
}

// NATSConfig URL 为空时不发布
type NATSConfig struct {
	URL           string
	SubjectPrefix string
}

type LogConfig struct {
	Level       string
	Development bool
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("Exchange.Name", "bybit")
	v.SetDefault("Exchange.Category", "linear")
	v.SetDefault("Exchange.WSURL", "wss://stream.bybit.com/v5/public/linear")
	v.SetDefault("Exchange.RESTURL", "https://api.bybit.com")
	v.SetDefault("Exchange.KlineLimit", 1000)
	v.SetDefault("Exchange.RequestTimeout", 10*time.Second)
	v.SetDefault("Exchange.ReconnectDelay", time.Second)
	v.SetDefault("Exchange.MaxReconnectDelay", 30*time.Second)
	v.SetDefault("Exchange.PingInterval", 20*time.Second)

	v.SetDefault("Pair.Interval", "15")

	v.SetDefault("Statistics.Model", "constant_no_trend")
	v.SetDefault("Statistics.MaxLag", -1)
	v.SetDefault("Statistics.ZScoreWindow", 20)

	v.SetDefault("Cache.Backend", "memory")
	v.SetDefault("Cache.TTL", time.Minute)

	v.SetDefault("Server.Addr", ":8080")
	v.SetDefault("NATS.SubjectPrefix", "spread")
	v.SetDefault("Log.Level", "info")
}

// LoadConfig 读取 configPath 目录下的 config.yaml，环境变量 STATARB_<SECTION>_<KEY> 覆盖文件值
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config") // 文件名是 config
	v.SetConfigType("yaml")   // 文件类型是 yaml
	v.AddConfigPath(configPath)

	v.SetEnvPrefix("STATARB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	// 查找并读取配置文件
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("config file not found in %s: %w", configPath, err)
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 检查启动所需的最小配置
func (c *Config) Validate() error {
	if c.Exchange.KlineLimit < 3 || c.Exchange.KlineLimit > 1000 {
		return fmt.Errorf("Exchange.KlineLimit must be within [3, 1000], got %d", c.Exchange.KlineLimit)
	}
	model, err := stats.ParseModel(c.Statistics.Model)
	if err != nil {
		return fmt.Errorf("Statistics.Model: %w", err)
	}
	// 窗口过小时每次 Reset 的 ADF 都会因样本不足失败
	if need := stats.MinObservations(c.Statistics.MaxLag, model); c.Exchange.KlineLimit < need {
		return fmt.Errorf("Exchange.KlineLimit %d too small for the stationarity test, need at least %d", c.Exchange.KlineLimit, need)
	}
	if _, err := ParseIntervalDuration(c.Pair.Interval); err != nil {
		return fmt.Errorf("Pair.Interval: %w", err)
	}
	switch c.Cache.Backend {
	case "memory", "none":
	case "redis":
		if c.Cache.RedisAddr == "" {
			return errors.New("Cache.RedisAddr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown Cache.Backend %q", c.Cache.Backend)
	}
	return nil
}
