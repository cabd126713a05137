package service

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger 是全局日志接口
// 在其他模块中使用：service.Logger.Info("Spread engine reset", zap.String("symbol1", s))
var Logger = zap.NewNop()

// InitBootstrapLogger 配置加载前使用的日志，保证启动失败时错误能输出到 stderr。
// InitLogger 成功后被替换。
func InitBootstrapLogger() {
	config := zap.NewProductionConfig()
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.TimeKey = "time"
	if logger, err := config.Build(); err == nil {
		Logger = logger
	}
}

// InitLogger 初始化 Zap 日志，level 为空时使用 info；失败时保留当前 Logger
func InitLogger(cfg LogConfig) error {
	config := zap.NewProductionConfig()
	if cfg.Development {
		config = zap.NewDevelopmentConfig()
	}

	// 格式化时间
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.TimeKey = "time"

	if cfg.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return fmt.Errorf("parse log level: %w", err)
		}
		config.Level = zap.NewAtomicLevelAt(level)
	}

	logger, err := config.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	Logger = logger
	return nil
}
