package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"statarb-spread/internal/api"
	"statarb-spread/internal/cache"
	"statarb-spread/internal/publish"
	"statarb-spread/internal/service"
	"statarb-spread/internal/spread"
	"statarb-spread/pkg/stats"
)

func main() {
	service.InitBootstrapLogger()

	// 1. 加载配置
	cfg, err := service.LoadConfig("config")
	if err != nil {
		service.Logger.Fatal("Failed to load config", zap.Error(err))
	}

	// 2. 初始化日志
	if err := service.InitLogger(cfg.Log); err != nil {
		service.Logger.Fatal("Failed to init logger", zap.Error(err))
	}
	defer service.Logger.Sync()
	logger := service.Logger

	logger.Info("Configuration loaded",
		zap.String("exchange", cfg.Exchange.Name),
		zap.String("category", cfg.Exchange.Category),
		zap.Int("klineLimit", cfg.Exchange.KlineLimit),
		zap.String("cache", cfg.Cache.Backend),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. 历史行情：REST + 缓存
	restClient := api.NewRESTClient(cfg.Exchange.RESTURL, cfg.Exchange.Category, cfg.Exchange.KlineLimit, cfg.Exchange.RequestTimeout, logger)

	var (
		history     spread.HistorySource = restClient
		redisClient *redis.Client
	)
	switch cfg.Cache.Backend {
	case "memory":
		history = cache.NewCachedHistory(restClient, cache.NewMemoryCache(nil), cfg.Exchange.Category, cfg.Cache.TTL, logger)
	case "redis":
		redisClient, err = cache.NewRedisClient(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisDB)
		if err != nil {
			logger.Fatal("Failed to connect to redis", zap.String("addr", cfg.Cache.RedisAddr), zap.Error(err))
		}
		history = cache.NewCachedHistory(restClient, cache.NewRedisCache(redisClient), cfg.Exchange.Category, cfg.Cache.TTL, logger)
	}

	// 4. 实时行情：Bybit WS
	connectorCfg := api.ConnectorConfig{
		Category:          cfg.Exchange.Category,
		ReconnectDelay:    cfg.Exchange.ReconnectDelay,
		MaxReconnectDelay: cfg.Exchange.MaxReconnectDelay,
		PingInterval:      cfg.Exchange.PingInterval,
		ReadTimeout:       api.DefaultConnectorConfig().ReadTimeout,
		WriteTimeout:      cfg.Exchange.RequestTimeout,
	}
	connector := api.NewConnector(cfg.Exchange.WSURL, connectorCfg, logger)
	if err := connector.Start(ctx); err != nil {
		logger.Fatal("Failed to connect to exchange stream", zap.String("url", cfg.Exchange.WSURL), zap.Error(err))
	}

	// 5. 价差引擎
	adfModel, err := stats.ParseModel(cfg.Statistics.Model)
	if err != nil {
		logger.Fatal("Invalid ADF model", zap.Error(err))
	}
	engine := spread.NewEngine(history, connector, spread.Options{
		Category: cfg.Exchange.Category,
		Model:    adfModel,
		MaxLag:   cfg.Statistics.MaxLag,
	}, logger)

	// 6. 下游：看板 Hub + 可选 NATS
	hub := api.NewHub(engine, restClient, api.DefaultHubConfig(), logger)
	engine.AddListener(hub)

	var natsConn *nats.Conn
	if cfg.NATS.URL != "" {
		natsConn, err = publish.Connect(cfg.NATS.URL, logger)
		if err != nil {
			logger.Fatal("Failed to connect to NATS", zap.String("url", cfg.NATS.URL), zap.Error(err))
		}
		engine.AddListener(publish.NewNATSPublisher(natsConn, cfg.NATS.SubjectPrefix, logger))
	}

	engine.AddListener(spread.ListenerFuncs{
		Update: func(ev spread.UpdateEvent) {
			rolling, err := engine.RollingZScore(cfg.Statistics.ZScoreWindow)
			if err != nil || len(rolling) == 0 {
				return
			}
			logger.Debug("Spread tick",
				zap.String("symbol1", ev.Pair.Symbol1),
				zap.String("symbol2", ev.Pair.Symbol2),
				zap.Float64("residual", ev.Value),
				zap.Float64("rollingZScore", rolling[len(rolling)-1]),
			)
		},
	})

	// 7. HTTP 服务
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           hub.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server stopped", zap.Error(err))
			stop()
		}
	}()

	// 8. 启动时跟踪配置的交易对
	if cfg.Pair.Symbol1 != "" && cfg.Pair.Symbol2 != "" {
		go func() {
			if err := engine.Reset(ctx, cfg.Pair.Interval, cfg.Pair.Symbol1, cfg.Pair.Symbol2); err != nil {
				logger.Error("Initial pair reset failed",
					zap.String("interval", cfg.Pair.Interval),
					zap.String("symbol1", cfg.Pair.Symbol1),
					zap.String("symbol2", cfg.Pair.Symbol2),
					zap.Error(err),
				)
			}
		}()
	} else {
		logger.Info("No pair configured, waiting for POST /api/pair")
	}

	<-ctx.Done()
	logger.Info("Shutting down")

	engine.Shutdown()
	hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown", zap.Error(err))
	}
	if err := connector.Close(); err != nil {
		logger.Warn("Connector close", zap.Error(err))
	}
	if natsConn != nil {
		if err := natsConn.Drain(); err != nil {
			logger.Warn("NATS drain", zap.Error(err))
		}
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
}
