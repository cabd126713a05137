package publish

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"statarb-spread/internal/service"
	"statarb-spread/internal/spread"
)

// Publisher NATS 连接中发布消息的部分，*nats.Conn 满足该接口
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher 引擎监听者：把 init/update 事件以 JSON 发布到
// <prefix>.<init|update>.<interval>.<symbol1>.<symbol2>
type NATSPublisher struct {
	conn   Publisher
	prefix string
	logger *zap.Logger
}

func NewNATSPublisher(conn Publisher, prefix string, logger *zap.Logger) *NATSPublisher {
	if logger == nil {
		logger = service.Logger
	}
	return &NATSPublisher{
		conn:   conn,
		prefix: strings.TrimSuffix(prefix, "."),
		logger: logger.With(zap.String("component", "nats_publisher")),
	}
}

// Connect 连接 NATS，断线自动重连
func Connect(url string, logger *zap.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = service.Logger
	}
	conn, err := nats.Connect(url,
		nats.Name("statarb-spread"),
		nats.MaxReconnects(10),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS %s: %w", url, err)
	}
	return conn, nil
}

// Subject 事件主题
func Subject(prefix, kind string, pair spread.Pair) string {
	return strings.Join([]string{prefix, kind, pair.Interval, pair.Symbol1, pair.Symbol2}, ".")
}

// OnInit 实现 spread.Listener
func (p *NATSPublisher) OnInit(ev spread.InitEvent) {
	p.publish("init", ev.Pair, ev)
}

// OnUpdate 实现 spread.Listener
func (p *NATSPublisher) OnUpdate(ev spread.UpdateEvent) {
	p.publish("update", ev.Pair, ev)
}

func (p *NATSPublisher) publish(kind string, pair spread.Pair, ev any) {
	subject := Subject(p.prefix, kind, pair)
	data, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("Failed to encode event", zap.String("subject", subject), zap.Error(err))
		return
	}
	if err := p.conn.Publish(subject, data); err != nil {
		p.logger.Warn("Failed to publish event", zap.String("subject", subject), zap.Error(err))
	}
}
