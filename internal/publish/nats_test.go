package publish

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"statarb-spread/internal/model"
	"statarb-spread/internal/spread"
)

type published struct {
	subject string
	data    []byte
}

type fakeConn struct {
	msgs []published
	err  error
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, published{subject: subject, data: data})
	return nil
}

var testPair = spread.Pair{Interval: "15", Symbol1: "BTCUSDT", Symbol2: "ETHUSDT"}

func TestSubject(t *testing.T) {
	assert.Equal(t, "spread.update.15.BTCUSDT.ETHUSDT", Subject("spread", "update", testPair))
}

func TestNATSPublisher_PublishesEvents(t *testing.T) {
	conn := &fakeConn{}
	p := NewNATSPublisher(conn, "spread.", zaptest.NewLogger(t))

	stats := spread.Statistics{TStat: -3.5, UsedLag: 1, HalfLife: math.NaN(), HedgeRatio: 17.2}
	p.OnInit(spread.InitEvent{
		Pair:       testPair,
		ChartData:  []model.ChartPoint{{Time: 1700000000, Value: 1.5}},
		Statistics: stats,
	})
	p.OnUpdate(spread.UpdateEvent{Pair: testPair, Time: 1700000900, Value: -0.5, Statistics: stats})

	require.Len(t, conn.msgs, 2)
	assert.Equal(t, "spread.init.15.BTCUSDT.ETHUSDT", conn.msgs[0].subject)
	assert.Equal(t, "spread.update.15.BTCUSDT.ETHUSDT", conn.msgs[1].subject)

	var init struct {
		ChartData  []model.ChartPoint `json:"chartData"`
		Statistics map[string]any     `json:"statistics"`
	}
	require.NoError(t, json.Unmarshal(conn.msgs[0].data, &init))
	assert.Equal(t, []model.ChartPoint{{Time: 1700000000, Value: 1.5}}, init.ChartData)
	assert.Nil(t, init.Statistics["halfLife"])
	assert.Equal(t, 17.2, init.Statistics["hedgeRatio"])

	var upd map[string]any
	require.NoError(t, json.Unmarshal(conn.msgs[1].data, &upd))
	assert.Equal(t, -0.5, upd["value"])
}

func TestNATSPublisher_PublishErrorIsSwallowed(t *testing.T) {
	conn := &fakeConn{err: errors.New("nats: connection closed")}
	p := NewNATSPublisher(conn, "spread", zaptest.NewLogger(t))

	assert.NotPanics(t, func() {
		p.OnUpdate(spread.UpdateEvent{Pair: testPair})
	})
	assert.Empty(t, conn.msgs)
}
