package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainscore/pkg/config"
)

// pushBackend 模拟推送端点，记录订阅请求并支持主动下发帧
type pushBackend struct {
	*httptest.Server

	mu       sync.Mutex
	conn     *websocket.Conn
	received []map[string]interface{}
}

func newPushBackend(t *testing.T) *pushBackend {
	t.Helper()

	pb := &pushBackend{}
	upgrader := websocket.Upgrader{}
	pb.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		pb.mu.Lock()
		pb.conn = conn
		pb.mu.Unlock()

		for {
			var msg map[string]interface{}
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			pb.mu.Lock()
			pb.received = append(pb.received, msg)
			pb.mu.Unlock()
		}
	}))
	t.Cleanup(pb.Close)
	return pb
}

func (pb *pushBackend) wsURL() string {
	return "ws" + strings.TrimPrefix(pb.URL, "http") + "/ws/v1/stream"
}

func (pb *pushBackend) push(t *testing.T, frame map[string]interface{}) {
	t.Helper()
	pb.mu.Lock()
	defer pb.mu.Unlock()
	require.NotNil(t, pb.conn, "推送前必须已有连接")
	require.NoError(t, pb.conn.WriteJSON(frame))
}

func (pb *pushBackend) requests() []map[string]interface{} {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	out := make([]map[string]interface{}, len(pb.received))
	copy(out, pb.received)
	return out
}

func waitUntil(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func newPushClient(t *testing.T, pushURL string) *Client {
	t.Helper()

	cfg := &config.Config{
		Services: config.ServicesConfig{
			BaseURLs: map[string]string{
				config.ServiceScoring: "http://127.0.0.1:1",
			},
		},
		Push: config.PushConfig{URL: pushURL},
	}

	c, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestSubscribeScoreUpdatesFiltersByAddress(t *testing.T) {
	backend := newPushBackend(t)
	c := newPushClient(t, backend.wsURL())
	waitUntil(t, c.PushConnected, "推送连接应建立")

	var mu sync.Mutex
	var updates []ScoreUpdate
	c.SubscribeScoreUpdates("0xf39f", func(u ScoreUpdate) {
		mu.Lock()
		updates = append(updates, u)
		mu.Unlock()
	})

	// 订阅请求应带上地址到达推送端点
	waitUntil(t, func() bool { return len(backend.requests()) == 1 }, "订阅请求应发出")
	req := backend.requests()[0]
	assert.Equal(t, "subscribeScores", req["type"])
	assert.Equal(t, "0xf39f", req["address"])

	backend.push(t, map[string]interface{}{
		"type":    TopicScoreUpdate,
		"payload": map[string]interface{}{"address": "0xf39f", "score": 720, "previous": 712},
	})
	backend.push(t, map[string]interface{}{
		"type":    TopicScoreUpdate,
		"payload": map[string]interface{}{"address": "0x7099", "score": 655, "previous": 650},
	})

	waitUntil(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(updates) == 1
	}, "只应收到匹配地址的评分推送")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 720, updates[0].Score)
	assert.Equal(t, 712, updates[0].Previous)
}

func TestSubscribePriceUpdatesFiltersBySymbol(t *testing.T) {
	backend := newPushBackend(t)
	c := newPushClient(t, backend.wsURL())
	waitUntil(t, c.PushConnected, "推送连接应建立")

	var mu sync.Mutex
	var updates []PriceUpdate
	unsubscribe := c.SubscribePriceUpdates([]string{"ETH"}, func(u PriceUpdate) {
		mu.Lock()
		updates = append(updates, u)
		mu.Unlock()
	})

	backend.push(t, map[string]interface{}{
		"type":    TopicPriceUpdate,
		"payload": map[string]interface{}{"symbol": "ETH", "priceUsd": 3120.5},
	})
	backend.push(t, map[string]interface{}{
		"type":    TopicPriceUpdate,
		"payload": map[string]interface{}{"symbol": "BTC", "priceUsd": 97000.0},
	})

	waitUntil(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(updates) == 1
	}, "只应收到订阅符号的价格推送")

	mu.Lock()
	assert.Equal(t, "ETH", updates[0].Symbol)
	mu.Unlock()

	unsubscribe()
	backend.push(t, map[string]interface{}{
		"type":    TopicPriceUpdate,
		"payload": map[string]interface{}{"symbol": "ETH", "priceUsd": 3121.0},
	})
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, updates, 1, "退订后不应再收到推送")
}

func TestSubscribeAlertsDeliversAll(t *testing.T) {
	backend := newPushBackend(t)
	c := newPushClient(t, backend.wsURL())
	waitUntil(t, c.PushConnected, "推送连接应建立")

	var mu sync.Mutex
	var alerts []Alert
	c.SubscribeAlerts(func(a Alert) {
		mu.Lock()
		alerts = append(alerts, a)
		mu.Unlock()
	})

	backend.push(t, map[string]interface{}{
		"type": TopicAlert,
		"payload": map[string]interface{}{
			"address": "0xf39f", "kind": "score_drop", "severity": "warning",
			"message": "score dropped by 40 points",
		},
	})

	waitUntil(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(alerts) == 1
	}, "告警应被投递")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "score_drop", alerts[0].Kind)
	assert.Equal(t, "warning", alerts[0].Severity)
}

func TestSubscriptionsWithoutPushConnection(t *testing.T) {
	cfg := &config.Config{
		Services: config.ServicesConfig{
			BaseURLs: map[string]string{config.ServiceScoring: "http://127.0.0.1:1"},
		},
	}
	c, err := New(context.Background(), cfg, WithoutPush())
	require.NoError(t, err)
	defer c.Close()

	assert.False(t, c.PushConnected())
	assert.NotPanics(t, func() {
		unsubscribe := c.SubscribeScoreUpdates("0xf39f", func(ScoreUpdate) {})
		unsubscribe()
	}, "没有推送连接时订阅应退化为空操作")
}
