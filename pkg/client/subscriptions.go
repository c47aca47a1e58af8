package client

import (
	"encoding/json"

	"chainscore/pkg/eventbus"
)

// 推送主题名
const (
	TopicScoreUpdate = "scoreUpdate"
	TopicPriceUpdate = "priceUpdate"
	TopicAlert       = "alert"
)

// ScoreUpdate 推送的评分变更
type ScoreUpdate struct {
	Address  string `json:"address"`
	Score    int    `json:"score"`
	Previous int    `json:"previous"`
}

// PriceUpdate 推送的价格变更
type PriceUpdate struct {
	Symbol   string  `json:"symbol"`
	PriceUSD float64 `json:"priceUsd"`
}

// Alert 推送的告警
type Alert struct {
	Address  string `json:"address"`
	Kind     string `json:"kind"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// SubscribeScoreUpdates 订阅某个地址的评分推送。
// 上游订阅请求只在连接建立时尽力发送，断线期间静默丢弃，
// 需要可靠订阅的调用方应在重连后重新调用。
// 返回的函数取消本地回调，对已分发的消息无影响。
func (c *Client) SubscribeScoreUpdates(address string, cb func(ScoreUpdate)) func() {
	if c.bus == nil {
		return func() {}
	}

	c.bus.Request("subscribeScores", map[string]interface{}{"address": address})

	return c.bus.Subscribe(TopicScoreUpdate, func(payload json.RawMessage) {
		var update ScoreUpdate
		if err := json.Unmarshal(payload, &update); err != nil {
			c.log.Debugf("Malformed score update payload: %v", err)
			return
		}
		if update.Address == address {
			cb(update)
		}
	})
}

// SubscribePriceUpdates 订阅价格推送
func (c *Client) SubscribePriceUpdates(symbols []string, cb func(PriceUpdate)) func() {
	if c.bus == nil {
		return func() {}
	}

	c.bus.Request("subscribePrices", map[string]interface{}{"symbols": symbols})

	wanted := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		wanted[s] = struct{}{}
	}

	return c.bus.Subscribe(TopicPriceUpdate, func(payload json.RawMessage) {
		var update PriceUpdate
		if err := json.Unmarshal(payload, &update); err != nil {
			c.log.Debugf("Malformed price update payload: %v", err)
			return
		}
		if _, ok := wanted[update.Symbol]; ok || len(wanted) == 0 {
			cb(update)
		}
	})
}

// SubscribeAlerts 订阅告警推送
func (c *Client) SubscribeAlerts(cb func(Alert)) func() {
	if c.bus == nil {
		return func() {}
	}

	c.bus.Request("subscribeAlerts", map[string]interface{}{})

	return c.bus.Subscribe(TopicAlert, func(payload json.RawMessage) {
		var alert Alert
		if err := json.Unmarshal(payload, &alert); err != nil {
			c.log.Debugf("Malformed alert payload: %v", err)
			return
		}
		cb(alert)
	})
}

// PushConnected 返回推送连接当前是否建立
func (c *Client) PushConnected() bool {
	return c.bus != nil && c.bus.Connected()
}

// Bus 暴露底层事件总线，供需要原始主题订阅的调用方使用
func (c *Client) Bus() *eventbus.Bus {
	return c.bus
}
