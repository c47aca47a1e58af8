// Package eventbus 维护到推送端点的唯一双工连接，
// 把入站的带类型消息分发到按主题注册的回调上。
// 连接断开后固定延迟无限重连，连接不属于任何单个订阅者。
package eventbus

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chainscore/pkg/logger"
)

// DefaultReconnectDelay 断线后到下一次重连的固定等待时间
const DefaultReconnectDelay = 5 * time.Second

// Frame 推送连接上的消息帧
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Callback 主题回调。回调在读循环中同步执行，
// 慢回调会阻塞后续消息的分发。
type Callback func(payload json.RawMessage)

type subscription struct {
	id int
	cb Callback
}

// Bus 事件总线
type Bus struct {
	url            string
	reconnectDelay time.Duration

	connMu  sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex

	regMu  sync.Mutex
	topics map[string][]subscription
	nextID int

	done     chan struct{}
	stopOnce sync.Once
	log      *logger.Entry
}

// New 创建事件总线，url 为推送端点地址 (ws:// 或 wss://)
func New(url string) *Bus {
	return &Bus{
		url:            url,
		reconnectDelay: DefaultReconnectDelay,
		topics:         make(map[string][]subscription),
		done:           make(chan struct{}),
		log:            logger.WithComponent("EventBus"),
	}
}

// Start 建立连接并启动读循环。
// 首次连接失败与后续断开一样，按固定延迟重试，进程生命周期内不放弃。
func (b *Bus) Start() {
	go b.run()
}

// Close 关闭事件总线并断开当前连接
func (b *Bus) Close() {
	b.stopOnce.Do(func() {
		close(b.done)
		b.connMu.Lock()
		if b.conn != nil {
			b.conn.Close()
		}
		b.connMu.Unlock()
	})
}

func (b *Bus) run() {
	for {
		select {
		case <-b.done:
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.Dial(b.url, nil)
		if err != nil {
			b.log.Warnf("Push connection failed, retrying in %v: %v", b.reconnectDelay, err)
			if !b.sleep() {
				return
			}
			continue
		}

		b.setConn(conn)
		b.log.Infof("Push connection established to %s", b.url)

		b.readLoop(conn)

		b.setConn(nil)
		conn.Close()
		b.log.Warnf("Push connection closed, reconnecting in %v", b.reconnectDelay)
		if !b.sleep() {
			return
		}
	}
}

// readLoop 持续读取入站帧直到连接出错
func (b *Bus) readLoop(conn *websocket.Conn) {
	for {
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			select {
			case <-b.done:
			default:
				b.log.Debugf("Read failed on push connection: %v", err)
			}
			return
		}
		if frame.Type == "" {
			b.log.Debugf("Dropping untyped push frame")
			continue
		}
		b.dispatch(frame.Type, frame.Payload)
	}
}

// dispatch 把一条消息按注册顺序分发给该主题的所有回调。
// 单个回调崩溃被捕获并记录，不阻止其余回调执行。
func (b *Bus) dispatch(topic string, payload json.RawMessage) {
	b.regMu.Lock()
	subs := make([]subscription, len(b.topics[topic]))
	copy(subs, b.topics[topic])
	b.regMu.Unlock()

	for _, sub := range subs {
		b.invoke(topic, sub.cb, payload)
	}
}

func (b *Bus) invoke(topic string, cb Callback, payload json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Errorf("Callback for topic %s panicked: %v", topic, r)
		}
	}()
	cb(payload)
}

// Subscribe 注册主题回调，返回的函数移除且仅移除这一个回调。
// 移除对已经分发过的消息没有影响。
func (b *Bus) Subscribe(topic string, cb Callback) func() {
	b.regMu.Lock()
	defer b.regMu.Unlock()

	id := b.nextID
	b.nextID++
	b.topics[topic] = append(b.topics[topic], subscription{id: id, cb: cb})

	return func() {
		b.regMu.Lock()
		defer b.regMu.Unlock()

		subs := b.topics[topic]
		for i, sub := range subs {
			if sub.id == id {
				b.topics[topic] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		if len(b.topics[topic]) == 0 {
			delete(b.topics, topic)
		}
	}
}

// Request 向推送端点发送订阅请求帧 {type, ...params}。
// 尽力而为：连接断开时静默丢弃而不是排队，
// 依赖可靠投递的调用方必须在重连后自行重发。
func (b *Bus) Request(msgType string, params map[string]interface{}) {
	b.connMu.Lock()
	conn := b.conn
	b.connMu.Unlock()

	if conn == nil {
		b.log.Debugf("Push connection down, dropping request %s", msgType)
		return
	}

	frame := make(map[string]interface{}, len(params)+1)
	for k, v := range params {
		frame[k] = v
	}
	frame["type"] = msgType

	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	if err := conn.WriteJSON(frame); err != nil {
		b.log.Debugf("Failed to send request %s: %v", msgType, err)
	}
}

// Connected 返回推送连接当前是否建立
func (b *Bus) Connected() bool {
	b.connMu.Lock()
	defer b.connMu.Unlock()
	return b.conn != nil
}

func (b *Bus) setConn(conn *websocket.Conn) {
	b.connMu.Lock()
	b.conn = conn
	b.connMu.Unlock()
}

// sleep 等待重连延迟，总线关闭时返回 false
func (b *Bus) sleep() bool {
	select {
	case <-b.done:
		return false
	case <-time.After(b.reconnectDelay):
		return true
	}
}
