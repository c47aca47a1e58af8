// Package message 定义遥测样本在 Redis Stream 上传递时使用的标准信封格式。
// 信封携带校验和，消费端在入库前验证消息完整性。
package message

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// 错误定义
var (
	ErrInvalidChecksum = errors.New("message checksum mismatch")
	ErrInvalidFormat   = errors.New("invalid message format")
)

// Header 消息头部信息
type Header struct {
	MessageID   string `json:"messageId"`
	Timestamp   int64  `json:"timestamp"`
	Version     string `json:"version"`
	Producer    string `json:"producer"`
	ContentType string `json:"contentType"`
}

// Metadata 消息元数据
type Metadata struct {
	Provider  string `json:"provider"`
	DataType  string `json:"dataType"`
	BatchSize int    `json:"batchSize"`
	Env       string `json:"env,omitempty"` // 调用方运行环境标识
}

// Envelope 标准消息格式
type Envelope struct {
	Header   Header          `json:"header"`
	Metadata Metadata        `json:"metadata"`
	Payload  json.RawMessage `json:"payload"`
	Checksum string          `json:"checksum"`
}

// TelemetryPayload 遥测样本的线上表示
type TelemetryPayload struct {
	Service   string  `json:"service"`
	Operation string  `json:"operation"`
	Timestamp int64   `json:"timestamp"`
	LatencyMs float64 `json:"latencyMs"`
	Success   bool    `json:"success"`
	ErrorCode string  `json:"errorCode,omitempty"`
}

// New 创建带校验和的消息信封
func New(producer, provider, dataType string, payload interface{}) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	msg := &Envelope{
		Header: Header{
			MessageID:   uuid.New().String(),
			Timestamp:   time.Now().Unix(),
			Version:     "1.0",
			Producer:    producer,
			ContentType: "application/json",
		},
		Metadata: Metadata{
			Provider:  provider,
			DataType:  dataType,
			BatchSize: 1,
		},
		Payload: raw,
	}
	msg.Checksum = msg.calculateChecksum()
	return msg, nil
}

// calculateChecksum 计算消息校验和，不含 checksum 字段自身
func (m *Envelope) calculateChecksum() string {
	temp := Envelope{
		Header:   m.Header,
		Metadata: m.Metadata,
		Payload:  m.Payload,
	}

	data, err := json.Marshal(temp)
	if err != nil {
		return ""
	}

	hash := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(hash[:])
}

// SetEnv 设置运行环境标识并重新计算校验和
func (m *Envelope) SetEnv(env string) {
	m.Metadata.Env = env
	m.Checksum = m.calculateChecksum()
}

// Validate 验证消息完整性
func (m *Envelope) Validate() error {
	if m.Header.MessageID == "" || m.Metadata.DataType == "" {
		return ErrInvalidFormat
	}
	if m.Checksum != m.calculateChecksum() {
		return ErrInvalidChecksum
	}
	return nil
}

// ToJSON 将消息转换为 JSON 字符串
func (m *Envelope) ToJSON() (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// FromJSON 从 JSON 字符串解析消息
func FromJSON(jsonStr string) (*Envelope, error) {
	var msg Envelope
	if err := json.Unmarshal([]byte(jsonStr), &msg); err != nil {
		return nil, ErrInvalidFormat
	}
	return &msg, nil
}

// StreamName 根据数据类型获取 Redis Stream 名称
func StreamName(dataType string) string {
	switch dataType {
	case "telemetry_sample":
		return "stream:telemetry:samples"
	case "health_snapshot":
		return "stream:telemetry:health"
	default:
		return "stream:unknown"
	}
}
