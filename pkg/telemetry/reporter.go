package telemetry

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-redis/redis/v8"

	"chainscore/pkg/message"
)

// RedisReporter 将样本以标准信封格式写入 Redis Stream，
// 由独立的收集器进程消费后入库 InfluxDB。
type RedisReporter struct {
	client   *redis.Client
	producer string
	env      string
	maxLen   int64
}

// NewRedisReporter 创建 Redis 上报器
func NewRedisReporter(client *redis.Client, producer string) *RedisReporter {
	env := os.Getenv("CHAINSCORE_ENV")
	if env == "" {
		env = "dev"
	}
	return &RedisReporter{
		client:   client,
		producer: producer,
		env:      env,
		maxLen:   100000,
	}
}

// Report 上报单个样本。调用方负责吞掉返回的错误。
func (r *RedisReporter) Report(ctx context.Context, sample Sample) error {
	payload := message.TelemetryPayload{
		Service:   sample.Service,
		Operation: sample.Operation,
		Timestamp: sample.Timestamp.Unix(),
		LatencyMs: float64(sample.Duration) / float64(time.Millisecond),
		Success:   sample.Success,
		ErrorCode: sample.ErrorCode,
	}

	msg, err := message.New(r.producer, sample.Service, "telemetry_sample", payload)
	if err != nil {
		return fmt.Errorf("build envelope failed: %w", err)
	}
	msg.SetEnv(r.env)

	data, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("serialize envelope failed: %w", err)
	}

	return r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: message.StreamName("telemetry_sample"),
		MaxLen: r.maxLen,
		Approx: true,
		Values: map[string]interface{}{"message": data},
	}).Err()
}
