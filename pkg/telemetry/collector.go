// Package telemetry 按 (服务, 操作) 维度收集请求耗时样本并提供聚合统计。
// 每个键只保留最近的固定数量样本，旧样本随写入淘汰。
package telemetry

import (
	"context"
	"sync"
	"time"

	"chainscore/pkg/logger"
)

const (
	// MaxSamplesPerKey 每个 (服务, 操作) 键保留的样本上限
	MaxSamplesPerKey = 100

	// 吞吐率统计窗口
	throughputWindow = 5 * time.Minute

	// 最近错误码列表长度上限
	maxRecentErrors = 10
)

// Sample 单次请求的观测样本
type Sample struct {
	Service   string        `json:"service"`
	Operation string        `json:"operation"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration"`
	Success   bool          `json:"success"`
	ErrorCode string        `json:"error_code,omitempty"`
}

// Stats 聚合统计结果
type Stats struct {
	AverageLatency time.Duration `json:"average_latency"`
	SuccessRate    float64       `json:"success_rate"`
	TotalRequests  int           `json:"total_requests"`
	ErrorRate      float64       `json:"error_rate"`
	Throughput     float64       `json:"throughput"` // 最近5分钟的每秒请求数
	RecentErrors   []string      `json:"recent_errors"`
}

// Reporter 将样本上报给外部监控系统。
// 上报是尽力而为的，失败不得影响 Record 的调用方。
type Reporter interface {
	Report(ctx context.Context, sample Sample) error
}

type sampleKey struct {
	service   string
	operation string
}

// Collector 进程级遥测收集器
type Collector struct {
	mu          sync.Mutex
	samples     map[sampleKey][]Sample
	subscribers map[int]func(Sample)
	nextSubID   int
	reporter    Reporter
	log         *logger.Entry
}

// NewCollector 创建遥测收集器，reporter 可以为 nil
func NewCollector(reporter Reporter) *Collector {
	return &Collector{
		samples:     make(map[sampleKey][]Sample),
		subscribers: make(map[int]func(Sample)),
		reporter:    reporter,
		log:         logger.WithComponent("Telemetry"),
	}
}

// Record 记录一个样本，通知订阅者并尽力上报外部监控。
// 上报失败只记录日志，永远不会传播给调用方。
func (c *Collector) Record(service, operation string, duration time.Duration, success bool, errorCode string) {
	sample := Sample{
		Service:   service,
		Operation: operation,
		Timestamp: time.Now(),
		Duration:  duration,
		Success:   success,
		ErrorCode: errorCode,
	}

	key := sampleKey{service: service, operation: operation}

	c.mu.Lock()
	buf := append(c.samples[key], sample)
	if len(buf) > MaxSamplesPerKey {
		buf = buf[len(buf)-MaxSamplesPerKey:]
	}
	c.samples[key] = buf

	callbacks := make([]func(Sample), 0, len(c.subscribers))
	for _, cb := range c.subscribers {
		callbacks = append(callbacks, cb)
	}
	c.mu.Unlock()

	for _, cb := range callbacks {
		c.notify(cb, sample)
	}

	if c.reporter != nil {
		if err := c.reporter.Report(context.Background(), sample); err != nil {
			c.log.Debugf("Telemetry report failed for %s.%s: %v", service, operation, err)
		}
	}
}

// notify 调用单个订阅者，订阅者崩溃不影响其余订阅者
func (c *Collector) notify(cb func(Sample), sample Sample) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Errorf("Telemetry subscriber panicked: %v", r)
		}
	}()
	cb(sample)
}

// Subscribe 注册样本回调，返回的函数用于取消订阅
func (c *Collector) Subscribe(cb func(Sample)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = cb

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subscribers, id)
	}
}

// Stats 聚合匹配过滤条件的样本。
// service 或 operation 为空串表示不过滤该维度。
func (c *Collector) Stats(service, operation string) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var matched []Sample
	for key, buf := range c.samples {
		if service != "" && key.service != service {
			continue
		}
		if operation != "" && key.operation != operation {
			continue
		}
		matched = append(matched, buf...)
	}

	stats := Stats{RecentErrors: []string{}}
	if len(matched) == 0 {
		return stats
	}

	var totalLatency time.Duration
	var successes, windowed int
	windowStart := time.Now().Add(-throughputWindow)

	for _, s := range matched {
		totalLatency += s.Duration
		if s.Success {
			successes++
		}
		if s.Timestamp.After(windowStart) {
			windowed++
		}
	}

	stats.TotalRequests = len(matched)
	stats.AverageLatency = totalLatency / time.Duration(len(matched))
	stats.SuccessRate = float64(successes) / float64(len(matched))
	stats.ErrorRate = 1 - stats.SuccessRate
	stats.Throughput = float64(windowed) / throughputWindow.Seconds()
	stats.RecentErrors = recentErrorCodes(matched)

	return stats
}

// SampleCount 返回指定键当前缓存的样本数
func (c *Collector) SampleCount(service, operation string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.samples[sampleKey{service: service, operation: operation}])
}

// recentErrorCodes 提取失败样本的错误码，按时间倒序去重，最多保留10个
func recentErrorCodes(samples []Sample) []string {
	failed := make([]Sample, 0, len(samples))
	for _, s := range samples {
		if !s.Success && s.ErrorCode != "" {
			failed = append(failed, s)
		}
	}

	// 按时间倒序排列后去重，保留每个错误码最近一次出现的顺序
	for i := 0; i < len(failed); i++ {
		for j := i + 1; j < len(failed); j++ {
			if failed[j].Timestamp.After(failed[i].Timestamp) {
				failed[i], failed[j] = failed[j], failed[i]
			}
		}
	}

	codes := []string{}
	seen := make(map[string]struct{})
	for _, s := range failed {
		if _, ok := seen[s.ErrorCode]; ok {
			continue
		}
		seen[s.ErrorCode] = struct{}{}
		codes = append(codes, s.ErrorCode)
		if len(codes) >= maxRecentErrors {
			break
		}
	}
	return codes
}
