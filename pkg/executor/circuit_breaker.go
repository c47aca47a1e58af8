package executor

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"chainscore/pkg/logger"
)

// BreakerConfig 熔断器配置
// 使用 sony/gobreaker，按上游服务名各自维护一个熔断器
type BreakerConfig struct {
	MaxRequests uint32        `yaml:"max_requests"`  // 半开状态下的最大探测请求数
	Interval    time.Duration `yaml:"interval"`      // 统计窗口时间
	Timeout     time.Duration `yaml:"timeout"`       // 熔断打开后的冷却时间
	ReadyToTrip uint32        `yaml:"ready_to_trip"` // 触发熔断的连续失败次数
	Enabled     bool          `yaml:"enabled"`       // 是否启用熔断
}

// DefaultBreakerConfig 默认熔断器配置
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests: 5,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: 5,
		Enabled:     true,
	}
}

// BreakerExecutor 带熔断保护的请求执行器装饰器。
// 熔断打开期间直接返回不可重试的 CIRCUIT_OPEN 错误，不触发上游调用。
type BreakerExecutor struct {
	inner  *Executor
	config BreakerConfig

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	log      *logger.Entry
}

// NewBreakerExecutor 创建熔断装饰器
func NewBreakerExecutor(inner *Executor, config BreakerConfig) *BreakerExecutor {
	return &BreakerExecutor{
		inner:    inner,
		config:   config,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		log:      logger.WithComponent("Breaker"),
	}
}

// Execute 透传到内部执行器，熔断打开时短路
func (b *BreakerExecutor) Execute(ctx context.Context, provider, operation, service string, op Operation) (json.RawMessage, error) {
	if !b.config.Enabled {
		return b.inner.Execute(ctx, provider, operation, service, op)
	}

	cb := b.breakerFor(provider)
	result, err := cb.Execute(func() (interface{}, error) {
		return b.inner.Execute(ctx, provider, operation, service, op)
	})

	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return nil, &APIError{
			Code:        ErrCodeCircuitOpen,
			Message:     err.Error(),
			Timestamp:   time.Now(),
			Provider:    provider,
			Retryable:   false,
			UserMessage: userMsgDegraded,
		}
	}
	if err != nil {
		return nil, err
	}
	return result.(json.RawMessage), nil
}

// breakerFor 返回服务对应的熔断器，不存在时创建
func (b *BreakerExecutor) breakerFor(provider string) *gobreaker.CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cb, ok := b.breakers[provider]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        provider,
		MaxRequests: b.config.MaxRequests,
		Interval:    b.config.Interval,
		Timeout:     b.config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= b.config.ReadyToTrip
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.log.Warnf("Circuit breaker %s changed state: %v -> %v", name, from, to)
		},
	})
	b.breakers[provider] = cb
	return cb
}
