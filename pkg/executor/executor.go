// Package executor 封装对上游服务的单次出站调用：
// 按服务解析重试策略与超时，串行执行各次尝试，
// 并把每次尝试的结果记入健康跟踪器与遥测收集器。
package executor

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"chainscore/pkg/health"
	"chainscore/pkg/logger"
	"chainscore/pkg/policy"
	"chainscore/pkg/telemetry"
)

// Operation 一次可重试的上游调用。
// 实现方必须接受重复调用，且不得依赖调用被取消。
type Operation func(ctx context.Context) (json.RawMessage, error)

// Executor 请求执行器
type Executor struct {
	policies  *policy.Store
	health    *health.Tracker
	telemetry *telemetry.Collector
	log       *logger.Entry
}

// New 创建请求执行器
func New(policies *policy.Store, tracker *health.Tracker, collector *telemetry.Collector) *Executor {
	return &Executor{
		policies:  policies,
		health:    tracker,
		telemetry: collector,
		log:       logger.WithComponent("Executor"),
	}
}

// Execute 执行一次带重试的上游调用。
// provider 用于健康与遥测记账，service 用于策略解析，两者通常一致，
// 聚合型服务（如同一网关后多个端点）可能不同。
// 同一次调用的各次尝试严格串行，不同调用之间没有顺序保证。
func (e *Executor) Execute(ctx context.Context, provider, operation, service string, op Operation) (json.RawMessage, error) {
	retryPolicy := e.policies.RetryPolicyFor(service)
	timeout := e.policies.TimeoutFor(service)

	var lastErr *APIError
	for attempt := 0; attempt <= retryPolicy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(retryPolicy, attempt-1)
			e.log.Debugf("Retrying %s.%s in %v (attempt %d/%d)",
				provider, operation, delay, attempt+1, retryPolicy.MaxRetries+1)
			select {
			case <-ctx.Done():
				return nil, Classify(provider, ctx.Err())
			case <-time.After(delay):
			}
		}

		start := time.Now()
		result, err := e.runAttempt(ctx, op, timeout)
		elapsed := time.Since(start)

		if err == nil {
			e.telemetry.Record(provider, operation, elapsed, true, "")
			e.health.OnSuccess(provider)
			return result, nil
		}

		apiErr := Classify(provider, err)
		e.telemetry.Record(provider, operation, elapsed, false, string(apiErr.Code))
		e.health.OnFailure(provider, apiErr.toHealthInfo())
		lastErr = apiErr

		if !apiErr.Retryable {
			e.log.Warnf("Non-retryable failure from %s.%s: %v", provider, operation, apiErr)
			return nil, apiErr
		}
	}

	e.log.Warnf("Retries exhausted for %s.%s: %v", provider, operation, lastErr)
	return nil, lastErr
}

// runAttempt 让单次尝试与超时计时器赛跑。
// 计时器获胜时底层调用不会被取消，只是结果被丢弃，
// 调用方必须把超时理解为"结果未知"而不是"没有发生"。
func (e *Executor) runAttempt(ctx context.Context, op Operation, timeout time.Duration) (json.RawMessage, error) {
	type attemptResult struct {
		data json.RawMessage
		err  error
	}

	done := make(chan attemptResult, 1)
	go func() {
		data, err := op(ctx)
		done <- attemptResult{data: data, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-done:
		return r.data, r.err
	case <-timer.C:
		return nil, &attemptTimeoutError{timeout: timeout}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// backoffDelay 计算第 attempt 次失败后的退避等待时间（attempt 从0开始计）。
// 指数模式: min(base*2^attempt, max) + U[0, jitter]；否则: base + U[0, jitter]。
func backoffDelay(p policy.RetryPolicy, attempt int) time.Duration {
	delay := p.BaseDelay
	if p.Exponential {
		for i := 0; i < attempt && delay < p.MaxDelay; i++ {
			delay *= 2
		}
		if delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}

	if p.Jitter > 0 {
		delay += time.Duration(rand.Int63n(int64(p.Jitter) + 1))
	}
	return delay
}
