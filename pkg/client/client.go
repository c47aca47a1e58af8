// Package client 是数据访问层的公开门面：
// 组合策略存储、请求执行器、健康跟踪、遥测收集、事件总线与真实性校验，
// 对外提供展示层调用的各个领域操作。
// 每个操作要么返回通过校验的类型化结果，要么返回带类型的失败。
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"chainscore/pkg/config"
	"chainscore/pkg/eventbus"
	"chainscore/pkg/executor"
	"chainscore/pkg/health"
	"chainscore/pkg/logger"
	"chainscore/pkg/policy"
	"chainscore/pkg/telemetry"
	"chainscore/pkg/validate"
)

// Executor 请求执行器的最小接口，熔断装饰器与裸执行器都满足
type Executor interface {
	Execute(ctx context.Context, provider, operation, service string, op executor.Operation) (json.RawMessage, error)
}

// Client 数据访问层门面，进程内通常只构造一个
type Client struct {
	cfg       *config.Config
	policies  *policy.Store
	health    *health.Tracker
	telemetry *telemetry.Collector
	exec      Executor
	http      *executor.ServiceClient
	bus       *eventbus.Bus
	validator *validate.Validator
	log       *logger.Entry
}

// Option 构造选项
type Option func(*options)

type options struct {
	reporter telemetry.Reporter
	skipPush bool
}

// WithReporter 设置遥测样本的外部上报器
func WithReporter(r telemetry.Reporter) Option {
	return func(o *options) { o.reporter = r }
}

// WithoutPush 不建立推送连接，仅使用请求/响应操作
func WithoutPush() Option {
	return func(o *options) { o.skipPush = true }
}

// New 创建门面并加载远程策略配置。
// 远程配置加载失败不会阻止启动，对应切片回落到编译期默认值。
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	policies := policy.NewStore()
	if cfg.Services.ConfigURL != "" {
		loadCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := policy.NewLoader(cfg.Services.ConfigURL).Load(loadCtx, policies); err != nil {
			logger.WithComponent("Client").Warnf("Remote policy load failed, using defaults: %v", err)
		}
	}

	tracker := health.NewTracker()
	collector := telemetry.NewCollector(o.reporter)

	var exec Executor = executor.New(policies, tracker, collector)
	if cfg.Breaker.Enabled {
		exec = executor.NewBreakerExecutor(exec.(*executor.Executor), cfg.Breaker)
	}

	c := &Client{
		cfg:       cfg,
		policies:  policies,
		health:    tracker,
		telemetry: collector,
		exec:      exec,
		http:      executor.NewServiceClient(cfg.Services.BaseURLs),
		validator: validate.NewValidator(),
		log:       logger.WithComponent("Client"),
	}

	if cfg.Push.URL != "" && !o.skipPush {
		c.bus = eventbus.New(cfg.Push.URL)
		c.bus.Start()
	}

	return c, nil
}

// Health 返回当前聚合健康快照
func (c *Client) Health() health.Status {
	return c.health.Snapshot()
}

// Stats 返回匹配过滤条件的遥测统计，空串表示不过滤
func (c *Client) Stats(service, operation string) telemetry.Stats {
	return c.telemetry.Stats(service, operation)
}

// SubscribeTelemetry 注册遥测样本回调，返回取消函数
func (c *Client) SubscribeTelemetry(cb func(telemetry.Sample)) func() {
	return c.telemetry.Subscribe(cb)
}

// Close 关闭推送连接
func (c *Client) Close() {
	if c.bus != nil {
		c.bus.Close()
	}
}

// fetchValidated 门面操作的公共路径：执行 -> 校验 -> 反序列化。
// 校验失败以三种类型错误之一返回，绝不回退到占位数据。
func (c *Client) fetchValidated(ctx context.Context, service, operation, method, path string,
	body, out interface{}, domain validate.Domain) error {

	raw, err := c.exec.Execute(ctx, service, operation, service,
		c.http.OperationFor(service, method, path, body))
	if err != nil {
		return err
	}

	if _, err := c.validator.Validate(raw, service, domain); err != nil {
		return err
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return &validate.ValidationError{
				Source:     service,
				Violations: []string{fmt.Sprintf("unexpected response shape: %v", err)},
			}
		}
	}
	return nil
}
