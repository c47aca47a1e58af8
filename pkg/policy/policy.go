// Package policy 维护每个上游服务的重试策略与超时配置。
// 策略在进程启动时从远程配置端点加载一次，加载失败的部分保持编译期默认值。
package policy

import (
	"sync"
	"time"
)

// 编译期默认值，远程配置缺失或非法时生效
const (
	DefaultMaxRetries = 2
	DefaultBaseDelay  = 1000 * time.Millisecond
	DefaultMaxDelay   = 10000 * time.Millisecond
	DefaultJitter     = 500 * time.Millisecond
	DefaultTimeout    = 8000 * time.Millisecond
)

// RetryPolicy 单次调用解析后的重试策略，解析后不可变
type RetryPolicy struct {
	MaxRetries  int           `json:"max_retries"`  // 最大重试次数，不含首次尝试
	BaseDelay   time.Duration `json:"base_delay"`   // 退避基础等待时间
	MaxDelay    time.Duration `json:"max_delay"`    // 指数退避上限
	Exponential bool          `json:"exponential"`  // 是否指数退避
	Jitter      time.Duration `json:"jitter"`       // 随机抖动上限 [0, Jitter]
}

// Valid 检查策略字段是否满足约束
func (p RetryPolicy) Valid() bool {
	return p.MaxRetries >= 0 &&
		p.BaseDelay > 0 &&
		p.MaxDelay >= p.BaseDelay &&
		p.Jitter >= 0
}

// DefaultRetryPolicy 返回默认重试策略
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:  DefaultMaxRetries,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
		Exponential: true,
		Jitter:      DefaultJitter,
	}
}

// CredentialStatus 远程配置端点返回的凭证摘要
type CredentialStatus struct {
	Service   string    `json:"service"`
	HasKey    bool      `json:"has_key"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Store 按服务名保存重试策略与超时时间。
// 多个执行器并发读取，启动加载是唯一的批量写入方。
type Store struct {
	mu          sync.RWMutex
	retries     map[string]RetryPolicy
	timeouts    map[string]time.Duration
	credentials map[string]CredentialStatus
}

// NewStore 创建空的策略存储，所有服务使用默认值
func NewStore() *Store {
	return &Store{
		retries:     make(map[string]RetryPolicy),
		timeouts:    make(map[string]time.Duration),
		credentials: make(map[string]CredentialStatus),
	}
}

// RetryPolicyFor 解析服务的重试策略，未配置时返回默认策略
func (s *Store) RetryPolicyFor(service string) RetryPolicy {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.retries[service]; ok {
		return p
	}
	return DefaultRetryPolicy()
}

// TimeoutFor 解析服务的单次尝试超时，未配置时返回默认超时
func (s *Store) TimeoutFor(service string) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if t, ok := s.timeouts[service]; ok {
		return t
	}
	return DefaultTimeout
}

// SetRetryPolicy 设置服务的重试策略，非法策略被忽略
func (s *Store) SetRetryPolicy(service string, p RetryPolicy) bool {
	if service == "" || !p.Valid() {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.retries[service] = p
	return true
}

// SetTimeout 设置服务的超时时间，非正值被忽略
func (s *Store) SetTimeout(service string, timeout time.Duration) bool {
	if service == "" || timeout <= 0 {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeouts[service] = timeout
	return true
}

// CredentialFor 返回服务的凭证摘要
func (s *Store) CredentialFor(service string) (CredentialStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.credentials[service]
	return c, ok
}

// setCredentials 批量写入凭证摘要，仅由远程加载调用
func (s *Store) setCredentials(list []CredentialStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range list {
		if c.Service != "" {
			s.credentials[c.Service] = c
		}
	}
}
