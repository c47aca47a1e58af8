// Package health 聚合各上游服务的可用状态。
// 状态只由请求执行器的成功/失败回调驱动，没有基于时间的自动恢复。
package health

import (
	"sort"
	"sync"
	"time"
)

// ErrorInfo 单次失败尝试产生的错误快照
type ErrorInfo struct {
	Code        string    `json:"code"`
	Message     string    `json:"message"`
	StatusCode  int       `json:"status_code"`
	Timestamp   time.Time `json:"timestamp"`
	Provider    string    `json:"provider"`
	Retryable   bool      `json:"retryable"`
	UserMessage string    `json:"user_message"`
}

// Status 某一时刻的整体健康快照。
// 不变式: IsHealthy == (len(DegradedServices) == 0)
type Status struct {
	IsHealthy        bool       `json:"is_healthy"`
	ErrorCount       int        `json:"error_count"`
	LastSuccessTime  time.Time  `json:"last_success_time"`
	DegradedServices []string   `json:"degraded_services"`
	LastError        *ErrorInfo `json:"last_error,omitempty"`
}

// Tracker 进程级健康跟踪器，所有变更来自执行器回调
type Tracker struct {
	mu              sync.RWMutex
	errorCount      int
	lastSuccessTime time.Time
	degraded        map[string]struct{}
	lastError       *ErrorInfo
}

// NewTracker 创建健康跟踪器，初始状态为健康
func NewTracker() *Tracker {
	return &Tracker{
		degraded: make(map[string]struct{}),
	}
}

// OnSuccess 记录某个上游服务的一次成功。
// 只清除该服务自身的降级标记，不影响其他服务。
func (t *Tracker) OnSuccess(provider string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lastSuccessTime = time.Now()
	delete(t.degraded, provider)

	if len(t.degraded) == 0 {
		t.errorCount = 0
	}
}

// OnFailure 记录某个上游服务的一次失败
func (t *Tracker) OnFailure(provider string, errInfo ErrorInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.errorCount++
	t.lastError = &errInfo
	t.degraded[provider] = struct{}{}
}

// Snapshot 返回当前健康状态的副本
func (t *Tracker) Snapshot() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()

	degraded := make([]string, 0, len(t.degraded))
	for name := range t.degraded {
		degraded = append(degraded, name)
	}
	sort.Strings(degraded)

	var lastError *ErrorInfo
	if t.lastError != nil {
		e := *t.lastError
		lastError = &e
	}

	return Status{
		IsHealthy:        len(t.degraded) == 0,
		ErrorCount:       t.errorCount,
		LastSuccessTime:  t.lastSuccessTime,
		DegradedServices: degraded,
		LastError:        lastError,
	}
}

// IsDegraded 判断指定服务当前是否处于降级状态
func (t *Tracker) IsDegraded(provider string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	_, ok := t.degraded[provider]
	return ok
}
