package validate

import (
	"fmt"
	"strings"
	"time"
)

// Result 一次校验的结果，同步产生、立即消费、从不持久化
type Result struct {
	IsValid   bool      `json:"is_valid"`
	IsReal    bool      `json:"is_real"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	Errors    []string  `json:"errors"`
}

// ValidationError 结构规则校验失败，携带违反的规则列表
type ValidationError struct {
	Source     string
	Violations []string
}

// Error 实现 error 接口
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Source, strings.Join(e.Violations, "; "))
}

// SyntheticDataError 检测到疑似合成/占位数据
type SyntheticDataError struct {
	Source     string
	Indicators []string
}

// Error 实现 error 接口
func (e *SyntheticDataError) Error() string {
	return fmt.Sprintf("synthetic data detected from %s: %s", e.Source, strings.Join(e.Indicators, "; "))
}

// SourceUnavailableError 数据源没有返回任何可用载荷
type SourceUnavailableError struct {
	Source string
	Cause  error
}

// Error 实现 error 接口
func (e *SourceUnavailableError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("data source %s unavailable: %v", e.Source, e.Cause)
	}
	return fmt.Sprintf("data source %s unavailable", e.Source)
}

// Unwrap 返回底层原因
func (e *SourceUnavailableError) Unwrap() error {
	return e.Cause
}
