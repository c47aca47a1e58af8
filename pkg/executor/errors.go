package executor

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"chainscore/pkg/health"
)

// ErrorCode 错误代码类型
type ErrorCode string

// 错误代码常量
const (
	ErrCodeTimeout     ErrorCode = "TIMEOUT"
	ErrCodeNetwork     ErrorCode = "NETWORK_ERROR"
	ErrCodeRateLimited ErrorCode = "RATE_LIMITED"
	ErrCodeUpstream    ErrorCode = "UPSTREAM_ERROR"
	ErrCodeAuth        ErrorCode = "AUTH_ERROR"
	ErrCodeCircuitOpen ErrorCode = "CIRCUIT_OPEN"
	ErrCodeUnknown     ErrorCode = "UNKNOWN_ERROR"
)

// 用户可见的提示文案，按失败类别预先计算
const (
	userMsgRateLimited = "Too many requests, please retry later"
	userMsgDegraded    = "Service is temporarily degraded, please retry later"
	userMsgAuth        = "Authentication issue, please check credentials"
	userMsgNetwork     = "Network problem, please check your connection"
	userMsgGeneric     = "Request failed, please try again"
)

// APIError 单次失败尝试的完整错误信息，创建后不可变
type APIError struct {
	Code        ErrorCode `json:"code"`
	Message     string    `json:"message"`
	StatusCode  int       `json:"status_code"`
	Timestamp   time.Time `json:"timestamp"`
	Provider    string    `json:"provider"`
	Retryable   bool      `json:"retryable"`
	UserMessage string    `json:"user_message"`
}

// Error 实现 error 接口
func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s [%s/%d]: %s", e.Code, e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s [%s]: %s", e.Code, e.Provider, e.Message)
}

// StatusError 上游返回非 2xx 状态码时由 HTTP 客户端产生
type StatusError struct {
	StatusCode int
	Body       string
}

// Error 实现 error 接口
func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP status error: %d", e.StatusCode)
}

// attemptTimeoutError 单次尝试被计时器判定超时。
// 底层调用并未被取消，其最终结果会被丢弃。
type attemptTimeoutError struct {
	timeout time.Duration
}

// Error 实现 error 接口
func (e *attemptTimeoutError) Error() string {
	return fmt.Sprintf("attempt timed out after %v", e.timeout)
}

// retryableStatus 判断 HTTP 状态码是否可重试
func retryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, // 408
		http.StatusTooManyRequests,     // 429
		http.StatusInternalServerError, // 500
		http.StatusBadGateway,          // 502
		http.StatusServiceUnavailable,  // 503
		http.StatusGatewayTimeout:      // 504
		return true
	}
	return false
}

// isNetworkError 根据错误文本判断是否为网络层故障
func isNetworkError(err error) bool {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "network is unreachable"),
		strings.Contains(msg, "temporary failure"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "broken pipe"),
		strings.Contains(msg, "eof"):
		return true
	}
	return false
}

// Classify 把一次尝试的原始错误归类为 APIError
func Classify(provider string, err error) *APIError {
	apiErr := &APIError{
		Timestamp: time.Now(),
		Provider:  provider,
		Message:   err.Error(),
	}

	if timeoutErr, ok := err.(*attemptTimeoutError); ok {
		apiErr.Code = ErrCodeTimeout
		apiErr.Retryable = true
		apiErr.UserMessage = userMsgNetwork
		apiErr.Message = timeoutErr.Error()
		return apiErr
	}

	if statusErr, ok := err.(*StatusError); ok {
		apiErr.StatusCode = statusErr.StatusCode
		apiErr.Retryable = retryableStatus(statusErr.StatusCode)

		switch {
		case statusErr.StatusCode == http.StatusTooManyRequests:
			apiErr.Code = ErrCodeRateLimited
			apiErr.UserMessage = userMsgRateLimited
		case statusErr.StatusCode == http.StatusUnauthorized,
			statusErr.StatusCode == http.StatusForbidden:
			apiErr.Code = ErrCodeAuth
			apiErr.UserMessage = userMsgAuth
		case statusErr.StatusCode >= 500:
			apiErr.Code = ErrCodeUpstream
			apiErr.UserMessage = userMsgDegraded
		default:
			apiErr.Code = ErrCodeUpstream
			apiErr.UserMessage = userMsgGeneric
		}
		return apiErr
	}

	if isNetworkError(err) {
		apiErr.Code = ErrCodeNetwork
		apiErr.Retryable = true
		apiErr.UserMessage = userMsgNetwork
		return apiErr
	}

	apiErr.Code = ErrCodeUnknown
	apiErr.UserMessage = userMsgGeneric
	return apiErr
}

// toHealthInfo 转换为健康跟踪器使用的错误快照
func (e *APIError) toHealthInfo() health.ErrorInfo {
	return health.ErrorInfo{
		Code:        string(e.Code),
		Message:     e.Message,
		StatusCode:  e.StatusCode,
		Timestamp:   e.Timestamp,
		Provider:    e.Provider,
		Retryable:   e.Retryable,
		UserMessage: e.UserMessage,
	}
}
