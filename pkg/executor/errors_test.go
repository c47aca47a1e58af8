package executor

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyStatusErrors(t *testing.T) {
	tests := []struct {
		name        string
		statusCode  int
		code        ErrorCode
		retryable   bool
		userMessage string
	}{
		{"限流", 429, ErrCodeRateLimited, true, userMsgRateLimited},
		{"未授权", 401, ErrCodeAuth, false, userMsgAuth},
		{"禁止访问", 403, ErrCodeAuth, false, userMsgAuth},
		{"服务器错误", 500, ErrCodeUpstream, true, userMsgDegraded},
		{"网关错误", 502, ErrCodeUpstream, true, userMsgDegraded},
		{"服务不可用", 503, ErrCodeUpstream, true, userMsgDegraded},
		{"网关超时", 504, ErrCodeUpstream, true, userMsgDegraded},
		{"请求超时", 408, ErrCodeUpstream, true, userMsgGeneric},
		{"未找到", 404, ErrCodeUpstream, false, userMsgGeneric},
		{"参数错误", 400, ErrCodeUpstream, false, userMsgGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apiErr := Classify("scoring-engine", &StatusError{StatusCode: tt.statusCode})
			assert.Equal(t, tt.code, apiErr.Code)
			assert.Equal(t, tt.statusCode, apiErr.StatusCode)
			assert.Equal(t, tt.retryable, apiErr.Retryable)
			assert.Equal(t, tt.userMessage, apiErr.UserMessage)
			assert.Equal(t, "scoring-engine", apiErr.Provider)
			assert.False(t, apiErr.Timestamp.IsZero())
		})
	}
}

func TestClassifyNetworkErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"连接被拒绝", errors.New("dial tcp 127.0.0.1:8100: connection refused")},
		{"连接重置", errors.New("read: connection reset by peer")},
		{"域名解析失败", errors.New("lookup scoring.internal: no such host")},
		{"连接中断", errors.New("write: broken pipe")},
		{"意外EOF", errors.New("unexpected EOF")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apiErr := Classify("chain-indexer", tt.err)
			assert.Equal(t, ErrCodeNetwork, apiErr.Code)
			assert.True(t, apiErr.Retryable, "网络层故障应可重试")
			assert.Equal(t, userMsgNetwork, apiErr.UserMessage)
		})
	}
}

func TestClassifyAttemptTimeout(t *testing.T) {
	apiErr := Classify("ml-models", &attemptTimeoutError{timeout: 8 * time.Second})

	assert.Equal(t, ErrCodeTimeout, apiErr.Code)
	assert.True(t, apiErr.Retryable)
	assert.Equal(t, userMsgNetwork, apiErr.UserMessage)
	assert.Contains(t, apiErr.Message, "8s")
}

func TestClassifyUnknownError(t *testing.T) {
	apiErr := Classify("market-data", errors.New("something strange happened"))

	assert.Equal(t, ErrCodeUnknown, apiErr.Code)
	assert.False(t, apiErr.Retryable, "无法归类的错误不应盲目重试")
	assert.Equal(t, userMsgGeneric, apiErr.UserMessage)
}

func TestAPIErrorFormat(t *testing.T) {
	withStatus := Classify("scoring-engine", &StatusError{StatusCode: 503})
	assert.Equal(t, "UPSTREAM_ERROR [scoring-engine/503]: HTTP status error: 503", withStatus.Error())

	withoutStatus := Classify("scoring-engine", errors.New("boom"))
	assert.Equal(t, "UNKNOWN_ERROR [scoring-engine]: boom", withoutStatus.Error())
}

func TestAPIErrorToHealthInfo(t *testing.T) {
	apiErr := Classify("scoring-engine", &StatusError{StatusCode: 503})

	info := apiErr.toHealthInfo()
	require.Equal(t, "UPSTREAM_ERROR", info.Code)
	assert.Equal(t, 503, info.StatusCode)
	assert.Equal(t, "scoring-engine", info.Provider)
	assert.True(t, info.Retryable)
	assert.Equal(t, userMsgDegraded, info.UserMessage)
}
