package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"chainscore/pkg/logger"
)

// 远程配置端点路径，三个端点相互独立
const (
	retryPoliciesPath = "/api/v1/config/retry-policies"
	timeoutsPath      = "/api/v1/config/timeouts"
	credentialsPath   = "/api/v1/config/credentials"
)

// retryPolicyDTO 远程配置端点的线上格式，时间单位为毫秒
type retryPolicyDTO struct {
	MaxRetries         int  `json:"maxRetries"`
	BaseDelayMs        int  `json:"baseDelayMs"`
	MaxDelayMs         int  `json:"maxDelayMs"`
	ExponentialBackoff bool `json:"exponentialBackoff"`
	JitterMs           int  `json:"jitterMs"`
}

func (d retryPolicyDTO) toPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:  d.MaxRetries,
		BaseDelay:   time.Duration(d.BaseDelayMs) * time.Millisecond,
		MaxDelay:    time.Duration(d.MaxDelayMs) * time.Millisecond,
		Exponential: d.ExponentialBackoff,
		Jitter:      time.Duration(d.JitterMs) * time.Millisecond,
	}
}

// Loader 从远程配置服务加载策略。任一端点失败只影响对应的切片，
// 其余切片继续使用已有值或默认值，启动不会因此中断。
type Loader struct {
	baseURL    string
	httpClient *http.Client
	log        *logger.Entry
}

// NewLoader 创建远程配置加载器
func NewLoader(baseURL string) *Loader {
	return &Loader{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		log: logger.WithComponent("PolicyLoader"),
	}
}

// Load 加载三个配置端点并写入存储。
// 返回的错误仅用于记录，调用方不应因此中止启动。
func (l *Loader) Load(ctx context.Context, store *Store) error {
	var failed int

	if err := l.loadRetryPolicies(ctx, store); err != nil {
		l.log.Warnf("Retry policies not loaded, using defaults: %v", err)
		failed++
	}
	if err := l.loadTimeouts(ctx, store); err != nil {
		l.log.Warnf("Timeouts not loaded, using defaults: %v", err)
		failed++
	}
	if err := l.loadCredentials(ctx, store); err != nil {
		l.log.Warnf("Credential summary not loaded: %v", err)
		failed++
	}

	if failed == 3 {
		return fmt.Errorf("all %d config endpoints failed", failed)
	}
	return nil
}

func (l *Loader) loadRetryPolicies(ctx context.Context, store *Store) error {
	body, err := l.fetch(ctx, retryPoliciesPath)
	if err != nil {
		return err
	}

	var policies map[string]retryPolicyDTO
	if err := json.Unmarshal(body, &policies); err != nil {
		return fmt.Errorf("decode retry policies: %w", err)
	}

	for service, dto := range policies {
		if !store.SetRetryPolicy(service, dto.toPolicy()) {
			l.log.Warnf("Ignoring invalid retry policy for service %s", service)
		}
	}
	l.log.Infof("Loaded retry policies for %d services", len(policies))
	return nil
}

func (l *Loader) loadTimeouts(ctx context.Context, store *Store) error {
	body, err := l.fetch(ctx, timeoutsPath)
	if err != nil {
		return err
	}

	var timeouts map[string]int // 服务名 -> 毫秒
	if err := json.Unmarshal(body, &timeouts); err != nil {
		return fmt.Errorf("decode timeouts: %w", err)
	}

	for service, ms := range timeouts {
		if !store.SetTimeout(service, time.Duration(ms)*time.Millisecond) {
			l.log.Warnf("Ignoring invalid timeout for service %s", service)
		}
	}
	l.log.Infof("Loaded timeouts for %d services", len(timeouts))
	return nil
}

func (l *Loader) loadCredentials(ctx context.Context, store *Store) error {
	body, err := l.fetch(ctx, credentialsPath)
	if err != nil {
		return err
	}

	var list []CredentialStatus
	if err := json.Unmarshal(body, &list); err != nil {
		return fmt.Errorf("decode credential summary: %w", err)
	}

	store.setCredentials(list)
	l.log.Infof("Loaded credential summary for %d services", len(list))
	return nil
}

func (l *Loader) fetch(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request failed: %w", err)
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP status error: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response failed: %w", err)
	}
	return body, nil
}
