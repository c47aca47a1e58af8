package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"chainscore/pkg/logger"
)

// ServiceClient 按逻辑服务名路由的出站 HTTP JSON 客户端。
// 请求与响应体对客户端是不透明的 JSON，由上层负责解释与校验。
type ServiceClient struct {
	baseURLs   map[string]string
	httpClient *http.Client
	userAgent  string
	log        *logger.Entry
}

// NewServiceClient 创建出站客户端，baseURLs 以逻辑服务名为键
func NewServiceClient(baseURLs map[string]string) *ServiceClient {
	return &ServiceClient{
		baseURLs: baseURLs,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     30 * time.Second,
				MaxConnsPerHost:     10,
			},
			// 每次尝试的超时由执行器的计时器控制，这里只设置兜底上限
			Timeout: 60 * time.Second,
		},
		userAgent: "ChainScore/1.0",
		log:       logger.WithComponent("ServiceClient"),
	}
}

// BaseURL 返回逻辑服务的基础地址
func (c *ServiceClient) BaseURL(service string) (string, bool) {
	base, ok := c.baseURLs[service]
	return base, ok
}

// DoJSON 向指定服务发起一次 HTTP JSON 请求，返回原始响应体。
// 非 2xx 状态码作为 *StatusError 返回，由执行器分类重试。
func (c *ServiceClient) DoJSON(ctx context.Context, service, method, path string, body interface{}) (json.RawMessage, error) {
	base, ok := c.baseURLs[service]
	if !ok {
		return nil, fmt.Errorf("unknown service %q", service)
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, base+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request failed: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt := string(respBody)
		if len(excerpt) > 256 {
			excerpt = excerpt[:256]
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: excerpt}
	}

	return json.RawMessage(respBody), nil
}

// OperationFor 把一次 HTTP 请求包装为可重试的 Operation
func (c *ServiceClient) OperationFor(service, method, path string, body interface{}) Operation {
	return func(ctx context.Context) (json.RawMessage, error) {
		return c.DoJSON(ctx, service, method, path, body)
	}
}
