package config

import (
	"errors"
	"fmt"
	"strings"

	"chainscore/pkg/executor"
	"chainscore/pkg/logger"
)

// 逻辑服务名，用于策略解析、健康跟踪与遥测记账
const (
	ServiceScoring    = "scoring-engine"
	ServiceModels     = "ml-models"
	ServiceIndexer    = "chain-indexer"
	ServiceMarketData = "market-data"
	ServiceRemoteConf = "remote-config"
)

// Config 主配置结构
type Config struct {
	// 上游服务配置
	Services ServicesConfig `json:"services"`

	// 推送连接配置
	Push PushConfig `json:"push"`

	// 熔断器配置
	Breaker executor.BreakerConfig `json:"breaker"`

	// 日志配置
	Logger logger.Config `json:"logger"`
}

// ServicesConfig 上游服务配置
type ServicesConfig struct {
	ConfigURL string            `json:"config_url"` // 远程配置服务地址，为空时全部使用默认策略
	BaseURLs  map[string]string `json:"base_urls"`  // 逻辑服务名 -> 基础地址
}

// PushConfig 推送连接配置
type PushConfig struct {
	URL string `json:"url"` // 推送端点地址 (ws:// 或 wss://)
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Services: ServicesConfig{
			ConfigURL: "http://localhost:8100",
			BaseURLs: map[string]string{
				ServiceScoring:    "http://localhost:8101",
				ServiceModels:     "http://localhost:8102",
				ServiceIndexer:    "http://localhost:8103",
				ServiceMarketData: "http://localhost:8104",
			},
		},
		Push: PushConfig{
			URL: "ws://localhost:8101/ws/v1/stream",
		},
		Breaker: executor.DefaultBreakerConfig(),
		Logger: logger.Config{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if len(c.Services.BaseURLs) == 0 {
		return errors.New("at least one service base URL is required")
	}

	for service, base := range c.Services.BaseURLs {
		if service == "" {
			return errors.New("service name cannot be empty")
		}
		if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
			return fmt.Errorf("base URL for %s must be http(s): %s", service, base)
		}
	}

	if c.Push.URL != "" &&
		!strings.HasPrefix(c.Push.URL, "ws://") && !strings.HasPrefix(c.Push.URL, "wss://") {
		return fmt.Errorf("push URL must be ws(s): %s", c.Push.URL)
	}

	return nil
}
