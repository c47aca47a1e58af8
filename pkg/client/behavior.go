package client

import (
	"context"
	"net/http"
	"time"

	"chainscore/pkg/config"
	"chainscore/pkg/validate"
)

// BehaviorAnalysis 模型对地址行为模式的分析结果
type BehaviorAnalysis struct {
	Address     string    `json:"address"`
	Source      string    `json:"source"`
	ModelType   string    `json:"modelType"`
	GeneratedAt time.Time `json:"generatedAt"`
	Confidence  float64   `json:"confidence"`
	Patterns    []string  `json:"patterns"`
	Summary     string    `json:"summary"`
}

// ModelPrediction 模型对地址未来评分的预测
type ModelPrediction struct {
	Address     string    `json:"address"`
	Source      string    `json:"source"`
	ModelType   string    `json:"modelType"`
	GeneratedAt time.Time `json:"generatedAt"`
	Confidence  float64   `json:"confidence"`
	Prediction  float64   `json:"prediction"`
	Horizon     string    `json:"horizon"` // 7d, 30d, 90d
}

// RiskFlag 风险标记
type RiskFlag struct {
	Kind     string  `json:"kind"`
	Severity string  `json:"severity"` // low, medium, high
	Score    float64 `json:"score"`
	Detail   string  `json:"detail"`
}

// GetBehaviorAnalysis 获取地址行为分析。
// 响应按模型输出规则校验：来源与模型标签必须存在，
// 生成时间必须在一小时内，占位置信度会被判为合成数据。
func (c *Client) GetBehaviorAnalysis(ctx context.Context, address string) (*BehaviorAnalysis, error) {
	var out BehaviorAnalysis
	err := c.fetchValidated(ctx, config.ServiceModels, "getBehaviorAnalysis",
		http.MethodGet, "/api/v1/behavior/"+address, nil, &out, validate.DomainModelOutput)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetModelPrediction 获取模型评分预测，校验规则同行为分析
func (c *Client) GetModelPrediction(ctx context.Context, address, horizon string) (*ModelPrediction, error) {
	var out ModelPrediction
	path := "/api/v1/prediction/" + address + "?horizon=" + horizon
	err := c.fetchValidated(ctx, config.ServiceModels, "getModelPrediction",
		http.MethodGet, path, nil, &out, validate.DomainModelOutput)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetRiskFlags 获取地址的风险标记列表
func (c *Client) GetRiskFlags(ctx context.Context, address string) ([]RiskFlag, error) {
	var out []RiskFlag
	err := c.fetchValidated(ctx, config.ServiceModels, "getRiskFlags",
		http.MethodGet, "/api/v1/risk/"+address, nil, &out, validate.DomainGeneric)
	if err != nil {
		return nil, err
	}
	return out, nil
}
