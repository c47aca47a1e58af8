package client

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"chainscore/pkg/config"
	"chainscore/pkg/validate"
)

// Profile 钱包地址的画像信息
type Profile struct {
	Address   string    `json:"address"`
	ENSName   string    `json:"ensName,omitempty"`
	FirstSeen time.Time `json:"firstSeen"`
	TxCount   int64     `json:"txCount"`
	Tags      []string  `json:"tags,omitempty"`
}

// CreditScore 单个地址的信用评分
type CreditScore struct {
	Address    string    `json:"address"`
	Score      int       `json:"score"`
	Grade      string    `json:"grade"`
	Confidence float64   `json:"confidence"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// ScorePoint 评分历史上的一个点
type ScorePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Score     int       `json:"score"`
}

// ScoreFactor 影响评分的单项因子
type ScoreFactor struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
	Value  float64 `json:"value"`
	Impact string  `json:"impact"` // positive, negative, neutral
}

// GetProfile 获取地址画像。失败返回 *executor.APIError 或校验类错误。
func (c *Client) GetProfile(ctx context.Context, address string) (*Profile, error) {
	var out Profile
	err := c.fetchValidated(ctx, config.ServiceScoring, "getProfile",
		http.MethodGet, "/api/v1/profile/"+address, nil, &out, validate.DomainGeneric)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetCreditScore 获取地址当前信用评分
func (c *Client) GetCreditScore(ctx context.Context, address string) (*CreditScore, error) {
	var out CreditScore
	err := c.fetchValidated(ctx, config.ServiceScoring, "getCreditScore",
		http.MethodGet, "/api/v1/score/"+address, nil, &out, validate.DomainGeneric)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetBatchScores 批量获取信用评分，地址顺序与返回顺序一致
func (c *Client) GetBatchScores(ctx context.Context, addresses []string) ([]CreditScore, error) {
	var out []CreditScore
	body := map[string]interface{}{"addresses": addresses}
	err := c.fetchValidated(ctx, config.ServiceScoring, "getBatchScores",
		http.MethodPost, "/api/v1/score/batch", body, &out, validate.DomainGeneric)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetScoreHistory 获取最近 days 天的评分历史
func (c *Client) GetScoreHistory(ctx context.Context, address string, days int) ([]ScorePoint, error) {
	var out []ScorePoint
	path := fmt.Sprintf("/api/v1/score/%s/history?days=%d", address, days)
	err := c.fetchValidated(ctx, config.ServiceScoring, "getScoreHistory",
		http.MethodGet, path, nil, &out, validate.DomainGeneric)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetScoreFactors 获取影响评分的因子明细
func (c *Client) GetScoreFactors(ctx context.Context, address string) ([]ScoreFactor, error) {
	var out []ScoreFactor
	err := c.fetchValidated(ctx, config.ServiceScoring, "getScoreFactors",
		http.MethodGet, "/api/v1/score/"+address+"/factors", nil, &out, validate.DomainGeneric)
	if err != nil {
		return nil, err
	}
	return out, nil
}
