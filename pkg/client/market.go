package client

import (
	"context"
	"net/http"
	"strings"
	"time"

	"chainscore/pkg/config"
	"chainscore/pkg/validate"
)

// TokenPrice 单个代币的市场价格
type TokenPrice struct {
	Symbol       string    `json:"symbol"`
	PriceUSD     float64   `json:"priceUsd"`
	Change24h    float64   `json:"change24h"`
	MarketCapUSD float64   `json:"marketCapUsd,omitempty"`
	Volume24hUSD float64   `json:"volume24hUsd,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// TokenBalance 地址持有的某种代币余额
type TokenBalance struct {
	Symbol   string  `json:"symbol"`
	Contract string  `json:"contract"`
	Amount   float64 `json:"amount"`
	ValueUSD float64 `json:"valueUsd"`
}

// GetPrice 获取单个代币价格
func (c *Client) GetPrice(ctx context.Context, symbol string) (*TokenPrice, error) {
	var out TokenPrice
	err := c.fetchValidated(ctx, config.ServiceMarketData, "getPrice",
		http.MethodGet, "/api/v1/price/"+symbol, nil, &out, validate.DomainGeneric)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetBatchPrices 批量获取代币价格
func (c *Client) GetBatchPrices(ctx context.Context, symbols []string) ([]TokenPrice, error) {
	var out []TokenPrice
	path := "/api/v1/prices?symbols=" + strings.Join(symbols, ",")
	err := c.fetchValidated(ctx, config.ServiceMarketData, "getBatchPrices",
		http.MethodGet, path, nil, &out, validate.DomainGeneric)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetTokenBalances 获取地址的代币持仓
func (c *Client) GetTokenBalances(ctx context.Context, address string) ([]TokenBalance, error) {
	var out []TokenBalance
	err := c.fetchValidated(ctx, config.ServiceMarketData, "getTokenBalances",
		http.MethodGet, "/api/v1/balances/"+address, nil, &out, validate.DomainGeneric)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetPortfolioValue 获取地址持仓的总市值
func (c *Client) GetPortfolioValue(ctx context.Context, address string) (float64, error) {
	var out struct {
		Address  string  `json:"address"`
		ValueUSD float64 `json:"valueUsd"`
	}
	err := c.fetchValidated(ctx, config.ServiceMarketData, "getPortfolioValue",
		http.MethodGet, "/api/v1/portfolio/"+address+"/value", nil, &out, validate.DomainGeneric)
	if err != nil {
		return 0, err
	}
	return out.ValueUSD, nil
}
